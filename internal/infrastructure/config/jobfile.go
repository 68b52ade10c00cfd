package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrJobFileNotFound indicates the job file does not exist.
	ErrJobFileNotFound = errors.New("job file not found")

	// ErrJobFileInvalid indicates the job file is not valid YAML or has unknown keys.
	ErrJobFileInvalid = errors.New("job file is not valid")
)

// JobFile is the per-job configuration a CI job can check in next to its
// pipeline definition. Command-line flags take precedence over every field.
//
//	branch: main
//	remotes: [origin, upstream]
//	poll: false
type JobFile struct {
	Branch  string   `yaml:"branch"`
	Remotes []string `yaml:"remotes"`
	Poll    bool     `yaml:"poll"`
}

// LoadJobFile reads a YAML job file. Unknown keys are rejected. An empty
// file yields an empty JobFile.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrJobFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var job JobFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", ErrJobFileInvalid, path, err)
	}

	return &job, nil
}
