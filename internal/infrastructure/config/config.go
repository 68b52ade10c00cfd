// Package config provides configuration loading for the slippy-catchup application.
// It handles application settings from environment variables, the slip store
// connection (ClickHouse and pipeline configuration from HashiCorp Vault or a
// local file) and per-job YAML files.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	ch "github.com/MyCarrier-DevOps/goLibMyCarrier/clickhouse"
	"github.com/MyCarrier-DevOps/goLibMyCarrier/slippy"
	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
)

// Environment variable names.
const (
	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvRemotes is a comma-separated list of remotes to consider.
	EnvRemotes = "CATCHUP_REMOTES"

	// EnvVerbose enables resolver trace output.
	EnvVerbose = "CATCHUP_VERBOSE"

	// EnvDepth is the ancestry depth searched for the last build.
	EnvDepth = "CATCHUP_DEPTH"

	// EnvPipelineConfig is the path to a local pipeline configuration JSON file.
	EnvPipelineConfig = "SLIPPY_PIPELINE_CONFIG"

	// EnvDatabase is the ClickHouse database holding routing slips.
	EnvDatabase = "SLIPPY_DATABASE"

	// EnvVaultPipelineConfigPath is the path in Vault KV where pipeline config is stored.
	// An optional "#key" suffix selects the secret key holding the JSON document.
	EnvVaultPipelineConfigPath = "VAULT_PIPELINE_CONFIG_PATH"

	// EnvVaultPipelineConfigMount is the Vault KV mount point (defaults to "secret").
	EnvVaultPipelineConfigMount = "VAULT_PIPELINE_CONFIG_MOUNT"
)

// Default values.
const (
	DefaultLogLevel           = "info"
	DefaultLogAppName         = "slippy-catchup"
	DefaultDepth              = 25
	DefaultDatabase           = "ci"
	DefaultVaultPipelineMount = "secret"
	DefaultSecretKey          = "config"
)

// Configuration errors.
var (
	// ErrInvalidSetting indicates an environment variable has an unparseable value.
	ErrInvalidSetting = errors.New("invalid setting")

	// ErrPipelineConfigRequired indicates pipeline config source is not available.
	ErrPipelineConfigRequired = errors.New(
		"pipeline configuration required: set VAULT_PIPELINE_CONFIG_PATH (with VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID) " +
			"or SLIPPY_PIPELINE_CONFIG for local file",
	)

	// ErrPipelineConfigNotFound indicates the pipeline config file does not exist.
	ErrPipelineConfigNotFound = errors.New("pipeline configuration file not found")

	// ErrPipelineConfigInvalid indicates the pipeline config is not valid JSON.
	ErrPipelineConfigInvalid = errors.New("pipeline configuration is not valid JSON")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("pipeline configuration not found in Vault")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// Config holds the application settings that do not require the slip store.
type Config struct {
	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string

	// Remotes is the remote list from the environment, in configured order.
	// Empty means "not configured".
	Remotes []string

	// Verbose enables resolver trace output.
	Verbose bool

	// Depth is the ancestry depth searched for the last build.
	Depth int
}

// StoreConfig holds the slip store connection settings.
type StoreConfig struct {
	// ClickHouse holds the ClickHouse connection configuration.
	ClickHouse *ch.ClickhouseConfig

	// PipelineConfig holds the pipeline step definitions.
	PipelineConfig *slippy.PipelineConfig

	// Database is the ClickHouse database name for slip storage.
	Database string
}

// Load loads application settings from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:   getEnvDefault(EnvLogLevel, DefaultLogLevel),
		LogAppName: getEnvDefault(EnvLogAppName, DefaultLogAppName),
		Remotes:    splitList(os.Getenv(EnvRemotes)),
		Depth:      DefaultDepth,
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, EnvVerbose, v)
		}
		cfg.Verbose = verbose
	}

	if v := os.Getenv(EnvDepth); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil || depth <= 0 {
			return nil, fmt.Errorf("%w: %s=%q must be a positive integer", ErrInvalidSetting, EnvDepth, v)
		}
		cfg.Depth = depth
	}

	return cfg, nil
}

// LoadStore loads the slip store configuration.
// Pipeline configuration is loaded from Vault (preferred) or local file (fallback).
//
// For Vault loading, requires:
//   - VAULT_ADDRESS: Vault server address
//   - VAULT_ROLE_ID: AppRole role ID
//   - VAULT_SECRET_ID: AppRole secret ID
//   - VAULT_PIPELINE_CONFIG_PATH: Path to the secret in Vault, optionally suffixed with #key
//   - VAULT_PIPELINE_CONFIG_MOUNT: KV mount point (optional, defaults to "secret")
//
// For file loading (fallback):
//   - SLIPPY_PIPELINE_CONFIG: Path to local JSON file
//
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
func LoadStore(ctx context.Context, vaultClientFactory VaultClientFactory) (*StoreConfig, error) {
	chConfig, err := ch.ClickhouseLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ClickHouse config: %w", err)
	}

	pipelineConfig, err := loadPipelineConfig(ctx, vaultClientFactory)
	if err != nil {
		return nil, err
	}

	return &StoreConfig{
		ClickHouse:     chConfig,
		PipelineConfig: pipelineConfig,
		Database:       getEnvDefault(EnvDatabase, DefaultDatabase),
	}, nil
}

func loadPipelineConfig(ctx context.Context, vaultClientFactory VaultClientFactory) (*slippy.PipelineConfig, error) {
	if vaultPath := os.Getenv(EnvVaultPipelineConfigPath); vaultPath != "" {
		return loadPipelineConfigFromVault(ctx, vaultClientFactory, vaultPath)
	}

	pipelineConfigPath := os.Getenv(EnvPipelineConfig)
	if pipelineConfigPath == "" {
		return nil, ErrPipelineConfigRequired
	}

	return loadPipelineConfigFromFile(pipelineConfigPath)
}

func loadPipelineConfigFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	fullPath string,
) (*slippy.PipelineConfig, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return nil, err
	}

	mount := getEnvDefault(EnvVaultPipelineConfigMount, DefaultVaultPipelineMount)
	path, key := parseVaultPath(fullPath)

	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return nil, fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	return parsePipelineConfigFromVault(secretData, key)
}

// parseVaultPath splits "path#key" at the last '#'. Without a '#' the key
// defaults to DefaultSecretKey.
func parseVaultPath(fullPath string) (path, key string) {
	idx := strings.LastIndex(fullPath, "#")
	if idx < 0 {
		return fullPath, DefaultSecretKey
	}
	return fullPath[:idx], fullPath[idx+1:]
}

// parsePipelineConfigFromVault parses pipeline config from Vault secret data.
// Supports two formats:
// 1. The given key containing a JSON string
// 2. Direct mapping of pipeline config fields in the secret
func parsePipelineConfigFromVault(secretData map[string]interface{}, key string) (*slippy.PipelineConfig, error) {
	if configStr, ok := secretData[key].(string); ok {
		var config slippy.PipelineConfig
		if err := json.Unmarshal([]byte(configStr), &config); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPipelineConfigInvalid, err)
		}
		return &config, nil
	}

	jsonData, err := json.Marshal(secretData)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal secret data: %w", ErrPipelineConfigInvalid, err)
	}

	var config slippy.PipelineConfig
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineConfigInvalid, err)
	}

	return &config, nil
}

func loadPipelineConfigFromFile(path string) (*slippy.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPipelineConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read pipeline config: %w", err)
	}

	var config slippy.PipelineConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineConfigInvalid, err)
	}

	return &config, nil
}

func getEnvDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
