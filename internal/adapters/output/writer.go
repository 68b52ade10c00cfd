// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MyCarrier-DevOps/slippy-catchup/internal/domain"
)

// Writer writes resolved revisions to the configured output destination.
// By default, it writes to stdout.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteRevisions writes one line per revision in build order:
//
//	<sha> <ref>[,<ref>...]
//
// Nothing is written when there is nothing to build.
func (w *Writer) WriteRevisions(revisions []domain.Revision) error {
	for _, rev := range revisions {
		if _, err := fmt.Fprintf(w.out, "%s %s\n", rev.SHA, strings.Join(rev.BranchNames(), ",")); err != nil {
			return err
		}
	}
	return nil
}
