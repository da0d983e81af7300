// Package reporting renders run reports as console text, JSON or JUnit XML.
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/singlish-check/internal/runner"
)

// Supported formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatJUnit   = "junit"
)

// Reporter defines the interface for writing run reports to an output.
type Reporter interface {
	Write(report *runner.Report) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath. An empty path or
// "stdout" writes to stdout, which defaults to os.Stdout when nil.
func New(format, outputPath string, stdout io.Writer) (Reporter, error) {
	switch format {
	case FormatConsole, FormatJSON, FormatJUnit:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		if stdout == nil {
			stdout = os.Stdout
		}
		writer = &nopWriteCloser{stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("expand output path: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewWithWriter creates a reporter that takes ownership of w.
func NewWithWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case FormatConsole:
		return NewConsoleReporter(w), nil
	case FormatJSON:
		return NewJSONReporter(w), nil
	case FormatJUnit:
		return NewJUnitReporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
