package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/singlish-check/internal/runner"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonDocument is the JSON report layout.
type jsonDocument struct {
	*runner.Report
	Summary runner.Summary `json:"summary"`
}

// JSONReporter writes the whole report as one indented JSON document.
type JSONReporter struct {
	w io.WriteCloser
}

func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{w: w}
}

func (j *JSONReporter) Write(report *runner.Report) error {
	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonDocument{Report: report, Summary: report.Summary()}); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

func (j *JSONReporter) Close() error { return j.w.Close() }
