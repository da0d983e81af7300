package reporting

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/xkilldash9x/singlish-check/internal/runner"
)

var (
	passLabel = color.New(color.Bold, color.FgGreen)
	failLabel = color.New(color.Bold, color.FgRed)
	skipLabel = color.New(color.Bold, color.FgYellow)
	dim       = color.New(color.Faint)
)

// ConsoleReporter prints one line per scenario and a summary.
type ConsoleReporter struct {
	w io.WriteCloser
}

func NewConsoleReporter(w io.WriteCloser) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (c *ConsoleReporter) Write(report *runner.Report) error {
	ew := &errWriter{w: c.w}

	ew.printf("%s %s  target %s  driver %s\n",
		color.New(color.Bold).Sprint("Run"), report.RunID, report.Target, report.Driver)

	for _, o := range report.Outcomes {
		ew.printf("%s  %-14s %s\n", label(o), o.ScenarioID, detail(o))
		if !o.Passed && o.Code != runner.CodeCancelled {
			if o.Expected != "" {
				ew.printf("      %s %q\n", dim.Sprint("expected"), o.Expected)
			}
			ew.printf("      %s %q\n", dim.Sprint("actual  "), o.Actual)
			if o.Artifact != "" {
				ew.printf("      %s %s\n", dim.Sprint("artifact"), o.Artifact)
			}
		}
	}

	s := report.Summary()
	summary := fmt.Sprintf("%d passed, %d failed, %d total (%d strict, %d exploratory) in %s",
		s.Passed, s.Failed, s.Total, s.Strict, s.Exploratory, report.Duration().Round(time.Millisecond))
	if s.Failed > 0 {
		ew.printf("\n%s\n", color.RedString(summary))
	} else {
		ew.printf("\n%s\n", color.GreenString(summary))
	}

	codes := make([]string, 0, len(s.ByCode))
	for code := range s.ByCode {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)
	for _, code := range codes {
		ew.printf("  %-20s %d\n", code, s.ByCode[runner.ErrorCode(code)])
	}
	return ew.err
}

func (c *ConsoleReporter) Close() error { return c.w.Close() }

func label(o runner.Outcome) string {
	switch {
	case o.Passed:
		return passLabel.Sprint("PASS")
	case o.Code == runner.CodeCancelled:
		return skipLabel.Sprint("SKIP")
	default:
		return failLabel.Sprint("FAIL")
	}
}

func detail(o runner.Outcome) string {
	var d string
	switch {
	case o.Code != runner.CodeNone:
		d = string(o.Code)
	case o.Match != nil:
		d = fmt.Sprintf("%s %.2f", o.Match.Strategy, o.Match.Score)
	default:
		d = string(o.Kind)
	}
	return fmt.Sprintf("%-22s %s", d, dim.Sprint(o.Name))
}

// errWriter keeps the first write error so formatting code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
