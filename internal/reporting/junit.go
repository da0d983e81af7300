package reporting

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/singlish-check/internal/runner"
)

const junitSuiteName = "singlish-check"

// JUnitReporter writes JUnit XML for CI systems. Validation mismatches are
// failures, hard faults are errors and cancelled scenarios are skipped.
type JUnitReporter struct {
	w io.WriteCloser
}

func NewJUnitReporter(w io.WriteCloser) *JUnitReporter {
	return &JUnitReporter{w: w}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (j *JUnitReporter) Write(report *runner.Report) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	var failures, errs, skipped int
	for _, o := range report.Outcomes {
		switch {
		case o.Passed:
		case o.Code == runner.CodeCancelled:
			skipped++
		case o.Code.Hard():
			errs++
		default:
			failures++
		}
	}

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", junitSuiteName)
	suites.CreateAttr("tests", strconv.Itoa(len(report.Outcomes)))
	suites.CreateAttr("failures", strconv.Itoa(failures))
	suites.CreateAttr("errors", strconv.Itoa(errs))
	suites.CreateAttr("time", seconds(report.Duration()))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", junitSuiteName)
	suite.CreateAttr("id", report.RunID)
	suite.CreateAttr("tests", strconv.Itoa(len(report.Outcomes)))
	suite.CreateAttr("failures", strconv.Itoa(failures))
	suite.CreateAttr("errors", strconv.Itoa(errs))
	suite.CreateAttr("skipped", strconv.Itoa(skipped))
	suite.CreateAttr("time", seconds(report.Duration()))
	suite.CreateAttr("timestamp", report.StartedAt.UTC().Format(time.RFC3339))

	props := suite.CreateElement("properties")
	for _, kv := range [][2]string{{"target", report.Target}, {"driver", report.Driver}} {
		p := props.CreateElement("property")
		p.CreateAttr("name", kv[0])
		p.CreateAttr("value", kv[1])
	}

	for _, o := range report.Outcomes {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", junitSuiteName+"."+string(o.Kind))
		tc.CreateAttr("name", fmt.Sprintf("%s: %s", o.ScenarioID, o.Name))
		tc.CreateAttr("time", seconds(o.Duration))

		switch {
		case o.Passed:
		case o.Code == runner.CodeCancelled:
			tc.CreateElement("skipped").CreateAttr("message", o.Err)
		case o.Code.Hard():
			e := tc.CreateElement("error")
			e.CreateAttr("type", string(o.Code))
			e.CreateAttr("message", o.Err)
			if o.Artifact != "" {
				e.SetText("screenshot: " + o.Artifact)
			}
		default:
			f := tc.CreateElement("failure")
			f.CreateAttr("type", string(o.Code))
			f.CreateAttr("message", o.Err)
			f.SetText(fmt.Sprintf("input:    %s\nexpected: %s\nactual:   %s", o.Input, o.Expected, o.Actual))
		}
		if o.Actual != "" {
			tc.CreateElement("system-out").SetText(o.Actual)
		}
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(j.w); err != nil {
		return fmt.Errorf("write junit report: %w", err)
	}
	return nil
}

func (j *JUnitReporter) Close() error { return j.w.Close() }
