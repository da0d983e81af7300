package runner

import (
	"time"

	"github.com/xkilldash9x/singlish-check/internal/corpus"
	"github.com/xkilldash9x/singlish-check/internal/match"
)

// SignalResult records one exploratory signal evaluation.
type SignalResult struct {
	Expr  string `json:"expr"`
	Value bool   `json:"value"`
	Err   string `json:"error,omitempty"`
}

// Outcome is the result of one scenario.
type Outcome struct {
	ScenarioID string         `json:"scenario_id"`
	Name       string         `json:"name"`
	Kind       corpus.Kind    `json:"kind"`
	Input      string         `json:"input"`
	Expected   string         `json:"expected,omitempty"`
	Passed     bool           `json:"passed"`
	Actual     string         `json:"actual"`
	Match      *match.Result  `json:"match,omitempty"`
	Signals    []SignalResult `json:"signals,omitempty"`
	Code       ErrorCode      `json:"code,omitempty"`
	Err        string         `json:"error,omitempty"`
	Artifact   string         `json:"artifact,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration_ns"`
}

// Report is the result of a run, outcomes in corpus order.
type Report struct {
	RunID      string    `json:"run_id"`
	Target     string    `json:"target"`
	Driver     string    `json:"driver"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// Summary aggregates a report.
type Summary struct {
	Total       int               `json:"total"`
	Passed      int               `json:"passed"`
	Failed      int               `json:"failed"`
	Strict      int               `json:"strict"`
	Exploratory int               `json:"exploratory"`
	ByCode      map[ErrorCode]int `json:"by_code,omitempty"`
}

func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Outcomes), ByCode: make(map[ErrorCode]int)}
	for _, o := range r.Outcomes {
		if o.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		if o.Kind == corpus.KindStrict {
			s.Strict++
		} else {
			s.Exploratory++
		}
		if o.Code != CodeNone {
			s.ByCode[o.Code]++
		}
	}
	return s
}

// Failed reports whether any scenario failed.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if !o.Passed {
			return true
		}
	}
	return false
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
