package corpus

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/xkilldash9x/singlish-check/internal/match"
	"github.com/xkilldash9x/singlish-check/internal/script"
)

// Signal is a compiled exploratory acceptance expression. Expressions see
// `actual`, `input` and `reference` plus the helpers hasTargetScript,
// maxWhitespaceRun and matches.
type Signal struct {
	Source  string
	program *vm.Program
}

// SignalScope holds the run settings a signal is evaluated under. A nil
// Validator compares with match.DefaultThreshold.
type SignalScope struct {
	Target    script.Range
	Validator *match.Validator
}

func signalEnv(scope SignalScope, actual, input, reference string) map[string]any {
	v := scope.Validator
	if v == nil {
		v = match.NewValidator(match.DefaultThreshold)
	}
	return map[string]any{
		"actual":           actual,
		"input":            input,
		"reference":        reference,
		"hasTargetScript":  scope.Target.Contains,
		"maxWhitespaceRun": script.MaxWhitespaceRun,
		"matches": func(a, b string) bool {
			return v.IsAcceptable(a, b).IsMatch
		},
	}
}

// CompileSignal type-checks src as a boolean expression.
func CompileSignal(src string) (*Signal, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty signal expression")
	}
	program, err := expr.Compile(src, expr.Env(signalEnv(SignalScope{Target: script.Sinhala}, "", "", "")), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile signal %q: %w", src, err)
	}
	return &Signal{Source: src, program: program}, nil
}

// Eval runs the signal against an observed output.
func (s *Signal) Eval(scope SignalScope, r Record, actual string) (bool, error) {
	reference, _ := r.ReferenceOutput()
	out, err := expr.Run(s.program, signalEnv(scope, actual, r.Input, reference))
	if err != nil {
		return false, fmt.Errorf("eval signal %q: %w", s.Source, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("signal %q did not return bool (got %T)", s.Source, out)
	}
	return result, nil
}

// CompileSignals compiles every signal of a record.
func CompileSignals(r Record) ([]*Signal, error) {
	signals := make([]*Signal, 0, len(r.Signals))
	for _, src := range r.Signals {
		s, err := CompileSignal(src)
		if err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, nil
}
