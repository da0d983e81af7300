package corpus

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

//go:embed data/default.yaml
var defaultCorpus []byte

// Validation phases, in the order they run.
const (
	PhaseStructural = "structural"
	PhaseSemantic   = "semantic"
	PhaseDomain     = "domain"
)

// ValidationError is a single corpus problem with its location.
type ValidationError struct {
	Phase   string `json:"phase"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// LoadError aggregates every validation problem found in one document.
type LoadError struct {
	Source string
	Errors []*ValidationError
}

func (e *LoadError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("corpus %s is invalid: %s", e.Source, strings.Join(msgs, "; "))
}

// Default returns the embedded corpus.
func Default() (*Corpus, error) {
	return Load(bytes.NewReader(defaultCorpus), "embedded")
}

// DefaultYAML returns the raw embedded corpus document.
func DefaultYAML() []byte {
	return bytes.Clone(defaultCorpus)
}

// LoadFile reads a corpus document from disk. A leading ~ expands to the
// user's home directory.
func LoadFile(path string) (*Corpus, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand corpus path: %w", err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return Load(f, expanded)
}

// Load decodes and validates a corpus document. Validation runs in three
// phases: strict decode, JSON Schema, then domain rules.
func Load(r io.Reader, source string) (*Corpus, error) {
	doc, errs := Validate(r)
	if len(errs) > 0 {
		return nil, &LoadError{Source: source, Errors: errs}
	}
	return newCorpus(doc.Scenarios), nil
}

// FromRecords builds a corpus from records already in memory. Only the
// domain rules apply.
func FromRecords(records ...Record) (*Corpus, error) {
	if errs := validateDomain(&Document{Version: 1, Scenarios: records}); len(errs) > 0 {
		return nil, &LoadError{Source: "memory", Errors: errs}
	}
	return newCorpus(records), nil
}

// Validate runs all validation phases and returns every problem found.
// Later phases are skipped when decoding fails.
func Validate(r io.Reader) (*Document, []*ValidationError) {
	doc, err := decode(r)
	if err != nil {
		return nil, []*ValidationError{{Phase: PhaseStructural, Message: err.Error()}}
	}

	var errs []*ValidationError
	errs = append(errs, validateSemantic(doc)...)
	errs = append(errs, validateDomain(doc)...)
	if len(errs) > 0 {
		return doc, errs
	}
	return doc, nil
}

func decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode corpus: document is empty")
		}
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	return &doc, nil
}

func validateDomain(doc *Document) []*ValidationError {
	var errs []*ValidationError
	add := func(i int, field, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:   PhaseDomain,
			Path:    fmt.Sprintf("scenarios/%d/%s", i, field),
			Message: fmt.Sprintf(format, args...),
		})
	}

	seen := make(map[string]int, len(doc.Scenarios))
	for i, rec := range doc.Scenarios {
		if prev, dup := seen[rec.ID]; dup {
			add(i, "id", "duplicate scenario id %q (first defined at scenarios/%d)", rec.ID, prev)
		} else {
			seen[rec.ID] = i
		}
		if strings.TrimSpace(rec.Input) == "" {
			add(i, "input", "input must contain non-whitespace text")
		}
		if rec.Expected != nil && strings.TrimSpace(*rec.Expected) == "" {
			add(i, "expected", "expected output must not be blank; omit it to make the scenario exploratory")
		}
		if rec.Expected != nil && len(rec.Signals) > 0 {
			add(i, "signals", "signals only apply to exploratory scenarios")
		}
		for j, src := range rec.Signals {
			if _, err := CompileSignal(src); err != nil {
				add(i, fmt.Sprintf("signals/%d", j), "%v", err)
			}
		}
	}
	return errs
}
