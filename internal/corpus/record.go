// Package corpus holds the ordered scenario records a run executes and the
// loader that turns YAML documents into them.
package corpus

import (
	"fmt"
	"slices"
	"strings"
)

// Kind distinguishes scenarios that assert a single correct answer from
// scenarios that only characterize behavior.
type Kind string

const (
	KindStrict      Kind = "strict"
	KindExploratory Kind = "exploratory"
)

// Record is one scenario. A nil Expected marks it exploratory.
type Record struct {
	ID       string  `yaml:"id" json:"id" jsonschema:"required,minLength=1,pattern=^[A-Za-z0-9_.-]+$"`
	Name     string  `yaml:"name" json:"name" jsonschema:"required"`
	Input    string  `yaml:"input" json:"input" jsonschema:"required,minLength=1"`
	Expected *string `yaml:"expected,omitempty" json:"expected,omitempty"`
	// Reference is the answer a correct transliterator would give. It never
	// makes a scenario strict; the runner only reports similarity to it.
	Reference *string  `yaml:"reference,omitempty" json:"reference,omitempty"`
	Signals   []string `yaml:"signals,omitempty" json:"signals,omitempty"`
	Tags      []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Kind derives the acceptance policy from the presence of Expected.
func (r Record) Kind() Kind {
	if r.Expected != nil {
		return KindStrict
	}
	return KindExploratory
}

// ExpectedOutput returns the strict expectation, if any.
func (r Record) ExpectedOutput() (string, bool) {
	if r.Expected == nil {
		return "", false
	}
	return *r.Expected, true
}

// ReferenceOutput returns the informational reference, if any.
func (r Record) ReferenceOutput() (string, bool) {
	if r.Reference == nil {
		return "", false
	}
	return *r.Reference, true
}

// HasTag reports whether the record carries tag, case-insensitively.
func (r Record) HasTag(tag string) bool {
	return slices.ContainsFunc(r.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

func (r Record) clone() Record {
	c := r
	if r.Expected != nil {
		e := *r.Expected
		c.Expected = &e
	}
	if r.Reference != nil {
		ref := *r.Reference
		c.Reference = &ref
	}
	c.Signals = slices.Clone(r.Signals)
	c.Tags = slices.Clone(r.Tags)
	return c
}

// Document is the on-disk corpus format.
type Document struct {
	Version   int      `yaml:"version" json:"version" jsonschema:"required,minimum=1,maximum=1"`
	Scenarios []Record `yaml:"scenarios" json:"scenarios" jsonschema:"required,minItems=1"`
}

// Corpus is an ordered, immutable set of records.
type Corpus struct {
	records []Record
	index   map[string]int
}

func newCorpus(records []Record) *Corpus {
	c := &Corpus{records: make([]Record, len(records)), index: make(map[string]int, len(records))}
	for i, r := range records {
		c.records[i] = r.clone()
		c.index[r.ID] = i
	}
	return c
}

// Len returns the number of records.
func (c *Corpus) Len() int { return len(c.records) }

// Records returns copies of the records in corpus order.
func (c *Corpus) Records() []Record {
	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.clone()
	}
	return out
}

// Get returns a copy of the record with the given ID.
func (c *Corpus) Get(id string) (Record, bool) {
	i, ok := c.index[id]
	if !ok {
		return Record{}, false
	}
	return c.records[i].clone(), true
}

// Select narrows the corpus to the given IDs and tags while keeping corpus
// order. Empty filters select everything. Unknown IDs are an error.
func (c *Corpus) Select(ids, tags []string) (*Corpus, error) {
	for _, id := range ids {
		if _, ok := c.index[id]; !ok {
			return nil, fmt.Errorf("unknown scenario id %q", id)
		}
	}

	var selected []Record
	for _, r := range c.records {
		if len(ids) > 0 && !slices.Contains(ids, r.ID) {
			continue
		}
		if len(tags) > 0 && !slices.ContainsFunc(tags, r.HasTag) {
			continue
		}
		selected = append(selected, r)
	}
	return newCorpus(selected), nil
}

// Counts returns how many strict and exploratory records the corpus holds.
func (c *Corpus) Counts() (strict, exploratory int) {
	for _, r := range c.records {
		if r.Kind() == KindStrict {
			strict++
		} else {
			exploratory++
		}
	}
	return strict, exploratory
}
