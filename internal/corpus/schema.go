package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://github.com/xkilldash9x/singlish-check/schemas/corpus-v1.json"

// GenerateJSONSchema reflects the corpus document schema from the Go types.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Document{})
	s.ID = schemaURL
	s.Title = "singlish-check scenario corpus v1"
	s.Description = "Ordered transliteration scenarios. A scenario without `expected` is exploratory."

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

var (
	compiledOnce   sync.Once
	compiledSchema *sjsonschema.Schema
	compileErr     error
)

func documentSchema() (*sjsonschema.Schema, error) {
	compiledOnce.Do(func() {
		raw, err := GenerateJSONSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// validateSemantic checks a decoded document against the reflected schema.
func validateSemantic(doc *Document) []*ValidationError {
	semantic := func(path, msg string) []*ValidationError {
		return []*ValidationError{{Phase: PhaseSemantic, Path: path, Message: msg}}
	}

	sch, err := documentSchema()
	if err != nil {
		return semantic("", err.Error())
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return semantic("", fmt.Sprintf("marshal for schema validation: %v", err))
	}
	instance, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return semantic("", fmt.Sprintf("unmarshal document: %v", err))
	}

	err = sch.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return semantic("", err.Error())
	}
	var errs []*ValidationError
	for _, cause := range flattenValidationErrors(ve) {
		errs = append(errs, &ValidationError{
			Phase:   PhaseSemantic,
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return errs
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
