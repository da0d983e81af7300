package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/config"
	"github.com/xkilldash9x/singlish-check/internal/script"
)

// Role names the surface a handle points at.
type Role string

const (
	RoleInput  Role = "input"
	RoleOutput Role = "output"
)

// StrategyContentSniff marks handles found by scanning element text.
const StrategyContentSniff = "content-sniff"

// DefaultSniffLimit bounds how many `body *` elements the sniff inspects.
const DefaultSniffLimit = 50

// Strategy is one named selector in a resolution chain.
type Strategy struct {
	Name     string
	Selector string
}

// DefaultInputStrategies are tried in order to find the input surface.
var DefaultInputStrategies = []Strategy{
	{Name: "textarea", Selector: "textarea"},
	{Name: "text-input", Selector: `input[type="text"]`},
	{Name: "any-input", Selector: "input"},
	{Name: "contenteditable", Selector: `[contenteditable="true"]`},
	{Name: "input-field-class", Selector: ".input-field"},
	{Name: "input-text-id", Selector: "#input-text"},
	{Name: "singlish-id", Selector: `[id*="singlish"]`},
	{Name: "input-class", Selector: `[class*="input"]`},
}

// DefaultOutputStrategies are tried in order to find the output surface.
var DefaultOutputStrategies = []Strategy{
	{Name: "readonly-textarea", Selector: "textarea[readonly]"},
	{Name: "non-editable-div", Selector: `div[contenteditable="false"]`},
	{Name: "output-field-class", Selector: ".output-field"},
	{Name: "output-text-id", Selector: "#output-text"},
	{Name: "sinhala-id", Selector: `[id*="sinhala"]`},
	{Name: "output-class", Selector: `[class*="output"]`},
	{Name: "result-class", Selector: ".result"},
	{Name: "translation-result-class", Selector: ".translation-result"},
}

// ElementHandle is a resolved element. It is only valid for the page
// generation it was resolved against.
type ElementHandle struct {
	Role       Role
	Ref        ElementRef
	Strategy   string
	Generation uint64
}

// Check returns ErrStaleHandle if the page navigated since resolution.
func (h *ElementHandle) Check(page Page) error {
	if h.Generation != page.Generation() {
		return fmt.Errorf("%s handle from generation %d used at generation %d: %w",
			h.Role, h.Generation, page.Generation(), ErrStaleHandle)
	}
	return nil
}

// ResolutionError lists the strategies that were tried for a role.
type ResolutionError struct {
	Role  Role
	Tried []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no visible %s element (tried %s): %v", e.Role, strings.Join(e.Tried, ", "), ErrElementNotFound)
}

func (e *ResolutionError) Unwrap() error { return ErrElementNotFound }

// Resolver finds input and output surfaces with an ordered strategy chain.
// The output role falls back to a content sniff for target-script text.
type Resolver struct {
	logger     *zap.Logger
	input      []Strategy
	output     []Strategy
	sniffLimit int
	target     script.Range
}

// NewResolver builds a resolver. Empty chains and a non-positive sniff limit
// use the defaults.
func NewResolver(logger *zap.Logger, input, output []Strategy, sniffLimit int, target script.Range) *Resolver {
	if sniffLimit <= 0 {
		sniffLimit = DefaultSniffLimit
	}
	if len(input) == 0 {
		input = DefaultInputStrategies
	}
	if len(output) == 0 {
		output = DefaultOutputStrategies
	}
	return &Resolver{
		logger:     logger.Named("resolver"),
		input:      input,
		output:     output,
		sniffLimit: sniffLimit,
		target:     target,
	}
}

// NewResolverFromConfig builds a resolver from the resolver section.
func NewResolverFromConfig(logger *zap.Logger, cfg config.ResolverConfig) (*Resolver, error) {
	target, err := script.ParseRange(cfg.ScriptRangeLow, cfg.ScriptRangeHigh)
	if err != nil {
		return nil, fmt.Errorf("resolver script range: %w", err)
	}
	return NewResolver(logger, toStrategies(cfg.InputStrategies), toStrategies(cfg.OutputStrategies), cfg.SniffLimit, target), nil
}

func toStrategies(in []config.StrategyConfig) []Strategy {
	out := make([]Strategy, 0, len(in))
	for _, s := range in {
		name := s.Name
		if name == "" {
			name = s.Selector
		}
		out = append(out, Strategy{Name: name, Selector: s.Selector})
	}
	return out
}

// Target returns the script range used by the content sniff.
func (r *Resolver) Target() script.Range { return r.target }

// Resolve returns the first present and visible element for role. It never
// returns a nil handle with a nil error.
func (r *Resolver) Resolve(ctx context.Context, page Page, role Role) (*ElementHandle, error) {
	chain := r.input
	if role == RoleOutput {
		chain = r.output
	}

	tried := make([]string, 0, len(chain)+1)
	for _, s := range chain {
		tried = append(tried, s.Name)
		ref, err := r.firstVisible(ctx, page, s.Selector)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			r.logger.Debug("Strategy failed, trying next.", zap.String("role", string(role)), zap.String("strategy", s.Name), zap.Error(err))
			continue
		}
		if ref != nil {
			r.logger.Debug("Element resolved.", zap.String("role", string(role)), zap.String("strategy", s.Name))
			return &ElementHandle{Role: role, Ref: ref, Strategy: s.Name, Generation: page.Generation()}, nil
		}
	}

	if role == RoleOutput {
		tried = append(tried, StrategyContentSniff)
		ref, err := r.sniff(ctx, page)
		if err != nil && ctx.Err() != nil {
			return nil, err
		}
		if ref != nil {
			r.logger.Debug("Output resolved by content sniff.")
			return &ElementHandle{Role: role, Ref: ref, Strategy: StrategyContentSniff, Generation: page.Generation()}, nil
		}
	}

	return nil, &ResolutionError{Role: role, Tried: tried}
}

// firstVisible checks the first match of selector. A nil ref with a nil
// error means the strategy did not apply.
func (r *Resolver) firstVisible(ctx context.Context, page Page, selector string) (ElementRef, error) {
	refs, err := page.Query(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	visible, err := page.IsVisible(ctx, refs[0])
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, nil
	}
	return refs[0], nil
}

func (r *Resolver) sniff(ctx context.Context, page Page) (ElementRef, error) {
	refs, err := page.Query(ctx, "body *")
	if err != nil {
		return nil, err
	}
	if len(refs) > r.sniffLimit {
		refs = refs[:r.sniffLimit]
	}
	var lastErr error
	for _, ref := range refs {
		text, err := page.TextContent(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if r.target.Contains(text) {
			return ref, nil
		}
	}
	return nil, lastErr
}

// IsResolutionError reports whether err came from an exhausted chain.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
