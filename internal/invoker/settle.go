package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/config"
)

// ReadFunc resolves the output surface and returns its current text.
type ReadFunc func(ctx context.Context) (string, error)

// Settler decides when the output has finished rendering and returns it.
// baseline is the output text observed before the input was written.
type Settler interface {
	Settle(ctx context.Context, baseline string, read ReadFunc) (string, error)
}

// FixedSettler waits a constant delay and reads once.
type FixedSettler struct {
	Delay time.Duration
}

func (f FixedSettler) Settle(ctx context.Context, _ string, read ReadFunc) (string, error) {
	if err := sleep(ctx, f.Delay); err != nil {
		return "", err
	}
	return read(ctx)
}

// PollSettler reads repeatedly until two consecutive non-empty reads agree
// or Timeout elapses. Timeout is measured from the start of Settle. A stable
// read equal to the baseline is left over from the previous input and only
// wins once Timeout elapses.
type PollSettler struct {
	InitialDelay time.Duration
	Interval     time.Duration
	Timeout      time.Duration
}

func (p PollSettler) Settle(ctx context.Context, baseline string, read ReadFunc) (string, error) {
	stale := strings.TrimSpace(baseline)
	deadline := time.Now().Add(p.Timeout)
	if err := sleep(ctx, p.InitialDelay); err != nil {
		return "", err
	}

	var (
		last     string
		haveRead bool
		lastErr  error
	)
	for {
		text, err := read(ctx)
		switch {
		case err == nil:
			if trimmed := strings.TrimSpace(text); haveRead && trimmed != "" && text == last && trimmed != stale {
				return text, nil
			}
			last, haveRead, lastErr = text, true, nil
		case ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, browser.ErrElementNotFound), errors.Is(err, browser.ErrStaleHandle):
			lastErr = err
		default:
			return "", err
		}

		if !time.Now().Add(p.Interval).Before(deadline) {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return "", err
		}
	}

	if haveRead {
		return last, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("output never read: %w", browser.ErrElementNotFound)
	}
	return "", lastErr
}

// NewSettler builds the settler selected by cfg.SettleMode.
func NewSettler(cfg config.InvokerConfig) (Settler, error) {
	switch cfg.SettleMode {
	case config.SettleFixed:
		return FixedSettler{Delay: cfg.SettleDelay}, nil
	case config.SettlePoll, "":
		return PollSettler{InitialDelay: cfg.PollInitialDelay, Interval: cfg.PollInterval, Timeout: cfg.PollTimeout}, nil
	default:
		return nil, fmt.Errorf("unknown settle mode %q", cfg.SettleMode)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
