// Package invoker drives one transliteration through the target page:
// reach the page, type the input, wait for the output and read it.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/config"
	"github.com/xkilldash9x/singlish-check/internal/corpus"
)

// ErrTimeoutExceeded is returned when the page does not become reachable
// and quiescent within the navigation budget.
var ErrTimeoutExceeded = errors.New("timeout exceeded")

// Invoker performs single-shot invocations. It holds no per-page state and
// is safe to share between workers.
type Invoker struct {
	logger   *zap.Logger
	resolver *browser.Resolver
	settler  Settler

	targetURL         string
	targetMatch       string
	navigationTimeout time.Duration
	quiescenceWindow  time.Duration
}

// New builds an invoker from the target and invoker sections.
func New(logger *zap.Logger, resolver *browser.Resolver, target config.TargetConfig, cfg config.InvokerConfig) (*Invoker, error) {
	settler, err := NewSettler(cfg)
	if err != nil {
		return nil, err
	}
	match := target.Match
	if match == "" {
		match = target.URL
	}
	return &Invoker{
		logger:            logger.Named("invoker"),
		resolver:          resolver,
		settler:           settler,
		targetURL:         target.URL,
		targetMatch:       match,
		navigationTimeout: cfg.NavigationTimeout,
		quiescenceWindow:  cfg.QuiescenceWindow,
	}, nil
}

// Invoke types rec.Input into the page and returns the trimmed output.
func (i *Invoker) Invoke(ctx context.Context, s browser.Session, rec corpus.Record) (string, error) {
	log := i.logger.With(zap.String("scenario", rec.ID))

	if err := i.ensureTarget(ctx, s, log); err != nil {
		return "", err
	}

	// The page is reused across scenarios, so the output may still hold the
	// previous conversion.
	baseline, err := i.readOutput(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		baseline = ""
	}

	if err := i.fill(ctx, s, rec.Input); err != nil {
		return "", err
	}
	log.Debug("Input written, waiting for output to settle.", zap.Bool("has_baseline", baseline != ""))

	text, err := i.settler.Settle(ctx, baseline, func(ctx context.Context) (string, error) {
		return i.readOutput(ctx, s)
	})
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ensureTarget navigates only when the page is not already on the target.
func (i *Invoker) ensureTarget(ctx context.Context, s browser.Session, log *zap.Logger) error {
	current, err := s.URL(ctx)
	if err != nil {
		return fmt.Errorf("read current url: %w", err)
	}
	if strings.Contains(current, i.targetMatch) {
		return nil
	}

	log.Debug("Navigating to target.", zap.String("url", i.targetURL))
	navCtx, cancel := context.WithTimeout(ctx, i.navigationTimeout)
	defer cancel()

	err = s.Navigate(navCtx, i.targetURL)
	if err == nil {
		err = s.WaitQuiescent(navCtx, i.quiescenceWindow)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: target not quiescent within %s: %w", ErrTimeoutExceeded, i.navigationTimeout, navCtx.Err())
	}
	return fmt.Errorf("open target: %w", err)
}

// fill resolves the input and writes text, re-resolving once if the handle
// went stale between resolution and use.
func (i *Invoker) fill(ctx context.Context, s browser.Session, text string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		h, err := i.resolver.Resolve(ctx, s, browser.RoleInput)
		if err != nil {
			return fmt.Errorf("resolve input: %w", err)
		}
		if err := h.Check(s); err != nil {
			lastErr = err
			continue
		}
		err = s.Fill(ctx, h.Ref, text)
		if err == nil {
			return nil
		}
		if !errors.Is(err, browser.ErrStaleHandle) {
			return fmt.Errorf("fill input: %w", err)
		}
		i.logger.Debug("Input handle went stale, re-resolving.", zap.Error(err))
		lastErr = err
	}
	return fmt.Errorf("fill input: %w", lastErr)
}

func (i *Invoker) readOutput(ctx context.Context, s browser.Session) (string, error) {
	h, err := i.resolver.Resolve(ctx, s, browser.RoleOutput)
	if err != nil {
		return "", err
	}
	if err := h.Check(s); err != nil {
		return "", err
	}
	return s.TextContent(ctx, h.Ref)
}
