package htmlpage

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/singlish-check/internal/browser"
)

// Manager hands out a fresh static page per session.
type Manager struct {
	browser.SessionTracker
	opts []Option
}

var _ browser.Manager = (*Manager)(nil)

// NewManager returns a manager whose pages are built with opts.
func NewManager(opts ...Option) *Manager {
	return &Manager{opts: opts}
}

func (m *Manager) NewSession(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("new static session: %w", err)
	}
	return &trackedPage{Page: New(m.opts...), release: m.Track()}, nil
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.Wait(ctx) {
		return fmt.Errorf("static sessions still open: %w", ctx.Err())
	}
	return nil
}

type trackedPage struct {
	*Page
	release func()
}

func (t *trackedPage) Close(ctx context.Context) error {
	defer t.release()
	return t.Page.Close(ctx)
}
