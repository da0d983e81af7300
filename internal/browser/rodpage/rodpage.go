// Package rodpage drives Chrome with go-rod. It can launch its own browser
// or attach to one that is already running.
package rodpage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/config"
)

const jsVisible = `() => {
	const rect = this.getBoundingClientRect();
	const style = window.getComputedStyle(this);
	return rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
}`

const jsText = `() => {
	if (this.tagName === 'TEXTAREA' || this.tagName === 'INPUT') return this.value || '';
	return this.textContent || '';
}`

// Manager owns a rod browser connection.
type Manager struct {
	browser.SessionTracker

	logger   *zap.Logger
	cfg      config.BrowserConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
}

var _ browser.Manager = (*Manager)(nil)

// NewManager launches Chrome, or connects to cfg.ControlURL when set.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	m := &Manager{logger: logger.Named("rod_manager"), cfg: cfg}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		m.launcher = newLauncher(cfg)
		u, err := m.launcher.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch Chrome: %w", err)
		}
		controlURL = u
		m.logger.Info("Chrome launched.", zap.String("control_url", controlURL))
	} else {
		m.logger.Info("Attaching to running browser.", zap.String("control_url", controlURL))
	}

	m.browser = rod.New().ControlURL(controlURL)
	if err := m.browser.Connect(); err != nil {
		m.cleanup()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}
	if cfg.IgnoreTLSErrors {
		if err := m.browser.IgnoreCertErrors(true); err != nil {
			m.logger.Warn("Could not disable certificate checks.", zap.Error(err))
		}
	}
	return m, nil
}

func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	for _, arg := range cfg.Args {
		parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
		if len(parts) == 2 {
			l = l.Set(flags.Flag(parts[0]), parts[1])
		} else {
			l = l.Set(flags.Flag(parts[0]))
		}
	}
	return l
}

func (m *Manager) NewSession(ctx context.Context) (browser.Session, error) {
	page, err := m.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	// Detach the page from the creation ctx; calls bind their own.
	page = page.Context(context.Background())
	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: w, Height: h, DeviceScaleFactor: 1}); err != nil {
			_ = page.Close()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}
	return &Session{logger: m.logger.Named("session"), page: page, release: m.Track()}, nil
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.Wait(ctx) {
		m.logger.Warn("Shutdown deadline exceeded. Closing browser with sessions open.", zap.Error(ctx.Err()))
	}
	var err error
	if m.launcher != nil {
		err = m.browser.Close()
	}
	m.cleanup()
	return err
}

func (m *Manager) cleanup() {
	if m.launcher != nil {
		m.launcher.Cleanup()
	}
}

// Session is one rod page.
type Session struct {
	logger     *zap.Logger
	page       *rod.Page
	generation atomic.Uint64
	closeOnce  sync.Once
	release    func()
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Generation() uint64 { return s.generation.Load() }

func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("read page info: %w", err)
	}
	return info.URL, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.generation.Add(1)
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}
	return nil
}

// WaitQuiescent waits for window without any request being sent. Requests
// that started before the call are not tracked.
func (s *Session) WaitQuiescent(ctx context.Context, window time.Duration) error {
	wait := s.page.Context(ctx).WaitRequestIdle(window, nil, nil, nil)
	wait()
	return ctx.Err()
}

func (s *Session) Query(ctx context.Context, selector string) ([]browser.ElementRef, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	refs := make([]browser.ElementRef, len(els))
	for i, el := range els {
		refs[i] = el
	}
	return refs, nil
}

func element(ctx context.Context, ref browser.ElementRef) (*rod.Element, error) {
	el, ok := ref.(*rod.Element)
	if !ok || el == nil {
		return nil, fmt.Errorf("rodpage: foreign element reference %T", ref)
	}
	return el.Context(ctx), nil
}

func (s *Session) IsVisible(ctx context.Context, ref browser.ElementRef) (bool, error) {
	el, err := element(ctx, ref)
	if err != nil {
		return false, err
	}
	res, err := el.Eval(jsVisible)
	if err != nil {
		return false, fmt.Errorf("check visibility: %w", err)
	}
	return res.Value.Bool(), nil
}

func (s *Session) TextContent(ctx context.Context, ref browser.ElementRef) (string, error) {
	el, err := element(ctx, ref)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(jsText)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return res.Value.Str(), nil
}

// Fill selects the existing content and types over it.
func (s *Session) Fill(ctx context.Context, ref browser.ElementRef, text string) error {
	el, err := element(ctx, ref)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select existing text: %w", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input text: %w", err)
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return data, nil
}

func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		defer s.release()
		if cerr := s.page.Context(ctx).Close(); cerr != nil {
			err = fmt.Errorf("close page: %w", cerr)
		}
	})
	return err
}
