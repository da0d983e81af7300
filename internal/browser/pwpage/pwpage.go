// Package pwpage drives Chromium through playwright-go. Browser binaries are
// installed on first use.
package pwpage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/config"
)

const (
	playwrightInstallTimeout = 5 * time.Minute
	launchTimeoutMs          = 60000
	// defaultActionTimeout applies when the caller's ctx has no deadline.
	defaultActionTimeout = 30 * time.Second
)

const jsVisibleText = `el => {
	if (el.tagName === 'TEXTAREA' || el.tagName === 'INPUT') return el.value || '';
	return el.textContent || '';
}`

// Manager lazily starts the playwright driver and one Chromium instance.
type Manager struct {
	browser.SessionTracker

	logger *zap.Logger
	cfg    config.BrowserConfig

	pw      *playwright.Playwright
	browser playwright.Browser

	initOnce sync.Once
	initErr  error
}

var _ browser.Manager = (*Manager)(nil)

// NewManager returns a manager. Initialization is deferred until the first
// session is requested.
func NewManager(logger *zap.Logger, cfg config.BrowserConfig) *Manager {
	m := &Manager{logger: logger.Named("pw_manager"), cfg: cfg}
	m.logger.Info("Browser manager created (initialization deferred).")
	return m
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser...")
		if err := m.ensureInstallation(ctx); err != nil {
			m.initErr = err
			return
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		m.pw = pw

		b, err := pw.Chromium.Launch(launchOptions(m.cfg))
		if err != nil {
			_ = pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.browser = b
		m.logger.Info("Browser manager initialized successfully.", zap.String("browser_version", b.Version()))
	})
	return m.initErr
}

func (m *Manager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	args := append([]string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"}, cfg.Args...)
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     args,
		Timeout:  playwright.Float(launchTimeoutMs),
	}
}

func contextOptions(cfg config.BrowserConfig) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors)}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts.Viewport = &playwright.Size{Width: w, Height: h}
	}
	return opts
}

// NewSession opens an isolated browser context with a single page.
func (m *Manager) NewSession(ctx context.Context) (browser.Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}
	bctx, err := m.browser.NewContext(contextOptions(m.cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &Session{logger: m.logger.Named("session"), bctx: bctx, page: page, release: m.Track()}, nil
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.Wait(ctx) {
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}
	var errs []error
	if m.browser != nil {
		errs = append(errs, m.browser.Close())
	}
	if m.pw != nil {
		errs = append(errs, m.pw.Stop())
	}
	return errors.Join(errs...)
}

// Session is one playwright page in its own browser context.
type Session struct {
	logger     *zap.Logger
	bctx       playwright.BrowserContext
	page       playwright.Page
	generation atomic.Uint64
	closeOnce  sync.Once
	release    func()
}

var _ browser.Session = (*Session)(nil)

// timeoutMs converts the remaining ctx budget into playwright's millisecond
// timeout.
func timeoutMs(ctx context.Context) *float64 {
	d := defaultActionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		d = time.Until(deadline)
		if d < time.Millisecond {
			d = time.Millisecond
		}
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (s *Session) Generation() uint64 { return s.generation.Load() }

func (s *Session) URL(ctx context.Context) (string, error) {
	return s.page.URL(), nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.generation.Add(1)
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   timeoutMs(ctx),
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

// WaitQuiescent waits for playwright's network-idle state, which uses a
// fixed 500ms window; a longer window is topped up with a sleep.
func (s *Session) WaitQuiescent(ctx context.Context, window time.Duration) error {
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutMs(ctx),
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wait for network idle: %w", err)
	}
	if extra := window - 500*time.Millisecond; extra > 0 {
		select {
		case <-time.After(extra):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Session) Query(ctx context.Context, selector string) ([]browser.ElementRef, error) {
	locs, err := s.page.Locator(selector).All()
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	refs := make([]browser.ElementRef, len(locs))
	for i, l := range locs {
		refs[i] = l
	}
	return refs, nil
}

func locator(ref browser.ElementRef) (playwright.Locator, error) {
	l, ok := ref.(playwright.Locator)
	if !ok || l == nil {
		return nil, fmt.Errorf("pwpage: foreign element reference %T", ref)
	}
	return l, nil
}

func (s *Session) IsVisible(ctx context.Context, ref browser.ElementRef) (bool, error) {
	l, err := locator(ref)
	if err != nil {
		return false, err
	}
	return l.IsVisible()
}

func (s *Session) TextContent(ctx context.Context, ref browser.ElementRef) (string, error) {
	l, err := locator(ref)
	if err != nil {
		return "", err
	}
	v, err := l.Evaluate(jsVisibleText, nil, playwright.LocatorEvaluateOptions{Timeout: timeoutMs(ctx)})
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	text, _ := v.(string)
	return text, nil
}

// Fill clears the element and writes text; playwright fires the input
// events.
func (s *Session) Fill(ctx context.Context, ref browser.ElementRef, text string) error {
	l, err := locator(ref)
	if err != nil {
		return err
	}
	if err := l.Fill(text, playwright.LocatorFillOptions{Timeout: timeoutMs(ctx)}); err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  timeoutMs(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return data, nil
}

func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		defer s.release()
		if cerr := s.bctx.Close(); cerr != nil && !errors.Is(cerr, playwright.ErrTargetClosed) {
			err = fmt.Errorf("close browser context: %w", cerr)
		}
	})
	return err
}
