package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/singlish-check/internal/browser"
)

// nodeRef addresses an element by selector and position. It is only
// meaningful within the generation it was produced in.
type nodeRef struct {
	Selector string
	Index    int
}

// Session is one browser tab driven over CDP.
type Session struct {
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	network *networkTracker

	generation atomic.Uint64
	closeOnce  sync.Once
	release    func()
}

var _ browser.Session = (*Session)(nil)

func newSession(allocCtx context.Context, logger *zap.Logger, viewport map[string]int, release func()) (*Session, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)
	s := &Session{
		logger:  logger,
		ctx:     tabCtx,
		cancel:  cancel,
		network: newNetworkTracker(logger),
		release: release,
	}
	s.network.listen(tabCtx)

	actions := []chromedp.Action{network.Enable()}
	if w, h := viewport["width"], viewport["height"]; w > 0 && h > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(w), int64(h)))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		release()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return s, nil
}

// run executes actions on the tab, bounded by both the tab's lifetime and
// the caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func evalOpts(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
}

func (s *Session) Generation() uint64 { return s.generation.Load() }

func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.network.reset()
	// Any handle from before this point is stale whether or not the
	// navigation succeeds.
	s.generation.Add(1)
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) WaitQuiescent(ctx context.Context, window time.Duration) error {
	waitCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return s.network.waitIdle(waitCtx, window)
}

func (s *Session) Query(ctx context.Context, selector string) ([]browser.ElementRef, error) {
	var count int
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(jsCount, jsonEncode(selector)), &count, evalOpts)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	refs := make([]browser.ElementRef, count)
	for i := range refs {
		refs[i] = nodeRef{Selector: selector, Index: i}
	}
	return refs, nil
}

func (s *Session) IsVisible(ctx context.Context, ref browser.ElementRef) (bool, error) {
	var visible *bool
	if err := s.evalOn(ctx, ref, jsVisible, &visible); err != nil {
		return false, err
	}
	return *visible, nil
}

func (s *Session) TextContent(ctx context.Context, ref browser.ElementRef) (string, error) {
	var text *string
	if err := s.evalOn(ctx, ref, jsText, &text); err != nil {
		return "", err
	}
	return *text, nil
}

func (s *Session) Fill(ctx context.Context, ref browser.ElementRef, text string) error {
	var ok *bool
	return s.evalOn(ctx, ref, fmt.Sprintf(jsFill, jsonEncode(text)), &ok)
}

// evalOn runs body against the referenced element. res must be a pointer to
// a pointer so a vanished element (null) can be told apart from a zero value.
func (s *Session) evalOn(ctx context.Context, ref browser.ElementRef, body string, res any) error {
	nr, ok := ref.(nodeRef)
	if !ok {
		return fmt.Errorf("cdp: foreign element reference %T", ref)
	}
	if err := s.run(ctx, chromedp.Evaluate(elementScript(nr, body), res, evalOpts)); err != nil {
		return fmt.Errorf("evaluate on %s[%d]: %w", nr.Selector, nr.Index, err)
	}
	if isNilTarget(res) {
		return fmt.Errorf("element %s[%d] is gone: %w", nr.Selector, nr.Index, browser.ErrStaleHandle)
	}
	return nil
}

func isNilTarget(res any) bool {
	switch v := res.(type) {
	case **bool:
		return *v == nil
	case **string:
		return *v == nil
	}
	return false
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 selects PNG; anything lower produces JPEG.
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close closes the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		defer s.release()
		done := make(chan struct{})
		go func() {
			// Cancelling a chromedp tab context closes the target.
			s.cancel()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("close tab: %w", ctx.Err())
		}
		if cerr := s.ctx.Err(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			s.logger.Debug("Tab context ended abnormally.", zap.Error(cerr))
		}
	})
	return err
}
