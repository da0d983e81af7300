// Package browser defines the narrow page capabilities the validator needs
// and the resolver that locates input and output surfaces on an
// uncontrolled page. Concrete drivers live in the subpackages.
package browser

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrElementNotFound is returned when no present and visible element
	// satisfies any strategy for a role.
	ErrElementNotFound = errors.New("element not found")
	// ErrStaleHandle is returned when a handle resolved before a navigation
	// is used after it.
	ErrStaleHandle = errors.New("stale element handle")
)

// ElementRef is a driver-specific reference to a DOM node. Only the driver
// that produced it can interpret it.
type ElementRef any

// Page is the element-level capability set used by the resolver and the
// invoker.
type Page interface {
	// Query returns every element matching a CSS selector, in document
	// order. No matches is not an error.
	Query(ctx context.Context, selector string) ([]ElementRef, error)
	IsVisible(ctx context.Context, ref ElementRef) (bool, error)
	// TextContent returns the text displayed by the element. Form controls
	// report their current value.
	TextContent(ctx context.Context, ref ElementRef) (string, error)
	// Fill clears the element and writes text, firing input events.
	Fill(ctx context.Context, ref ElementRef, text string) error
	// Generation increments on every navigation.
	Generation() uint64
}

// Navigator moves a page between documents.
type Navigator interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	// WaitQuiescent blocks until no network request has been in flight for
	// window.
	WaitQuiescent(ctx context.Context, window time.Duration) error
}

// Screenshotter captures the full page as PNG.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is one isolated page owned by exactly one worker.
type Session interface {
	Page
	Navigator
	Screenshotter
	Close(ctx context.Context) error
}

// Manager owns a browser process and hands out sessions. NewSession is safe
// for concurrent use.
type Manager interface {
	NewSession(ctx context.Context) (Session, error)
	Shutdown(ctx context.Context) error
}

// SessionTracker counts open sessions so a manager can wait for them on
// shutdown. Drivers embed it.
type SessionTracker struct {
	wg sync.WaitGroup
}

// Track registers a session and returns the func that releases it. The
// release func is idempotent.
func (t *SessionTracker) Track() func() {
	t.wg.Add(1)
	var once sync.Once
	return func() { once.Do(t.wg.Done) }
}

// Wait blocks until every tracked session is released or ctx ends. It
// reports whether all sessions completed.
func (t *SessionTracker) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
