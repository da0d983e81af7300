package cdp

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const networkIdleCheckFrequency = 250 * time.Millisecond

// networkTracker counts in-flight requests for one tab.
type networkTracker struct {
	logger *zap.Logger

	mu       sync.RWMutex
	inflight map[network.RequestID]struct{}
}

func newNetworkTracker(logger *zap.Logger) *networkTracker {
	return &networkTracker{
		logger:   logger.Named("network"),
		inflight: make(map[network.RequestID]struct{}),
	}
}

// listen attaches the tracker to the tab behind ctx. The network domain must
// be enabled separately.
func (n *networkTracker) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			n.mu.Lock()
			n.inflight[ev.RequestID] = struct{}{}
			n.mu.Unlock()
		case *network.EventLoadingFinished:
			n.done(ev.RequestID)
		case *network.EventLoadingFailed:
			n.done(ev.RequestID)
		}
	})
}

func (n *networkTracker) done(id network.RequestID) {
	n.mu.Lock()
	delete(n.inflight, id)
	n.mu.Unlock()
}

func (n *networkTracker) active() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.inflight)
}

// reset forgets requests from the previous document.
func (n *networkTracker) reset() {
	n.mu.Lock()
	n.inflight = make(map[network.RequestID]struct{})
	n.mu.Unlock()
}

// waitIdle returns once no request has been in flight for quietPeriod.
func (n *networkTracker) waitIdle(ctx context.Context, quietPeriod time.Duration) error {
	n.logger.Debug("Waiting for network to become idle.")

	timer := time.NewTimer(quietPeriod)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	isIdle := false
	ticker := time.NewTicker(networkIdleCheckFrequency)
	defer ticker.Stop()

	check := func() {
		if n.active() > 0 {
			if isIdle {
				// Drain if the timer fired while we were checking.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				isIdle = false
			}
			return
		}
		if !isIdle {
			timer.Reset(quietPeriod)
			isIdle = true
		}
	}
	check()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			check()
		case <-timer.C:
			n.logger.Debug("Network is idle.")
			return nil
		}
	}
}
