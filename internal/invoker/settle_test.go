package invoker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/singlish-check/internal/browser"
)

type readResult struct {
	text string
	err  error
}

// scripted replays results in order and repeats the last one.
func scripted(results ...readResult) (ReadFunc, func() int) {
	var mu sync.Mutex
	calls := 0
	return func(context.Context) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			r := results[min(calls, len(results)-1)]
			calls++
			return r.text, r.err
		}, func() int {
			mu.Lock()
			defer mu.Unlock()
			return calls
		}
}

func fastPoll() PollSettler {
	return PollSettler{InitialDelay: time.Millisecond, Interval: 2 * time.Millisecond, Timeout: 100 * time.Millisecond}
}

func TestPollSettler(t *testing.T) {
	notFound := fmt.Errorf("resolve: %w", browser.ErrElementNotFound)

	testCases := []struct {
		name    string
		reads   []readResult
		want    string
		wantErr error
	}{
		{
			name:  "stable after growth",
			reads: []readResult{{text: ""}, {text: "ම"}, {text: "මම"}, {text: "මම"}},
			want:  "මම",
		},
		{
			name:  "empty reads never count as stable",
			reads: []readResult{{text: ""}, {text: ""}, {text: ""}, {text: "ok"}, {text: "ok"}},
			want:  "ok",
		},
		{
			name:  "not found until output appears",
			reads: []readResult{{err: notFound}, {err: notFound}, {text: "x"}, {text: "x"}},
			want:  "x",
		},
		{
			name:  "never stable returns last read on timeout",
			reads: []readResult{{text: ""}},
			want:  "",
		},
		{
			name:    "never resolvable",
			reads:   []readResult{{err: notFound}},
			wantErr: browser.ErrElementNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			read, _ := scripted(tc.reads...)
			got, err := fastPoll().Settle(context.Background(), "", read)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPollSettlerStopsOnDriverError(t *testing.T) {
	boom := errors.New("target crashed")
	read, calls := scripted(readResult{text: "a"}, readResult{err: boom})

	_, err := fastPoll().Settle(context.Background(), "", read)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls())
}

func TestPollSettlerHonoursContext(t *testing.T) {
	read, _ := scripted(readResult{text: ""})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	slow := PollSettler{InitialDelay: time.Millisecond, Interval: time.Millisecond, Timeout: time.Hour}
	_, err := slow.Settle(ctx, "", read)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFixedSettlerReadsOnce(t *testing.T) {
	read, calls := scripted(readResult{text: "මම"})
	start := time.Now()

	got, err := FixedSettler{Delay: 15 * time.Millisecond}.Settle(context.Background(), "අපි", read)
	require.NoError(t, err)
	assert.Equal(t, "මම", got)
	assert.Equal(t, 1, calls())
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPollSettlerWaitsPastBaseline(t *testing.T) {
	previous := "මම ගෙදර යනවා"

	t.Run("leftover output is not taken as stable", func(t *testing.T) {
		read, calls := scripted(
			readResult{text: previous}, readResult{text: previous}, readResult{text: previous},
			readResult{text: "මුදලාලි"}, readResult{text: "මුදලාලි"},
		)
		got, err := fastPoll().Settle(context.Background(), previous, read)
		require.NoError(t, err)
		assert.Equal(t, "මුදලාලි", got)
		assert.Equal(t, 5, calls())
	})

	t.Run("output equal to baseline wins on timeout", func(t *testing.T) {
		read, calls := scripted(readResult{text: " " + previous + " "})
		start := time.Now()
		got, err := fastPoll().Settle(context.Background(), previous, read)
		require.NoError(t, err)
		assert.Equal(t, " "+previous+" ", got)
		assert.Greater(t, calls(), 2)
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})
}
