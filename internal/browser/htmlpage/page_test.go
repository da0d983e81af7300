package htmlpage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://example.test/"

const testDoc = `<html><head><title>t</title></head><body>
<textarea id="in"></textarea>
<textarea id="out" readonly>initial</textarea>
<div style="display: none"><span id="ghost">x</span></div>
<input type="hidden" id="token" value="abc">
<div contenteditable="true" id="editor">old</div>
<p id="plain">plain text</p>
</body></html>`

func newTestPage(t *testing.T, opts ...Option) *Page {
	t.Helper()
	p, err := FromReader(testURL, strings.NewReader(testDoc), opts...)
	require.NoError(t, err)
	return p
}

func first(t *testing.T, p *Page, sel string) any {
	t.Helper()
	refs, err := p.Query(context.Background(), sel)
	require.NoError(t, err)
	require.NotEmpty(t, refs, sel)
	return refs[0]
}

func TestNavigateBumpsGeneration(t *testing.T) {
	p := New(WithDocument("a", "<p>a</p>"), WithDocument("b", "<p>b</p>"))
	ctx := context.Background()
	assert.Equal(t, uint64(0), p.Generation())

	require.NoError(t, p.Navigate(ctx, "a"))
	require.NoError(t, p.Navigate(ctx, "b"))
	assert.Equal(t, uint64(2), p.Generation())

	url, err := p.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", url)

	assert.ErrorContains(t, p.Navigate(ctx, "missing"), "no document registered")
}

func TestQuery(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()

	refs, err := p.Query(ctx, "textarea")
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, err = p.Query(ctx, ".absent")
	require.NoError(t, err)
	assert.Empty(t, refs)

	_, err = p.Query(ctx, "textarea[")
	assert.ErrorContains(t, err, "invalid selector")
}

func TestIsVisible(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()

	for sel, want := range map[string]bool{
		"#in":     true,
		"#ghost":  false,
		"#token":  false,
		"title":   false,
		"#plain":  true,
		"#editor": true,
	} {
		got, err := p.IsVisible(ctx, first(t, p, sel))
		require.NoError(t, err)
		assert.Equal(t, want, got, sel)
	}
}

func TestFillAndTextContent(t *testing.T) {
	p := newTestPage(t)
	ctx := context.Background()

	in := first(t, p, "#in")
	require.NoError(t, p.Fill(ctx, in, "mama"))
	text, err := p.TextContent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "mama", text)

	require.NoError(t, p.Fill(ctx, in, "api"))
	text, _ = p.TextContent(ctx, in)
	assert.Equal(t, "api", text, "fill replaces existing content")

	editor := first(t, p, "#editor")
	require.NoError(t, p.Fill(ctx, editor, "new"))
	text, _ = p.TextContent(ctx, editor)
	assert.Equal(t, "new", text)

	assert.ErrorContains(t, p.Fill(ctx, first(t, p, "#out"), "x"), "read-only")
	assert.ErrorContains(t, p.Fill(ctx, first(t, p, "#plain"), "x"), "not editable")
}

func TestOnFillHookWritesOutput(t *testing.T) {
	p := newTestPage(t, WithOnFill(func(p *Page, text string) {
		_ = p.SetText("#out", strings.ToUpper(text))
	}))
	ctx := context.Background()

	require.NoError(t, p.Fill(ctx, first(t, p, "#in"), "mama"))
	text, err := p.TextContent(ctx, first(t, p, "#out"))
	require.NoError(t, err)
	assert.Equal(t, "MAMA", text)
}

func TestWaitQuiescent(t *testing.T) {
	p := newTestPage(t, WithQuiescenceDelay(time.Hour))
	require.NoError(t, p.Navigate(context.Background(), testURL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitQuiescent(ctx, time.Millisecond), context.DeadlineExceeded)

	quiet := newTestPage(t)
	assert.NoError(t, quiet.WaitQuiescent(context.Background(), time.Millisecond))
}

func TestScreenshotIsPNG(t *testing.T) {
	p := newTestPage(t)
	data, err := p.Screenshot(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))
}

func TestManagerTracksSessions(t *testing.T) {
	m := NewManager(WithDocument(testURL, testDoc))
	s, err := m.NewSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, m.Shutdown(ctx), "open session blocks shutdown")

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "close is idempotent")
	assert.NoError(t, m.Shutdown(context.Background()))
}
