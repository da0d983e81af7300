// Package htmlpage is a static, in-memory browser.Session backed by goquery.
// It parses documents without executing scripts, which makes it useful for
// inspecting saved pages and as a deterministic test double.
package htmlpage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/singlish-check/internal/browser"
)

// FillFunc runs after Fill writes text. It may call SetText to emulate the
// page producing output, synchronously or from another goroutine.
type FillFunc func(p *Page, text string)

// Option configures a Page.
type Option func(*Page)

// WithDocument registers the markup served for url.
func WithDocument(url, markup string) Option {
	return func(p *Page) { p.docs[url] = markup }
}

// WithOnFill installs a hook that runs after every Fill.
func WithOnFill(fn FillFunc) Option {
	return func(p *Page) { p.onFill = fn }
}

// WithQuiescenceDelay makes WaitQuiescent behave as if the network stayed
// busy for d after each navigation.
func WithQuiescenceDelay(d time.Duration) Option {
	return func(p *Page) { p.busyFor = d }
}

// Page implements browser.Session over parsed HTML.
type Page struct {
	mu         sync.Mutex
	docs       map[string]string
	doc        *goquery.Document
	url        string
	generation uint64
	values     map[*html.Node]string
	onFill     FillFunc
	busyFor    time.Duration
	navigated  time.Time
	closed     bool
}

var _ browser.Session = (*Page)(nil)

// New returns a page on about:blank.
func New(opts ...Option) *Page {
	p := &Page{docs: make(map[string]string), values: make(map[*html.Node]string), url: "about:blank"}
	for _, opt := range opts {
		opt(p)
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	p.doc = doc
	return p
}

// FromReader returns a page already showing the document read from r.
func FromReader(url string, r io.Reader, opts ...Option) (*Page, error) {
	markup, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	p := New(append([]Option{WithDocument(url, string(markup))}, opts...)...)
	if err := p.Navigate(context.Background(), url); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Page) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Navigate swaps in the registered document for url.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("page is closed")
	}
	markup, ok := p.docs[url]
	if !ok {
		return fmt.Errorf("navigate to %q: no document registered", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse document for %q: %w", url, err)
	}
	p.doc = doc
	p.url = url
	p.generation++
	p.values = make(map[*html.Node]string)
	p.navigated = time.Now()
	return nil
}

func (p *Page) WaitQuiescent(ctx context.Context, window time.Duration) error {
	p.mu.Lock()
	idleAt := p.navigated.Add(p.busyFor + window)
	p.mu.Unlock()

	wait := time.Until(idleAt)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Page) Query(ctx context.Context, selector string) ([]browser.ElementRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var refs []browser.ElementRef
	p.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		refs = append(refs, s.Get(0))
	})
	return refs, nil
}

func (p *Page) IsVisible(ctx context.Context, ref browser.ElementRef) (bool, error) {
	n, err := nodeOf(ref)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n.Type == html.ElementNode && n.Data == "input" && strings.EqualFold(attr(n, "type"), "hidden") {
		return false, nil
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.Data {
		case "head", "script", "style", "template", "noscript":
			return false, nil
		}
		if _, hidden := lookupAttr(cur, "hidden"); hidden {
			return false, nil
		}
		if hiddenByStyle(attr(cur, "style")) {
			return false, nil
		}
	}
	return true, nil
}

func (p *Page) TextContent(ctx context.Context, ref browser.ElementRef) (string, error) {
	n, err := nodeOf(ref)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if isFormControl(n) {
		if v, ok := p.values[n]; ok {
			return v, nil
		}
		if n.Data == "input" {
			return attr(n, "value"), nil
		}
	}
	return goquery.NewDocumentFromNode(n).Text(), nil
}

// Fill replaces the element's content. Only form controls and
// contenteditable elements accept text.
func (p *Page) Fill(ctx context.Context, ref browser.ElementRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := nodeOf(ref)
	if err != nil {
		return err
	}

	p.mu.Lock()
	switch {
	case isFormControl(n):
		if _, ro := lookupAttr(n, "readonly"); ro {
			p.mu.Unlock()
			return fmt.Errorf("fill <%s>: element is read-only", n.Data)
		}
		p.values[n] = text
	case strings.EqualFold(attr(n, "contenteditable"), "true"):
		replaceChildren(n, text)
	default:
		p.mu.Unlock()
		return fmt.Errorf("fill <%s>: element is not editable", n.Data)
	}
	hook := p.onFill
	p.mu.Unlock()

	if hook != nil {
		hook(p, text)
	}
	return nil
}

// SetText writes text into every element matching selector, as page script
// would.
func (p *Page) SetText(selector, text string) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if isFormControl(n) {
			p.values[n] = text
			return
		}
		replaceChildren(n, text)
	})
	return nil
}

// HTML returns the current serialized document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

// Screenshot returns a blank 1x1 PNG; a static page has nothing to render.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode placeholder screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func nodeOf(ref browser.ElementRef) (*html.Node, error) {
	n, ok := ref.(*html.Node)
	if !ok || n == nil {
		return nil, fmt.Errorf("htmlpage: foreign element reference %T", ref)
	}
	return n, nil
}

func isFormControl(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.Data == "input" || n.Data == "textarea")
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hiddenByStyle(style string) bool {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(s, "display:none") ||
		strings.Contains(s, "visibility:hidden") ||
		strings.Contains(s, "opacity:0;") || strings.HasSuffix(s, "opacity:0")
}

func replaceChildren(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
