// Package static is a dom backend over HTML snapshots parsed with goquery.
// It renders nothing and runs no scripts: the page is whatever HTML the
// source returns, and every element in it counts as visible. It serves saved
// portal pages and server-rendered mirrors, and it drives the portal tests.
package static

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/civicfetch/dom"
)

// Backend opens sessions over a Source.
type Backend struct {
	source Source
	tree   dom.TreeAccessor
}

// Option configures a Backend.
type Option func(*Backend)

// WithTree supplies a component-tree accessor. Without one the backend
// reports no framework nodes.
func WithTree(tree dom.TreeAccessor) Option {
	return func(b *Backend) {
		if tree != nil {
			b.tree = tree
		}
	}
}

// New creates a static backend reading pages from src.
func New(src Source, opts ...Option) *Backend {
	b := &Backend{source: src, tree: dom.NoTree{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "static".
func (b *Backend) Name() string { return "static" }

// Open returns a session with one empty page.
func (b *Backend) Open(_ context.Context) (dom.Session, error) {
	return &session{page: &Page{source: b.source, tree: b.tree}}, nil
}

type session struct {
	page *Page
}

func (s *session) Page() dom.Page { return s.page }
func (s *session) Close() error   { return nil }

// Page is a parsed HTML document.
type Page struct {
	source Source
	tree   dom.TreeAccessor
	doc    *goquery.Document
	url    string

	mu     sync.Mutex
	clicks []string
}

// NewPage parses html into a page that is already loaded. tree may be nil.
func NewPage(html string, tree dom.TreeAccessor) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if tree == nil {
		tree = dom.NoTree{}
	}
	return &Page{doc: doc, tree: tree}, nil
}

// Navigate loads url from the source and replaces the document.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.source == nil {
		return fmt.Errorf("navigate %s: %w", url, dom.ErrUnsupported)
	}

	body, err := p.source.Load(ctx, url)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}

	p.doc = doc
	p.url = url
	return nil
}

// URL returns the URL of the last navigation.
func (p *Page) URL() string { return p.url }

// WaitVisible succeeds immediately when selector matches and times out
// immediately otherwise, since a snapshot never changes.
func (p *Page) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	if p.doc == nil {
		return fmt.Errorf("wait for %s: no document loaded", selector)
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("wait for %s: %w", selector, dom.ErrTimeout)
	}
	return nil
}

// Find returns all elements matching selector.
func (p *Page) Find(_ context.Context, selector string) ([]dom.Element, error) {
	if p.doc == nil {
		return nil, fmt.Errorf("find %s: no document loaded", selector)
	}
	return p.wrap(p.doc.Find(selector)), nil
}

// ClickOutside records a click on the page origin.
func (p *Page) ClickOutside(_ context.Context) error {
	p.record("@outside")
	return nil
}

// Tree returns the configured component-tree accessor.
func (p *Page) Tree() dom.TreeAccessor { return p.tree }

// Clicks returns a description of every click so far: the clicked
// element's id (or tag name when it has none), or "@outside".
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *Page) record(target string) {
	p.mu.Lock()
	p.clicks = append(p.clicks, target)
	p.mu.Unlock()
}

func (p *Page) wrap(sel *goquery.Selection) []dom.Element {
	elems := make([]dom.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elems = append(elems, &Element{page: p, sel: s})
	})
	return elems
}

// Element wraps a single goquery node.
type Element struct {
	page *Page
	sel  *goquery.Selection
}

// Selection exposes the underlying goquery selection.
func (e *Element) Selection() *goquery.Selection { return e.sel }

func (e *Element) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *Element) Attrs(_ context.Context) (map[string]string, error) {
	attrs := map[string]string{}
	if len(e.sel.Nodes) == 0 {
		return attrs, nil
	}
	for _, a := range e.sel.Nodes[0].Attr {
		attrs[a.Key] = a.Val
	}
	return attrs, nil
}

func (e *Element) Text(_ context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *Element) Find(_ context.Context, selector string) ([]dom.Element, error) {
	return e.page.wrap(e.sel.Find(selector)), nil
}

// Click records the click. Snapshots already contain any menu the click
// would open.
func (e *Element) Click(_ context.Context) error {
	target := goquery.NodeName(e.sel)
	if id, ok := e.sel.Attr("id"); ok && id != "" {
		target = id
	}
	e.page.record(target)
	return nil
}
