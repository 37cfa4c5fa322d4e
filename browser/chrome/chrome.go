// Package chrome is the live dom backend: a headless Chrome tab driven over
// the DevTools protocol with chromedp.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/pevans/civicfetch/dom"
)

// Defaults for an anonymous desktop visitor.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultLocale    = "en-US"
	DefaultTimezone  = "America/Denver"
	DefaultWidth     = 1920
	DefaultHeight    = 1080
)

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// Options configures the browser launched for each session.
type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	Locale    string
	Timezone  string
	Width     int
	Height    int
}

// DefaultOptions returns headless settings that look like an ordinary
// desktop browser.
func DefaultOptions() Options {
	return Options{
		Headless:  true,
		UserAgent: DefaultUserAgent,
		Locale:    DefaultLocale,
		Timezone:  DefaultTimezone,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
	}
}

// Backend launches a fresh browser per session.
type Backend struct {
	opts Options
}

// New creates a chromedp backend. Zero-valued options fall back to the
// defaults.
func New(opts Options) *Backend {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Locale == "" {
		opts.Locale = def.Locale
	}
	if opts.Timezone == "" {
		opts.Timezone = def.Timezone
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	return &Backend{opts: opts}
}

// Name returns "chromedp".
func (b *Backend) Name() string { return "chromedp" }

// Open launches the browser, applies the anonymising overrides and returns
// a session holding one tab. The browser lives until Close or until ctx is
// cancelled.
func (b *Backend) Open(ctx context.Context) (dom.Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.opts.UserAgent),
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &session{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx); err != nil {
			return fmt.Errorf("install init script: %w", err)
		}
		if err := emulation.SetTimezoneOverride(b.opts.Timezone).Do(ctx); err != nil {
			return fmt.Errorf("set timezone: %w", err)
		}
		if err := emulation.SetLocaleOverride().WithLocale(b.opts.Locale).Do(ctx); err != nil {
			return fmt.Errorf("set locale: %w", err)
		}
		return emulation.SetDeviceMetricsOverride(int64(b.opts.Width), int64(b.opts.Height), 1, false).Do(ctx)
	}))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s.page = newPage(tabCtx)
	return s, nil
}

type session struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	page        *Page
}

func (s *session) Page() dom.Page { return s.page }

// Close shuts the browser down. It is safe to call more than once.
func (s *session) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.cancelTab()
	s.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Page is one chromedp tab.
type Page struct {
	tabCtx    context.Context
	tree      dom.TreeAccessor
	downloads *downloadWatcher
}

func newPage(tabCtx context.Context) *Page {
	p := &Page{tabCtx: tabCtx, downloads: newDownloadWatcher()}
	p.tree = dom.Chain{
		&fiberTree{page: p, prefix: "__reactFiber"},
		&fiberTree{page: p, prefix: "__reactInternalInstance"},
	}
	chromedp.ListenTarget(tabCtx, p.downloads.handle)
	return p
}

// run executes actions on the tab, aborting when either the tab or ctx is
// done.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && waitCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("wait for %s: %w", selector, dom.ErrTimeout)
	}
	if err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (p *Page) Find(ctx context.Context, selector string) ([]dom.Element, error) {
	return p.query(ctx, selector)
}

func (p *Page) ClickOutside(ctx context.Context) error {
	return p.run(ctx, chromedp.MouseClickXY(0, 0))
}

func (p *Page) Tree() dom.TreeAccessor { return p.tree }

func (p *Page) ExpectDownloads(ctx context.Context, dir string) error {
	return p.downloads.expect(ctx, p, dir)
}

func (p *Page) WaitDownload(ctx context.Context, timeout time.Duration) (string, error) {
	return p.downloads.wait(ctx, timeout)
}
