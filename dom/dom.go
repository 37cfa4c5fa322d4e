// Package dom defines the capabilities civicfetch needs from a browser
// driver: navigate, wait, query, read, click, and reach the client
// framework's component tree. The portal logic is written against these
// interfaces only, so any driver that satisfies them can back a scrape.
package dom

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a wait exceeds its budget.
	ErrTimeout = errors.New("timed out waiting for element")

	// ErrUnsupported is returned when a backend cannot perform an
	// operation (e.g. a static snapshot cannot trigger a download).
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Element is a handle to one rendered DOM node.
type Element interface {
	// Attr returns the named attribute and whether it is present.
	Attr(ctx context.Context, name string) (string, bool, error)

	// Attrs returns every attribute on the element.
	Attrs(ctx context.Context) (map[string]string, error)

	// Text returns the element's text content.
	Text(ctx context.Context) (string, error)

	// Find returns descendants matching a CSS selector, in document order.
	// No match is an empty slice, not an error.
	Find(ctx context.Context, selector string) ([]Element, error)

	// Click activates the element.
	Click(ctx context.Context) error
}

// Page is one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until selector matches a visible element or the
	// timeout elapses, in which case the error wraps ErrTimeout.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Find returns elements matching a CSS selector anywhere on the page.
	Find(ctx context.Context, selector string) ([]Element, error)

	// ClickOutside clicks the page origin, dismissing open menus.
	ClickOutside(ctx context.Context) error

	// Tree returns the accessor for the client framework's component tree.
	Tree() TreeAccessor
}

// Downloads is implemented by pages that can persist files started by a
// click.
type Downloads interface {
	// ExpectDownloads routes subsequent downloads into dir.
	ExpectDownloads(ctx context.Context, dir string) error

	// WaitDownload blocks until the next download completes and returns
	// the saved file's name.
	WaitDownload(ctx context.Context, timeout time.Duration) (string, error)
}

// Session is a scoped browser session. Close must be called on every exit
// path.
type Session interface {
	Page() Page
	Close() error
}

// Backend opens browser sessions.
type Backend interface {
	Name() string
	Open(ctx context.Context) (Session, error)
}

// Find1 returns the first element matching selector under el, or nil.
func Find1(ctx context.Context, el Element, selector string) (Element, error) {
	found, err := el.Find(ctx, selector)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// PageFind1 returns the first element matching selector on the page, or nil.
func PageFind1(ctx context.Context, p Page, selector string) (Element, error) {
	found, err := p.Find(ctx, selector)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}
