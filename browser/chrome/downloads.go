package chrome

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"

	"github.com/pevans/civicfetch/dom"
)

type downloadResult struct {
	guid string
	ok   bool
}

// downloadWatcher tracks browser-initiated downloads. Chrome writes each
// file under its GUID and the watcher renames it to the suggested name once
// it completes. A suggested name already used since the last expect gets a
// -2, -3, ... suffix instead of replacing the earlier file.
type downloadWatcher struct {
	mu    sync.Mutex
	dir   string
	names map[string]string
	taken map[string]bool
	done  chan downloadResult
}

func newDownloadWatcher() *downloadWatcher {
	return &downloadWatcher{
		names: map[string]string{},
		taken: map[string]bool{},
		done:  make(chan downloadResult, 16),
	}
}

func (w *downloadWatcher) handle(ev any) {
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		w.mu.Lock()
		w.names[e.GUID] = e.SuggestedFilename
		w.mu.Unlock()
	case *browser.EventDownloadProgress:
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			w.push(downloadResult{guid: e.GUID, ok: true})
		case browser.DownloadProgressStateCanceled:
			w.push(downloadResult{guid: e.GUID})
		}
	}
}

// push never blocks the event loop.
func (w *downloadWatcher) push(r downloadResult) {
	select {
	case w.done <- r:
	default:
	}
}

func (w *downloadWatcher) expect(ctx context.Context, p *Page, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	w.mu.Lock()
	w.dir = abs
	w.taken = map[string]bool{}
	w.mu.Unlock()

	return p.run(ctx, browser.
		SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(abs).
		WithEventsEnabled(true))
}

func (w *downloadWatcher) wait(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("download did not start: %w", dom.ErrTimeout)
	case r := <-w.done:
		w.mu.Lock()
		name := w.names[r.guid]
		delete(w.names, r.guid)
		dir := w.dir
		if r.ok {
			if name == "" {
				name = r.guid
			}
			name = w.claim(name)
		}
		w.mu.Unlock()

		if !r.ok {
			return "", fmt.Errorf("download %s was canceled", name)
		}
		if err := os.Rename(filepath.Join(dir, r.guid), filepath.Join(dir, name)); err != nil {
			return "", fmt.Errorf("rename download: %w", err)
		}
		return name, nil
	}
}

// claim must be called with mu held.
func (w *downloadWatcher) claim(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 2; w.taken[strings.ToLower(name)]; n++ {
		name = base + "-" + strconv.Itoa(n) + ext
	}
	w.taken[strings.ToLower(name)] = true
	return name
}
