package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultUserAgent identifies civicfetch to servers it fetches from.
const DefaultUserAgent = "civicfetch/1.0 (meeting agenda archiver)"

// Source loads the HTML for a URL.
type Source interface {
	Load(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// HTTPSource fetches pages over HTTP.
type HTTPSource struct {
	Client    *http.Client
	UserAgent string
}

// Load fetches rawURL and returns the response body. Non-200 responses are
// errors.
func (s *HTTPSource) Load(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	ua := s.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	return resp.Body, nil
}

// DirSource serves saved page snapshots from a directory. The URL path
// /event/42/files maps to <Root>/event/42/files.html or
// <Root>/event/42/files/index.html; the site root maps to <Root>/index.html.
type DirSource struct {
	Root string
}

// Load opens the snapshot for rawURL.
func (s *DirSource) Load(_ context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	rel := strings.Trim(u.Path, "/")
	candidates := []string{filepath.Join(s.Root, "index.html")}
	if rel != "" {
		rel = filepath.FromSlash(rel)
		candidates = []string{
			filepath.Join(s.Root, rel+".html"),
			filepath.Join(s.Root, rel, "index.html"),
		}
	}

	for _, path := range candidates {
		f, err := os.Open(path)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
	}

	return nil, fmt.Errorf("no snapshot for %s under %s", u.Path, s.Root)
}
