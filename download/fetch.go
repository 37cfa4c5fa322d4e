package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/meeting"
)

// DefaultTimeout bounds a single file download.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is sent with direct downloads.
const DefaultUserAgent = "civicfetch/1.0 (meeting document archiver)"

// Fetcher downloads resolved files over HTTP.
type Fetcher struct {
	Client    *http.Client
	Dir       string
	UserAgent string
	Log       logging.Logger
}

// NewFetcher returns a fetcher saving under dir.
func NewFetcher(dir string, timeout time.Duration, log logging.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{
		Client:    &http.Client{Timeout: timeout},
		Dir:       dir,
		UserAgent: DefaultUserAgent,
		Log:       logging.OrNop(log),
	}
}

// FetchMeeting downloads every resolved file of m into its meeting
// directory and writes the manifest. Files without a URL are reported as
// skipped. A failed file never stops the batch.
func (f *Fetcher) FetchMeeting(ctx context.Context, m meeting.Meeting) Report {
	log := logging.OrNop(f.Log).With(logging.F("event_id", m.ID))
	dir := MeetingDir(f.Dir, m.ID)
	rep := Report{EventID: m.ID, Dir: dir}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		rep.Err = fmt.Errorf("failed to create meeting directory: %w", err)
		return rep
	}

	names := nameSet{}
	for _, file := range m.Files {
		if ctx.Err() != nil {
			rep.add(Outcome{File: file, Status: StatusFailed, Err: ctx.Err()})
			continue
		}
		if !file.Resolved() {
			log.Info("skipping file without download url", logging.F("name", file.Name))
			rep.add(Outcome{File: file, Status: StatusSkipped})
			continue
		}

		path := filepath.Join(dir, names.claim(SanitizeFilename(file.Name), Extension(file.PlainText)))
		if err := f.fetch(ctx, file.DownloadURL, path); err != nil {
			log.Warn("download failed", logging.F("name", file.Name), logging.Err(err))
			rep.add(Outcome{File: file, Status: StatusFailed, Err: err})
			continue
		}
		log.Info("saved file", logging.F("path", path))
		rep.add(Outcome{File: file, Path: path, Status: StatusSaved})
	}

	if err := WriteManifest(dir, m); err != nil {
		log.Warn("could not write manifest", logging.Err(err))
	}
	return rep
}

// fetch streams url into path through a temporary file so a failed
// download never leaves a partial file behind.
func (f *Fetcher) fetch(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}
