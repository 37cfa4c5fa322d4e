// Package meeting holds the records produced by a portal scrape: meetings,
// the files attached to them, and the backend file references recovered
// while discovering download URLs.
package meeting

import (
	"time"
)

// NotAvailable is the single failure sentinel for a file whose download URL
// could not be discovered.
const NotAvailable = "N/A"

// File type codes carried by the portal's remoteFile payloads.
const (
	TypeUnknown    = 0
	TypeAgendaItem = 1
	TypeAttachment = 3
)

// Meeting is one entry from the portal's meeting index.
type Meeting struct {
	ID    string     `json:"event_id"`
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Href  string     `json:"href"`
	Date  *time.Time `json:"date,omitempty"`
	Files []File     `json:"files,omitempty"`
}

// DateString formats the meeting date as YYYY-MM-DD, or "Unknown date" when
// the portal did not expose one.
func (m Meeting) DateString() string {
	if m.Date == nil {
		return "Unknown date"
	}
	return m.Date.Format("2006-01-02")
}

// File is one downloadable artifact discovered on a meeting's files page.
type File struct {
	Name         string `json:"name"`
	TypeLabel    string `json:"type"`
	Section      string `json:"section,omitempty"`
	DownloadURL  string `json:"download_url"`
	FileID       string `json:"file_id,omitempty"`
	PlainText    bool   `json:"plain_text"`
	IsAttachment bool   `json:"is_attachment"`
	HasStreamURL bool   `json:"has_stream_url"`
}

// Resolved reports whether the file carries a usable download URL.
func (f File) Resolved() bool {
	return f.DownloadURL != "" && f.DownloadURL != NotAvailable
}

// SetURL stores url as the download URL, substituting NotAvailable for an
// empty value so that DownloadURL is never blank.
func (f *File) SetURL(url string) {
	if url == "" {
		url = NotAvailable
	}
	f.DownloadURL = url
}

// Unresolved returns a file record for an entry that has no download
// control at all.
func Unresolved(name, typeLabel, section string) File {
	return File{
		Name:        name,
		TypeLabel:   typeLabel,
		Section:     section,
		DownloadURL: NotAvailable,
	}
}

// FileRef is the backend payload ("remoteFile") attached to a download
// control. It is rebuilt on every inspection and never persisted.
type FileRef struct {
	FileID    string `json:"fileId"`
	TypeCode  int    `json:"fileType"`
	Name      string `json:"name,omitempty"`
	StreamURL string `json:"streamUrl,omitempty"`
}

// HasStreamURL reports whether the reference carries a pre-signed storage
// URL.
func (r *FileRef) HasStreamURL() bool {
	return r != nil && r.StreamURL != ""
}

// TypeOr returns the reference's type code, or def when the payload did not
// carry one.
func (r *FileRef) TypeOr(def int) int {
	if r == nil || r.TypeCode == TypeUnknown {
		return def
	}
	return r.TypeCode
}

// NewDate returns the calendar date y-m-d at midnight UTC. The second result
// is false when the components do not name a real date (e.g. February 31).
func NewDate(year int, month time.Month, day int) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// DateOf strips the clock and zone from t, keeping the calendar date as it
// reads in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
