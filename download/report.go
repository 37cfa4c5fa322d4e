// Package download saves discovered meeting files to disk, either by
// fetching their URLs directly or by clicking through the portal's download
// menus in a live browser.
package download

import (
	"github.com/pevans/civicfetch/meeting"
)

// Status is the result of one download attempt.
type Status string

const (
	StatusSaved   Status = "saved"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome describes what happened to one file.
type Outcome struct {
	File   meeting.File `json:"file"`
	Path   string       `json:"path,omitempty"`
	Status Status       `json:"status"`
	Err    error        `json:"-"`
}

// Report collects the outcomes for one meeting. Err is set when the meeting
// could not be processed at all.
type Report struct {
	EventID  string    `json:"event_id"`
	Dir      string    `json:"dir"`
	Outcomes []Outcome `json:"outcomes"`
	Err      error     `json:"-"`
}

// Count returns the number of outcomes with the given status.
func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}
