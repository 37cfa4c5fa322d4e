package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pevans/civicfetch"
	"github.com/pevans/civicfetch/download"
	"github.com/pevans/civicfetch/meeting"
	"github.com/pevans/civicfetch/store"
)

// filesShown is how many files the text summary lists per meeting.
const filesShown = 5

type summaryMode struct {
	meetingsOnly bool
	download     bool
	downloadDir  string
}

// printRunText prints each meeting with a short file summary and closes
// with a one-line result.
func printRunText(w io.Writer, res *civicfetch.Result, mode summaryMode) {
	reports := map[string]download.Report{}
	for _, rep := range res.Reports {
		reports[rep.EventID] = rep
	}

	for _, m := range res.Meetings {
		printMeeting(w, m, !mode.meetingsOnly)
		if rep, ok := reports[m.ID]; ok {
			printReport(w, rep)
		}
		fmt.Fprintln(w)
	}

	switch {
	case mode.meetingsOnly:
		fmt.Fprintf(w, "Scraped %d meetings\n", len(res.Meetings))
	case mode.download:
		fmt.Fprintf(w, "Scraped %d meeting(s) and downloaded files to %s\n", len(res.Meetings), mode.downloadDir)
	default:
		fmt.Fprintf(w, "Scraped %d meeting(s) and extracted file URLs\n", len(res.Meetings))
		fmt.Fprintln(w, "   Use --download flag to download files")
	}
	if res.Run != nil {
		fmt.Fprintf(w, "   Run ID: %s\n", res.Run.RunID)
	}
}

func printMeeting(w io.Writer, m meeting.Meeting, withFiles bool) {
	fmt.Fprintf(w, "Meeting: %s\n", m.Title)
	fmt.Fprintf(w, "   Date: %s | Event ID: %s\n", m.DateString(), m.ID)
	fmt.Fprintf(w, "   URL: %s\n", m.URL)
	if !withFiles {
		return
	}

	fmt.Fprintf(w, "   Files found: %d\n", len(m.Files))
	for i, f := range m.Files {
		if i == filesShown {
			fmt.Fprintf(w, "   ... and %d more\n", len(m.Files)-filesShown)
			break
		}
		typ := f.TypeLabel
		if typ == "" {
			typ = "Unknown type"
		}
		fmt.Fprintf(w, "   - %s (%s)\n", f.Name, typ)
	}
}

func printReport(w io.Writer, rep download.Report) {
	if rep.Err != nil {
		fmt.Fprintf(w, "   Download failed: %v\n", rep.Err)
		return
	}
	fmt.Fprintf(w, "   Downloaded %d, skipped %d, failed %d -> %s\n",
		rep.Count(download.StatusSaved),
		rep.Count(download.StatusSkipped),
		rep.Count(download.StatusFailed),
		rep.Dir)
	for _, o := range rep.Outcomes {
		if o.Status == download.StatusFailed && o.Err != nil {
			fmt.Fprintf(w, "   ! %s: %v\n", o.File.Name, o.Err)
		}
	}
}

type jsonOutcome struct {
	Name   string          `json:"name"`
	URL    string          `json:"download_url"`
	Path   string          `json:"path,omitempty"`
	Status download.Status `json:"status"`
	Error  string          `json:"error,omitempty"`
}

type jsonReport struct {
	EventID  string        `json:"event_id"`
	Dir      string        `json:"dir"`
	Error    string        `json:"error,omitempty"`
	Outcomes []jsonOutcome `json:"outcomes"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// printRunJSON prints the run as one JSON document.
func printRunJSON(w io.Writer, res *civicfetch.Result) error {
	reports := make([]jsonReport, 0, len(res.Reports))
	for _, rep := range res.Reports {
		jr := jsonReport{EventID: rep.EventID, Dir: rep.Dir, Error: errString(rep.Err), Outcomes: []jsonOutcome{}}
		for _, o := range rep.Outcomes {
			jr.Outcomes = append(jr.Outcomes, jsonOutcome{
				Name:   o.File.Name,
				URL:    o.File.DownloadURL,
				Path:   o.Path,
				Status: o.Status,
				Error:  errString(o.Err),
			})
		}
		reports = append(reports, jr)
	}

	output := map[string]any{
		"listed":   res.Listed,
		"meetings": res.Meetings,
	}
	if len(reports) > 0 {
		output["downloads"] = reports
	}
	if res.Run != nil {
		output["run_id"] = res.Run.RunID.String()
	}
	return writeJSON(w, output)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printRunsTable prints stored runs one per row.
func printRunsTable(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	for _, r := range runs {
		shortID := r.RunID.String()[:8]
		fmt.Fprintf(w, "%s  %s  %-8s  meetings %d  files %d (resolved %d)  downloaded %d\n",
			shortID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Backend,
			r.MeetingCount,
			r.FileCount,
			r.ResolvedCount,
			r.Downloaded)
	}
}

// printRunDetail prints one stored run with its meetings.
func printRunDetail(w io.Writer, r *store.Run) {
	fmt.Fprintf(w, "Run: %s\n", r.RunID)
	fmt.Fprintf(w, "   Started: %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "   Finished: %s\n", r.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "   Backend: %s | Portal: %s\n", r.Backend, r.BaseURL)
	fmt.Fprintf(w, "   Meetings: %d | Files: %d (resolved %d) | Downloaded: %d | Failed: %d\n",
		r.MeetingCount, r.FileCount, r.ResolvedCount, r.Downloaded, r.DownloadFails)
	fmt.Fprintln(w)

	for _, m := range r.Meetings {
		printMeeting(w, m, m.Files != nil)
		fmt.Fprintln(w)
	}
}
