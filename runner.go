// Package civicfetch scrapes a CivicClerk meeting portal: it lists the
// portal's meetings, discovers the download URL of every agenda file and
// attachment, and optionally saves the files to disk.
package civicfetch

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/download"
	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/meeting"
	"github.com/pevans/civicfetch/portal"
	"github.com/pevans/civicfetch/store"
)

// MeetingLister produces the meeting index, oldest first. portal.Lister and
// feed.Lister both satisfy it.
type MeetingLister interface {
	ListMeetings(ctx context.Context) ([]meeting.Meeting, error)
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	SaveRun(run *store.Run) error
}

// Options selects what one run does.
type Options struct {
	// MeetingsOnly stops after listing; no files page is opened.
	MeetingsOnly bool
	// Download saves each meeting's files after it is walked.
	Download bool
	// ClickDownload saves files by clicking the portal's download menus
	// instead of fetching the discovered URLs.
	ClickDownload bool
	DownloadDir   string
	// MeetingCount keeps only the most recent N meetings; 0 keeps all.
	MeetingCount int
	// Start and End bound meeting dates, both inclusive.
	Start *time.Time
	End   *time.Time
}

// Result is what a run produced.
type Result struct {
	// Listed is the number of meetings before filtering.
	Listed   int
	Meetings []meeting.Meeting
	Reports  []download.Report
	Run      *store.Run
}

// Runner drives a scrape: list, filter, walk each meeting's files page and
// download.
type Runner struct {
	Lister          MeetingLister
	Backend         dom.Backend
	BaseURL         string
	APIBase         string
	Selectors       portal.Selectors
	DownloadTimeout time.Duration
	Store           RunRecorder
	Log             logging.Logger
}

// NewRunner returns a runner listing meetings from the portal index of
// baseURL through backend.
func NewRunner(backend dom.Backend, baseURL string, log logging.Logger) *Runner {
	if baseURL == "" {
		baseURL = portal.DefaultBaseURL
	}
	lister := portal.NewLister(backend, baseURL, log)
	return &Runner{
		Lister:          lister,
		Backend:         backend,
		BaseURL:         baseURL,
		APIBase:         portal.DefaultAPIBase,
		Selectors:       portal.DefaultSelectors(),
		DownloadTimeout: download.DefaultTimeout,
		Log:             logging.OrNop(log),
	}
}

// Run performs one scrape. A listing failure is logged and yields zero
// meetings. The returned error is reserved for the browser session failing
// to open; the result is still usable when it is set.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	log := logging.OrNop(r.Log)
	res := &Result{}

	meetings, err := r.Lister.ListMeetings(ctx)
	if err != nil {
		log.Error("failed to list meetings", logging.Err(err))
		meetings = nil
	}
	res.Listed = len(meetings)
	log.Info("listed meetings", logging.F("count", res.Listed))

	if opts.Start != nil || opts.End != nil {
		meetings = meeting.FilterByDateRange(meetings, opts.Start, opts.End)
		log.Info("filtered to date range",
			logging.F("count", len(meetings)),
			logging.F("total", res.Listed))
	}
	if opts.MeetingCount > 0 {
		meetings = meeting.MostRecent(meetings, opts.MeetingCount)
		log.Info("keeping most recent meetings", logging.F("count", len(meetings)))
	}
	res.Meetings = meetings

	var runErr error
	if !opts.MeetingsOnly && len(meetings) > 0 {
		runErr = r.scrape(ctx, opts, res)
	}

	r.record(log, res)
	return res, runErr
}

// scrape walks every meeting in one browser session, downloading after each
// walk when asked to.
func (r *Runner) scrape(ctx context.Context, opts Options, res *Result) error {
	log := logging.OrNop(r.Log)
	if r.Backend == nil {
		return fmt.Errorf("no browser backend configured")
	}

	sess, err := r.Backend.Open(ctx)
	if err != nil {
		log.Error("failed to open browser session",
			logging.F("backend", r.Backend.Name()),
			logging.Err(err))
		return fmt.Errorf("failed to open %s session: %w", r.Backend.Name(), err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to close browser session", logging.Err(err))
		}
	}()
	page := sess.Page()

	walker := portal.NewWalker(page, r.BaseURL, log)
	walker.Selectors = r.Selectors
	walker.URLs = portal.NewURLBuilder(r.APIBase)

	var fetcher *download.Fetcher
	var clicker *download.ClickThrough
	if opts.Download {
		if opts.ClickDownload {
			clicker = download.NewClickThrough(r.BaseURL, log)
			clicker.Selectors = r.Selectors.Files
			if r.DownloadTimeout > 0 {
				clicker.DownloadTimeout = r.DownloadTimeout
			}
		} else {
			fetcher = download.NewFetcher(opts.DownloadDir, r.DownloadTimeout, log)
		}
	}

	for i := range res.Meetings {
		if ctx.Err() != nil {
			log.Warn("run cancelled", logging.F("remaining", len(res.Meetings)-i))
			break
		}
		m := &res.Meetings[i]

		walked, err := walker.Walk(ctx, m.ID)
		if err != nil {
			log.Warn("failed to scrape meeting files",
				logging.F("event_id", m.ID),
				logging.F("title", m.Title),
				logging.Err(err))
			m.Files = []meeting.File{}
			continue
		}
		m.Files = walked.Files
		if m.Files == nil {
			m.Files = []meeting.File{}
		}

		switch {
		case clicker != nil:
			res.Reports = append(res.Reports, clicker.DownloadMeeting(ctx, page, *m, opts.DownloadDir))
		case fetcher != nil:
			res.Reports = append(res.Reports, fetcher.FetchMeeting(ctx, *m))
		}
	}

	return nil
}

func (r *Runner) record(log logging.Logger, res *Result) {
	backend := "feed"
	if r.Backend != nil {
		backend = r.Backend.Name()
	}
	run := store.NewRun(backend, r.BaseURL)
	run.Finish(res.Meetings)
	for _, rep := range res.Reports {
		run.Downloaded += rep.Count(download.StatusSaved)
		run.DownloadFails += rep.Count(download.StatusFailed)
	}
	res.Run = run

	if r.Store == nil {
		return
	}
	if err := r.Store.SaveRun(run); err != nil {
		log.Warn("failed to record run", logging.Err(err))
		return
	}
	log.Debug("recorded run", logging.F("run_id", run.RunID.String()))
}
