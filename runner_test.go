package civicfetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/civicfetch/browser/static"
	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/download"
	"github.com/pevans/civicfetch/meeting"
	"github.com/pevans/civicfetch/store"
)

const indexHTML = `<html><body>
<div id="event-list-table"><ul id="Event-list">
  <li class="MuiListItem-container"><a href="/event/201/files" data-id="201" data-date="2025-08-13T18:00:00Z"><h3 id="eventListRow-201-title">Board of Trustees</h3></a></li>
  <li class="MuiListItem-container"><a href="/event/202/files" data-id="202" data-date="2025-08-20T18:00:00Z"><h3 id="eventListRow-202-title">Planning Commission</h3></a></li>
  <li class="MuiListItem-container"><a href="/event/203/files" data-id="203"><h3 id="eventListRow-203-title">Special Meeting</h3></a></li>
</ul></div>
</body></html>`

// The files page carries no component tree for the static backend, so the
// agenda resolves through the page's download link.
const filesHTML = `<html><body>
<ul id="files">
  <li class="MuiListItem-container">
    <span class="MuiListItemText-primary">Agenda: Packet</span>
    <button id="agenda-btn" data-testid="files">v</button>
  </li>
  <li class="MuiListItem-container">
    <span class="MuiListItemText-primary">Minutes</span>
  </li>
</ul>
<div id="agenda-btn-menu">
  <li role="menuitem"><span class="MuiListItemText-primary">PDF</span><span data-testid="downloadFileButton">dl</span></li>
</div>
<a download href="%s/v1/Meetings/GetMeetingFileStream(fileId=%s,plainText=false)">Download</a>
</body></html>`

func portalServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			fmt.Fprint(w, indexHTML)
		case r.URL.Path == "/event/201/files":
			fmt.Fprintf(w, filesHTML, srv.URL, "901")
		case r.URL.Path == "/event/203/files":
			fmt.Fprintf(w, filesHTML, srv.URL, "903")
		case strings.HasPrefix(r.URL.Path, "/v1/Meetings/"):
			fmt.Fprint(w, "%PDF-1.7 agenda")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type memoryStore struct {
	runs []*store.Run
	err  error
}

func (m *memoryStore) SaveRun(run *store.Run) error {
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func newTestRunner(srv *httptest.Server) (*Runner, *memoryStore) {
	backend := static.New(&static.HTTPSource{Client: srv.Client()})
	r := NewRunner(backend, srv.URL, nil)
	r.APIBase = srv.URL + "/v1/"
	rec := &memoryStore{}
	r.Store = rec
	return r, rec
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestRun_MeetingsOnlyMostRecent(t *testing.T) {
	srv := portalServer(t)
	r, rec := newTestRunner(srv)

	res, err := r.Run(context.Background(), Options{MeetingsOnly: true, MeetingCount: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Listed)
	require.Len(t, res.Meetings, 2)
	assert.Equal(t, "202", res.Meetings[0].ID)
	assert.Equal(t, "203", res.Meetings[1].ID)
	assert.Nil(t, res.Meetings[1].Date)
	assert.Nil(t, res.Meetings[0].Files, "files are not walked in meetings-only mode")

	require.Len(t, rec.runs, 1)
	assert.Equal(t, 2, rec.runs[0].MeetingCount)
	assert.Equal(t, "static", rec.runs[0].Backend)
}

func TestRun_DateRangeWalkAndDownload(t *testing.T) {
	srv := portalServer(t)
	r, rec := newTestRunner(srv)
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Options{
		Download:    true,
		DownloadDir: dir,
		Start:       day(2025, 8, 1),
		End:         day(2025, 8, 31),
	})
	require.NoError(t, err)

	require.Len(t, res.Meetings, 2)
	assert.Equal(t, []string{"201", "202"}, []string{res.Meetings[0].ID, res.Meetings[1].ID})

	files := res.Meetings[0].Files
	require.Len(t, files, 2)
	assert.Equal(t, "Agenda: Packet", files[0].Name)
	assert.Equal(t, srv.URL+"/v1/Meetings/GetMeetingFileStream(fileId=901,plainText=false)", files[0].DownloadURL)
	assert.Equal(t, "Minutes", files[1].Name)
	assert.Equal(t, meeting.NotAvailable, files[1].DownloadURL)

	// 202 has no files page; its walk fails and the run moves on
	assert.Empty(t, res.Meetings[1].Files)
	assert.NotNil(t, res.Meetings[1].Files)

	require.Len(t, res.Reports, 1)
	rep := res.Reports[0]
	assert.Equal(t, 1, rep.Count(download.StatusSaved))
	assert.Equal(t, 1, rep.Count(download.StatusSkipped))

	data, err := os.ReadFile(filepath.Join(dir, "event_201", "Agenda-Packet.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 agenda", string(data))

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, 2, run.FileCount)
	assert.Equal(t, 1, run.ResolvedCount)
	assert.Equal(t, 1, run.Downloaded)
	assert.Equal(t, 0, run.DownloadFails)
}

type failingLister struct{}

func (failingLister) ListMeetings(context.Context) ([]meeting.Meeting, error) {
	return nil, errors.New("index did not render")
}

func TestRun_ListingFailureIsNotFatal(t *testing.T) {
	srv := portalServer(t)
	r, rec := newTestRunner(srv)
	r.Lister = failingLister{}

	res, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Meetings)
	assert.Equal(t, 0, res.Listed)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, 0, rec.runs[0].MeetingCount)
}

type staticLister []meeting.Meeting

func (l staticLister) ListMeetings(context.Context) ([]meeting.Meeting, error) {
	return l, nil
}

type brokenBackend struct{}

func (brokenBackend) Name() string { return "chromedp" }

func (brokenBackend) Open(context.Context) (dom.Session, error) {
	return nil, errors.New("chrome not found")
}

func TestRun_SessionFailureKeepsListing(t *testing.T) {
	r := NewRunner(brokenBackend{}, "https://portal.test", nil)
	r.Lister = staticLister{{ID: "1", Title: "Board"}}

	res, err := r.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open chromedp session")
	require.NotNil(t, res)
	require.Len(t, res.Meetings, 1)
	assert.Nil(t, res.Meetings[0].Files)
}

func TestRun_StoreFailureIsLogged(t *testing.T) {
	srv := portalServer(t)
	r, rec := newTestRunner(srv)
	rec.err = errors.New("disk full")

	res, err := r.Run(context.Background(), Options{MeetingsOnly: true})
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Equal(t, 3, res.Run.MeetingCount)
}

func TestRun_Cancelled(t *testing.T) {
	srv := portalServer(t)
	r, _ := newTestRunner(srv)
	r.Lister = staticLister{{ID: "201"}, {ID: "203"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Run(ctx, Options{})
	require.NoError(t, err)
	for _, m := range res.Meetings {
		assert.Nil(t, m.Files)
	}
}
