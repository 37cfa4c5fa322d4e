package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/civicfetch/store"
)

const indexSnapshot = `<html><body>
<div id="event-list-table"><ul id="Event-list">
  <li class="MuiListItem-container"><a href="/event/101/files" data-id="101" data-date="2025-08-13T18:00:00Z"><h3 id="eventListRow-101-title">Board of Trustees</h3></a></li>
  <li class="MuiListItem-container"><a href="/event/102/files" data-id="102" data-date="2025-10-08T18:00:00Z"><h3 id="eventListRow-102-title">Planning Commission</h3></a></li>
</ul></div>
</body></html>`

// Six entries without download controls: every one is recorded unresolved.
const filesSnapshot = `<html><body>
<ul id="files">
  <li class="MuiListItem-container"><span class="MuiListItemText-primary">Agenda</span></li>
  <li class="MuiListItem-container"><span class="MuiListItemText-primary">Minutes</span></li>
  <li class="MuiListItem-container"><span class="MuiListItemText-primary">Packet</span></li>
  <li class="MuiListItem-container"><span class="MuiListItemText-primary">Staff Report</span></li>
  <li class="MuiListItem-container"><span class="MuiListItemText-primary">Site Plan</span></li>
  <li class="MuiListItem-container"><span class="MuiListItemText-primary">Presentation</span></li>
</ul>
<ul id="AttachmentsList"></ul>
</body></html>`

type testEnv struct {
	dir        string
	configPath string
	dbPath     string
}

func newTestEnv(t *testing.T, index string) *testEnv {
	t.Helper()
	for _, name := range []string{"BACKEND", "SNAPSHOT_DIR", "STORE_DSN", "BASE_URL", "FEED_URL", "LOG_LEVEL"} {
		t.Setenv("CIVICFETCH_"+name, "")
	}

	dir := t.TempDir()
	snapshots := filepath.Join(dir, "snapshots")
	require.NoError(t, os.MkdirAll(filepath.Join(snapshots, "event", "101"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snapshots, "index.html"), []byte(index), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(snapshots, "event", "101", "files.html"), []byte(filesSnapshot), 0o644))

	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		dbPath:     filepath.Join(dir, "runs.db"),
	}
	cfg := "browser:\n  backend: static\n  snapshot_dir: " + snapshots +
		"\nstore:\n  dsn: " + env.dbPath +
		"\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(nil)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestScrape_InvalidDates(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	stdout, stderr, err := execute(t, "--config", env.configPath, "--start", "2025-13-01")
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "invalid start date format '2025-13-01'")

	_, stderr, err = execute(t, "--config", env.configPath, "--start", "2025-10-31", "--end", "2025-10-01")
	require.NoError(t, err)
	assert.Contains(t, stderr, "must be before or equal to end date")
}

func TestScrape_InvalidOutput(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	_, _, err := execute(t, "--config", env.configPath, "-o", "yaml")
	assert.ErrorContains(t, err, "invalid output format")
}

func TestScrape_MeetingsOnlyAndHistory(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	stdout, _, err := execute(t, "--config", env.configPath, "--meetings-only")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Meeting: Board of Trustees")
	assert.Contains(t, stdout, "Date: 2025-10-08 | Event ID: 102")
	assert.NotContains(t, stdout, "Files found")
	assert.Contains(t, stdout, "Scraped 2 meetings")

	stdout, _, err = execute(t, "--config", env.configPath, "history", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "meetings 2")

	runs, err := store.NewRunStore(env.dbPath)
	require.NoError(t, err)
	list, err := runs.ListRuns(0)
	require.NoError(t, err)
	require.NoError(t, runs.Close())
	require.Len(t, list, 1)

	stdout, _, err = execute(t, "--config", env.configPath, "history", "show", list[0].RunID.String())
	require.NoError(t, err)
	assert.Contains(t, stdout, "Run: "+list[0].RunID.String())
	assert.Contains(t, stdout, "Meeting: Planning Commission")
}

func TestScrape_FileSummary(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	stdout, _, err := execute(t, "--config", env.configPath, "--no-store",
		"--start", "2025-08-01", "--end", "2025-08-31")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Meeting: Board of Trustees")
	assert.NotContains(t, stdout, "Planning Commission")
	assert.Contains(t, stdout, "Files found: 6")
	assert.Contains(t, stdout, "   - Agenda (Unknown)")
	assert.Contains(t, stdout, "   - Site Plan (Unknown)")
	assert.NotContains(t, stdout, "Presentation")
	assert.Contains(t, stdout, "... and 1 more")
	assert.Contains(t, stdout, "Use --download flag to download files")

	_, err = os.Stat(env.dbPath)
	assert.True(t, os.IsNotExist(err), "--no-store must not create the history database")
}

func TestScrape_JSON(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	stdout, _, err := execute(t, "--config", env.configPath, "--no-store", "--meeting-count", "1", "-o", "json")
	require.NoError(t, err)

	var out struct {
		Listed   int `json:"listed"`
		Meetings []struct {
			ID    string `json:"event_id"`
			Files []struct {
				Name string `json:"name"`
				URL  string `json:"download_url"`
			} `json:"files"`
		} `json:"meetings"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, 2, out.Listed)
	require.Len(t, out.Meetings, 1)
	assert.Equal(t, "102", out.Meetings[0].ID)
	assert.Empty(t, out.Meetings[0].Files, "102 has no files snapshot")
}

func TestScrape_NoMeetings(t *testing.T) {
	env := newTestEnv(t, `<html><body><div id="event-list-table"><ul id="Event-list"></ul></div></body></html>`)

	stdout, stderr, err := execute(t, "--config", env.configPath, "--no-store")
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No meetings found to process")
	assert.Contains(t, stderr, "Possible reasons")
}

func TestScrape_DateRangeExcludesAll(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	_, stderr, err := execute(t, "--config", env.configPath, "--no-store", "--start", "2030-01-01")
	require.NoError(t, err)
	assert.Contains(t, stderr, "No meetings found in date range (from 2 total)")
	assert.Contains(t, stderr, "Start date: 2030-01-01")
}

func TestHistoryShow_Errors(t *testing.T) {
	env := newTestEnv(t, indexSnapshot)

	_, _, err := execute(t, "--config", env.configPath, "history", "show", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid run ID")

	_, _, err = execute(t, "--config", env.configPath, "history", "show", "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.ErrorContains(t, err, "not found")
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "civicfetch", "config.yaml")

	stdout, _, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Config file: "+path)

	stdout, _, err = execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stdout), "(already exists)"))
}

func TestRootFlags(t *testing.T) {
	cmd := newRootCommand(nil)
	for _, name := range []string{
		"backend", "download", "download-dir", "meetings-only", "meeting-count",
		"start", "end", "click-download", "feed-url", "output", "no-store",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "d", cmd.Flags().Lookup("download").Shorthand)
}
