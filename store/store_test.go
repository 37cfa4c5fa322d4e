package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/civicfetch/meeting"
)

// createTestStore creates a temporary run store for testing.
func createTestStore(t *testing.T) *RunStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs", "civicfetch.db")
	store, err := NewRunStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testMeetings() []meeting.Meeting {
	d := time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC)
	return []meeting.Meeting{
		{
			ID:    "101",
			Title: "Board of Trustees",
			URL:   "https://portal.test/event/101/files",
			Href:  "/event/101/files",
			Date:  &d,
			Files: []meeting.File{
				{
					Name:        "Agenda Packet",
					TypeLabel:   "PDF",
					DownloadURL: "https://api.test/v1/Meetings/GetMeetingFileStream(fileId=42,plainText=false)",
					FileID:      "42",
				},
				meeting.Unresolved("Minutes", "Unknown", ""),
			},
		},
		{
			ID:    "102",
			Title: "Planning Commission",
			URL:   "https://portal.test/event/102/files",
			Href:  "/event/102/files",
		},
	}
}

func TestNewRunStore_CreatesDirectory(t *testing.T) {
	store := createTestStore(t)
	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_Finish(t *testing.T) {
	run := NewRun("static", "https://portal.test")
	require.NotEqual(t, uuid.Nil, run.RunID)

	run.Finish(testMeetings())

	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 2, run.MeetingCount)
	assert.Equal(t, 2, run.FileCount)
	assert.Equal(t, 1, run.ResolvedCount)
}

func TestSaveRun_RoundTrip(t *testing.T) {
	store := createTestStore(t)

	run := NewRun("static", "https://portal.test")
	run.Finish(testMeetings())
	run.Downloaded = 1
	run.DownloadFails = 0
	require.NoError(t, store.SaveRun(run))

	got, err := store.GetRun(run.RunID)
	require.NoError(t, err)

	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, "static", got.Backend)
	assert.True(t, run.StartedAt.Equal(got.StartedAt))
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 1, got.Downloaded)

	require.Len(t, got.Meetings, 2)
	first := got.Meetings[0]
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "2025-08-20", first.DateString())
	require.Len(t, first.Files, 2)
	assert.Equal(t, "42", first.Files[0].FileID)
	assert.Equal(t, meeting.NotAvailable, first.Files[1].DownloadURL)

	second := got.Meetings[1]
	assert.Nil(t, second.Date)
	assert.Empty(t, second.Files)
}

func TestSaveRun_AssignsID(t *testing.T) {
	store := createTestStore(t)

	run := &Run{StartedAt: time.Now(), Backend: "chromedp", BaseURL: "https://portal.test"}
	require.NoError(t, store.SaveRun(run))
	assert.NotEqual(t, uuid.Nil, run.RunID)
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	store := createTestStore(t)

	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run := NewRun("static", "https://portal.test")
		run.StartedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveRun(run))
		ids = append(ids, run.RunID)
	}

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].RunID)
	assert.Equal(t, ids[1], runs[1].RunID)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Empty(t, runs[0].Meetings)

	all, err := store.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestListRuns_SubSecondOrdering verifies ordering holds when start times
// differ only in their fractional seconds or zone
func TestListRuns_SubSecondOrdering(t *testing.T) {
	store := createTestStore(t)

	base := time.Date(2025, 9, 1, 12, 0, 5, 0, time.UTC)
	starts := []time.Time{
		base,
		base.Add(100 * time.Millisecond),
		base.Add(120 * time.Millisecond),
		base.Add(500 * time.Millisecond),
		base.Add(time.Second).In(time.FixedZone("EST", -5*3600)),
	}
	var ids []uuid.UUID
	for _, start := range starts {
		run := NewRun("static", "https://portal.test")
		run.StartedAt = start
		require.NoError(t, store.SaveRun(run))
		ids = append(ids, run.RunID)
	}

	runs, err := store.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, len(starts))
	for i, run := range runs {
		want := len(starts) - 1 - i
		assert.Equal(t, ids[want], run.RunID)
		assert.True(t, starts[want].Equal(run.StartedAt))
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.GetRun(uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
