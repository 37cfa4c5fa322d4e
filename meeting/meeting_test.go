package meeting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, y int, m time.Month, d int) *time.Time {
	t.Helper()
	v, ok := NewDate(y, m, d)
	require.True(t, ok)
	return &v
}

// TestFilterByDateRange_NoBounds verifies the input is returned unchanged
func TestFilterByDateRange_NoBounds(t *testing.T) {
	meetings := []Meeting{{ID: "1"}, {ID: "2", Date: date(t, 2025, 8, 13)}}

	assert.Equal(t, meetings, FilterByDateRange(meetings, nil, nil))
}

// TestFilterByDateRange_Inclusive verifies both bounds are inclusive and
// undated meetings are dropped
func TestFilterByDateRange_Inclusive(t *testing.T) {
	meetings := []Meeting{
		{ID: "a", Date: date(t, 2025, 9, 30)},
		{ID: "b", Date: date(t, 2025, 10, 1)},
		{ID: "c", Date: date(t, 2025, 10, 31)},
		{ID: "d", Date: date(t, 2025, 11, 1)},
		{ID: "e"},
	}

	got := FilterByDateRange(meetings, date(t, 2025, 10, 1), date(t, 2025, 10, 31))

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

// TestFilterByDateRange_OpenEnded verifies a single bound
func TestFilterByDateRange_OpenEnded(t *testing.T) {
	meetings := []Meeting{
		{ID: "a", Date: date(t, 2025, 1, 1)},
		{ID: "b", Date: date(t, 2025, 6, 1)},
		{ID: "c"},
	}

	got := FilterByDateRange(meetings, date(t, 2025, 3, 1), nil)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got = FilterByDateRange(meetings, nil, date(t, 2025, 3, 1))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

// TestMostRecent verifies the tail of the list is kept
func TestMostRecent(t *testing.T) {
	meetings := []Meeting{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	assert.Equal(t, []Meeting{{ID: "2"}, {ID: "3"}}, MostRecent(meetings, 2))
	assert.Equal(t, meetings, MostRecent(meetings, 0), "zero keeps all")
	assert.Equal(t, meetings, MostRecent(meetings, 10), "n larger than list keeps all")
}

// TestNewDate_Invalid verifies impossible dates are rejected
func TestNewDate_Invalid(t *testing.T) {
	_, ok := NewDate(2025, time.February, 31)
	assert.False(t, ok)

	d, ok := NewDate(2024, time.February, 29)
	require.True(t, ok)
	assert.Equal(t, "2024-02-29", d.Format("2006-01-02"))
}

// TestDateOf verifies the calendar date is read in the value's own zone
func TestDateOf(t *testing.T) {
	loc := time.FixedZone("MDT", -6*3600)
	ts := time.Date(2025, 8, 13, 23, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2025, 8, 13, 0, 0, 0, 0, time.UTC), DateOf(ts))
}

// TestFile_SetURL verifies the download URL is never left empty
func TestFile_SetURL(t *testing.T) {
	var f File
	f.SetURL("")
	assert.Equal(t, NotAvailable, f.DownloadURL)
	assert.False(t, f.Resolved())

	f.SetURL("https://example.com/a.pdf")
	assert.True(t, f.Resolved())
}

// TestFileRef_TypeOr verifies the default type code applies only when absent
func TestFileRef_TypeOr(t *testing.T) {
	var nilRef *FileRef
	assert.Equal(t, TypeAttachment, nilRef.TypeOr(TypeAttachment))
	assert.Equal(t, TypeAgendaItem, (&FileRef{}).TypeOr(TypeAgendaItem))
	assert.Equal(t, TypeAttachment, (&FileRef{TypeCode: TypeAttachment}).TypeOr(TypeAgendaItem))
}
