package portal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/civicfetch/browser/static"
	"github.com/pevans/civicfetch/dom"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateFromISO(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-08-13T18:00:00Z", day(2025, 8, 13)},
		{"2025-08-13T23:30:00-06:00", day(2025, 8, 13)},
		{"2025-08-13T00:15:00+09:00", day(2025, 8, 13)},
		{"2025-08-13T18:00:00.123Z", day(2025, 8, 13)},
		{"2025-08-13T18:00:00", day(2025, 8, 13)},
		{"2025-08-13", day(2025, 8, 13)},
	}
	for _, tt := range tests {
		got, ok := DateFromISO(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "yesterday", "2025-02-31", "13/08/2025"} {
		_, ok := DateFromISO(bad)
		assert.False(t, ok, bad)
	}
}

func TestDateFromLabel(t *testing.T) {
	got, ok := DateFromLabel("Board of Trustees event on Wednesday, Aug. 13, 2025 6:00 PM")
	require.True(t, ok)
	assert.Equal(t, day(2025, 8, 13), got)

	got, ok = DateFromLabel("Thursday, SEPTEMBER 4, 2025")
	require.True(t, ok)
	assert.Equal(t, day(2025, 9, 4), got)

	_, ok = DateFromLabel("Friday, Foo. 4, 2025")
	assert.False(t, ok)

	_, ok = DateFromLabel("Monday, Feb. 31, 2025")
	assert.False(t, ok)

	_, ok = DateFromLabel("Board of Trustees")
	assert.False(t, ok)
}

func TestDateFromDetails(t *testing.T) {
	for _, in := range []string{"Aug 13, 2025", "Aug 13,2025", "  aug 13 2025 ", "August 13,\n2025"} {
		got, ok := DateFromDetails(in)
		require.True(t, ok, in)
		assert.Equal(t, day(2025, 8, 13), got, in)
	}

	_, ok := DateFromDetails("TBD")
	assert.False(t, ok)
}

func linkFrom(t *testing.T, html string) dom.Element {
	t.Helper()
	page, err := static.NewPage(html, nil)
	require.NoError(t, err)
	link, err := dom.PageFind1(context.Background(), page, "a")
	require.NoError(t, err)
	require.NotNil(t, link)
	return link
}

func TestExtractDate_Precedence(t *testing.T) {
	details := DefaultSelectors().Listing.DateDetails
	ctx := context.Background()

	tests := []struct {
		name string
		html string
		want *time.Time
	}{
		{
			name: "data-date wins",
			html: `<a href="/e/1" data-date="2025-08-13T18:00:00Z" aria-label="Tuesday, Sep. 2, 2025">
				<div data-testid="dateDetails"><h2 class="MuiTypography-h5">Oct 1,<br>2025</h2></div></a>`,
			want: ptr(day(2025, 8, 13)),
		},
		{
			name: "aria-label beats details",
			html: `<a href="/e/1" aria-label="Tuesday, Sep. 2, 2025">
				<div data-testid="dateDetails"><h2 class="MuiTypography-h5">Oct 1,<br>2025</h2></div></a>`,
			want: ptr(day(2025, 9, 2)),
		},
		{
			name: "details last",
			html: `<a href="/e/1"><div data-testid="dateDetails"><h2 class="MuiTypography-h5">Oct 1,<br>2025</h2></div></a>`,
			want: ptr(day(2025, 10, 1)),
		},
		{
			name: "unparseable data-date falls through",
			html: `<a href="/e/1" data-date="soon" aria-label="Tuesday, Sep. 2, 2025"></a>`,
			want: ptr(day(2025, 9, 2)),
		},
		{
			name: "impossible label date falls through",
			html: `<a href="/e/1" aria-label="Monday, Feb. 31, 2025">
				<div data-testid="dateDetails"><h2 class="MuiTypography-h5">Mar 3, 2025</h2></div></a>`,
			want: ptr(day(2025, 3, 3)),
		},
		{
			name: "nothing parses",
			html: `<a href="/e/1" aria-label="Special meeting"><h3>Special</h3></a>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDate(ctx, linkFrom(t, tt.html), details)
			assert.Equal(t, tt.want, got)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
