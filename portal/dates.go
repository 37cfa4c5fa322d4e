package portal

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/meeting"
)

var (
	labelDatePattern   = regexp.MustCompile(`([A-Za-z]+),?\s+([A-Za-z]+)\.?\s+(\d+),?\s+(\d{4})`)
	detailsDatePattern = regexp.MustCompile(`([A-Za-z]+)\s+(\d+),?\s*(\d{4})`)

	isoLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02",
	}

	months = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// ExtractDate recovers the meeting date from a row link. It tries the
// data-date attribute, then the aria-label, then the visual date block, and
// returns nil when none of them yields a real date. A source that parses
// but names an impossible date, such as Feb 31, counts as a miss and the
// next source is tried.
func ExtractDate(ctx context.Context, link dom.Element, detailsSelector string) *time.Time {
	if v, ok, err := link.Attr(ctx, "data-date"); err == nil && ok {
		if d, ok := DateFromISO(v); ok {
			return &d
		}
	}

	if v, ok, err := link.Attr(ctx, "aria-label"); err == nil && ok {
		if d, ok := DateFromLabel(v); ok {
			return &d
		}
	}

	if detailsSelector == "" {
		return nil
	}
	h2, err := dom.Find1(ctx, link, detailsSelector)
	if err != nil || h2 == nil {
		return nil
	}
	text, err := h2.Text(ctx)
	if err != nil {
		return nil
	}
	if d, ok := DateFromDetails(text); ok {
		return &d
	}
	return nil
}

// DateFromISO parses an ISO-8601 timestamp and returns its calendar date as
// written, ignoring clock and zone.
func DateFromISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return meeting.DateOf(t), true
		}
	}
	return time.Time{}, false
}

// DateFromLabel parses accessibility labels such as
// "Board of Trustees event on Wednesday, Aug. 13, 2025 6:00 PM".
func DateFromLabel(s string) (time.Time, bool) {
	m := labelDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return dateFromParts(m[2], m[3], m[4])
}

// DateFromDetails parses the visual date block, e.g. "Aug 13, 2025".
func DateFromDetails(s string) (time.Time, bool) {
	m := detailsDatePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, false
	}
	return dateFromParts(m[1], m[2], m[3])
}

func dateFromParts(monthName, day, year string) (time.Time, bool) {
	if len(monthName) < 3 {
		return time.Time{}, false
	}
	month, ok := months[strings.ToLower(monthName[:3])]
	if !ok {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	return meeting.NewDate(y, month, d)
}
