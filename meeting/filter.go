package meeting

import "time"

// FilterByDateRange keeps the meetings whose date falls inside [start, end].
// Either bound may be nil. When at least one bound is set, meetings without a
// date are dropped; when neither is set the input is returned unchanged.
func FilterByDateRange(meetings []Meeting, start, end *time.Time) []Meeting {
	if start == nil && end == nil {
		return meetings
	}

	var lo, hi time.Time
	if start != nil {
		lo = DateOf(*start)
	}
	if end != nil {
		hi = DateOf(*end)
	}

	filtered := make([]Meeting, 0, len(meetings))
	for _, m := range meetings {
		if m.Date == nil {
			continue
		}
		d := DateOf(*m.Date)
		if start != nil && d.Before(lo) {
			continue
		}
		if end != nil && d.After(hi) {
			continue
		}
		filtered = append(filtered, m)
	}

	return filtered
}

// MostRecent returns the last n meetings. The portal lists meetings oldest
// first, so the tail is the most recent. n <= 0 keeps everything.
func MostRecent(meetings []Meeting, n int) []Meeting {
	if n <= 0 || n >= len(meetings) {
		return meetings
	}
	return meetings[len(meetings)-n:]
}
