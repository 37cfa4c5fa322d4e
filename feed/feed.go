// Package feed lists meetings from a portal's RSS or Atom feed. It is the
// lightweight alternative to rendering the meeting index in a browser.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/meeting"
)

var eventIDPattern = regexp.MustCompile(`/event/(\d+)`)

// Lister reads meetings from a feed URL.
type Lister struct {
	URL       string
	Client    *http.Client
	UserAgent string
	Log       logging.Logger
}

// NewLister returns a feed lister for feedURL.
func NewLister(feedURL string, log logging.Logger) *Lister {
	return &Lister{
		URL:    feedURL,
		Client: &http.Client{Timeout: 30 * time.Second},
		Log:    logging.OrNop(log),
	}
}

// ListMeetings fetches the feed and returns one meeting per item, oldest
// first with undated items ahead of dated ones. The gofeed parser detects
// RSS and Atom on its own.
func (l *Lister) ListMeetings(ctx context.Context) ([]meeting.Meeting, error) {
	fp := gofeed.NewParser()
	if l.Client != nil {
		fp.Client = l.Client
	}
	if l.UserAgent != "" {
		fp.UserAgent = l.UserAgent
	}

	f, err := fp.ParseURLWithContext(l.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	meetings := FeedToMeetings(f, l.URL)
	logging.OrNop(l.Log).Info("listed meetings from feed",
		logging.F("feed", f.Title),
		logging.F("count", len(meetings)))
	return meetings, nil
}

// FeedToMeetings converts every item of f. Relative links resolve against
// feedURL.
func FeedToMeetings(f *gofeed.Feed, feedURL string) []meeting.Meeting {
	meetings := make([]meeting.Meeting, 0, len(f.Items))
	for _, item := range f.Items {
		meetings = append(meetings, ItemToMeeting(item, feedURL))
	}

	sort.SliceStable(meetings, func(i, j int) bool {
		a, b := meetings[i].Date, meetings[j].Date
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return meetings
}

// ItemToMeeting maps one feed item. The event id comes from an /event/<id>
// link when there is one and from the item GUID otherwise.
func ItemToMeeting(item *gofeed.Item, feedURL string) meeting.Meeting {
	m := meeting.Meeting{
		Title: strings.TrimSpace(item.Title),
		URL:   resolve(feedURL, item.Link),
		Href:  item.Link,
	}

	if match := eventIDPattern.FindStringSubmatch(item.Link); match != nil {
		m.ID = match[1]
	} else {
		m.ID = item.GUID
	}

	if u, err := url.Parse(m.URL); err == nil && u.Path != "" {
		m.Href = u.Path
	}

	var published *time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed
	}
	if published != nil {
		d := meeting.DateOf(*published)
		m.Date = &d
	}
	return m
}

func resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
