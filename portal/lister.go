package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/meeting"
)

// DefaultBaseURL is the Firestone CivicClerk portal.
const DefaultBaseURL = "https://firestoneco.portal.civicclerk.com"

// DefaultListTimeout bounds each wait on the meeting index.
const DefaultListTimeout = 30 * time.Second

// Lister reads the portal's meeting index.
type Lister struct {
	Backend   dom.Backend
	BaseURL   string
	Selectors Selectors
	Timeout   time.Duration
	Log       logging.Logger
}

// NewLister returns a lister for the portal at baseURL with the stock
// selectors.
func NewLister(backend dom.Backend, baseURL string, log logging.Logger) *Lister {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Lister{
		Backend:   backend,
		BaseURL:   baseURL,
		Selectors: DefaultSelectors(),
		Timeout:   DefaultListTimeout,
		Log:       logging.OrNop(log),
	}
}

// ListMeetings opens a session, loads the index and returns its meetings in
// the order the portal lists them.
func (l *Lister) ListMeetings(ctx context.Context) ([]meeting.Meeting, error) {
	sess, err := l.Backend.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s session: %w", l.Backend.Name(), err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logging.OrNop(l.Log).Warn("failed to close session", logging.Err(err))
		}
	}()

	page := sess.Page()
	if err := page.Navigate(ctx, l.BaseURL); err != nil {
		return nil, wrapErr("open meeting index", err)
	}
	return l.ListFrom(ctx, page)
}

// ListFrom reads meetings from an index page that is already loaded.
func (l *Lister) ListFrom(ctx context.Context, page dom.Page) ([]meeting.Meeting, error) {
	sel := l.Selectors.Listing
	log := logging.OrNop(l.Log)

	for _, s := range []string{sel.Table, sel.List, sel.ReadyLink} {
		if err := page.WaitVisible(ctx, s, l.Timeout); err != nil {
			return nil, wrapErr("wait for meeting index", err)
		}
	}

	rows, err := page.Find(ctx, sel.Row)
	if err != nil {
		return nil, wrapErr("list meeting rows", err)
	}

	var meetings []meeting.Meeting
	for i, row := range rows {
		if ctx.Err() != nil {
			return meetings, ctx.Err()
		}

		m, ok, err := l.readRow(ctx, row)
		if err != nil {
			log.Warn("could not read meeting row", logging.F("row", i), logging.Err(err))
			continue
		}
		if !ok {
			continue
		}
		log.Debug("meeting",
			logging.F("event_id", m.ID),
			logging.F("title", m.Title),
			logging.F("date", m.DateString()))
		meetings = append(meetings, m)
	}

	log.Info("listed meetings", logging.F("count", len(meetings)), logging.F("rows", len(rows)))
	return meetings, nil
}

// readRow returns false for header rows and rows without an href.
func (l *Lister) readRow(ctx context.Context, row dom.Element) (meeting.Meeting, bool, error) {
	sel := l.Selectors.Listing

	link, err := dom.Find1(ctx, row, sel.Link)
	if err != nil {
		return meeting.Meeting{}, false, wrapErr("find link", err)
	}
	if link == nil {
		return meeting.Meeting{}, false, nil
	}

	href, ok, err := link.Attr(ctx, "href")
	if err != nil {
		return meeting.Meeting{}, false, wrapErr("read href", err)
	}
	if !ok || href == "" {
		return meeting.Meeting{}, false, nil
	}

	id, _, err := link.Attr(ctx, "data-id")
	if err != nil {
		return meeting.Meeting{}, false, wrapErr("read data-id", err)
	}

	title, ok, err := textOf(ctx, link, sel.Title)
	if err != nil {
		return meeting.Meeting{}, false, err
	}
	if !ok {
		text, err := link.Text(ctx)
		if err != nil {
			return meeting.Meeting{}, false, wrapErr("read link text", err)
		}
		title = strings.TrimSpace(text)
	}

	return meeting.Meeting{
		ID:    id,
		Title: title,
		URL:   resolveURL(l.BaseURL, href),
		Href:  href,
		Date:  ExtractDate(ctx, link, sel.DateDetails),
	}, true, nil
}
