package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/meeting"
	"github.com/pevans/civicfetch/portal"
)

// ErrNoMenuItem is reported for a trigger whose menu offered nothing to
// click.
var ErrNoMenuItem = errors.New("menu has no download item")

// ClickThrough saves files by clicking the portal's own download menus and
// letting the browser persist what the portal serves. No URLs are built.
type ClickThrough struct {
	BaseURL         string
	Selectors       portal.FilesSelectors
	PageTimeout     time.Duration
	MenuTimeout     time.Duration
	DownloadTimeout time.Duration
	Log             logging.Logger
}

// NewClickThrough returns a click-through downloader for the portal at
// baseURL.
func NewClickThrough(baseURL string, log logging.Logger) *ClickThrough {
	return &ClickThrough{
		BaseURL:         baseURL,
		Selectors:       portal.DefaultSelectors().Files,
		PageTimeout:     portal.DefaultPageTimeout,
		MenuTimeout:     portal.DefaultMenuTimeout,
		DownloadTimeout: DefaultTimeout,
		Log:             logging.OrNop(log),
	}
}

// DownloadMeeting reloads m's files page, collects its download triggers
// and clicks the first format of each one. The page must implement
// dom.Downloads; otherwise every trigger fails with dom.ErrUnsupported.
func (c *ClickThrough) DownloadMeeting(ctx context.Context, page dom.Page, m meeting.Meeting, root string) Report {
	log := logging.OrNop(c.Log).With(logging.F("event_id", m.ID))
	dir := MeetingDir(root, m.ID)
	rep := Report{EventID: m.ID, Dir: dir}

	if err := page.Navigate(ctx, portal.FilesURL(c.BaseURL, m.ID)); err != nil {
		rep.Err = fmt.Errorf("open files page: %w", err)
		return rep
	}
	for _, s := range []string{c.Selectors.FilesList, c.Selectors.AttachmentsList} {
		if err := page.WaitVisible(ctx, s, c.PageTimeout); err != nil {
			log.Warn("could not load files page", logging.Err(err))
			rep.Err = fmt.Errorf("wait for %s: %w", s, err)
			return rep
		}
	}

	triggers, err := portal.DownloadTriggers(ctx, page, c.Selectors)
	if err != nil {
		log.Warn("could not collect all download triggers", logging.Err(err))
	}
	log.Info("found downloadable files", logging.F("count", len(triggers)))

	dl, ok := page.(dom.Downloads)
	var setupErr error
	if !ok {
		setupErr = dom.ErrUnsupported
	} else if err := dl.ExpectDownloads(ctx, dir); err != nil {
		setupErr = fmt.Errorf("enable downloads: %w", err)
	}

	names := nameSet{}
	for i, tr := range triggers {
		file := meeting.File{
			Name:         tr.Name,
			IsAttachment: tr.Section == portal.SectionAttachments,
			DownloadURL:  meeting.NotAvailable,
		}
		if setupErr != nil {
			rep.add(Outcome{File: file, Status: StatusFailed, Err: setupErr})
			continue
		}
		if ctx.Err() != nil {
			rep.add(Outcome{File: file, Status: StatusFailed, Err: ctx.Err()})
			continue
		}

		log.Info("downloading",
			logging.F("index", i+1),
			logging.F("total", len(triggers)),
			logging.F("name", tr.Name))

		name, err := c.clickOne(ctx, page, dl, tr)
		if err != nil {
			log.Warn("click-through download failed", logging.F("name", tr.Name), logging.Err(err))
			rep.add(Outcome{File: file, Status: StatusFailed, Err: err})
			continue
		}
		name, err = claimSaved(dir, name, names)
		if err != nil {
			log.Warn("could not rename duplicate download", logging.F("name", tr.Name), logging.Err(err))
			rep.add(Outcome{File: file, Status: StatusFailed, Err: err})
			continue
		}
		path := filepath.Join(dir, name)
		log.Info("saved file", logging.F("path", path))
		rep.add(Outcome{File: file, Path: path, Status: StatusSaved})
	}
	return rep
}

// claimSaved reserves name in names and moves the saved file when an
// earlier download of this meeting already holds it.
func claimSaved(dir, name string, names nameSet) (string, error) {
	ext := filepath.Ext(name)
	claimed := names.claim(strings.TrimSuffix(name, ext), ext)
	if claimed == name {
		return name, nil
	}
	if err := os.Rename(filepath.Join(dir, name), filepath.Join(dir, claimed)); err != nil {
		return "", fmt.Errorf("rename download: %w", err)
	}
	return claimed, nil
}

func (c *ClickThrough) clickOne(ctx context.Context, page dom.Page, dl dom.Downloads, tr portal.Trigger) (string, error) {
	items, err := portal.OpenMenu(ctx, page, tr.Element, c.Selectors, c.MenuTimeout)
	defer func() {
		if err := page.ClickOutside(ctx); err != nil {
			logging.OrNop(c.Log).Debug("could not close menu", logging.Err(err))
		}
	}()
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", ErrNoMenuItem
	}

	span, err := dom.Find1(ctx, items[0], c.Selectors.DownloadSpan)
	if err != nil {
		return "", err
	}
	if span == nil {
		return "", ErrNoMenuItem
	}
	if err := span.Click(ctx); err != nil {
		return "", fmt.Errorf("click download: %w", err)
	}
	return dl.WaitDownload(ctx, c.DownloadTimeout)
}
