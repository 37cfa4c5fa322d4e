package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/logging"
	"github.com/pevans/civicfetch/meeting"
)

// Default wait budgets.
const (
	DefaultPageTimeout = 20 * time.Second
	DefaultMenuTimeout = 5 * time.Second
)

// Section names used in EntryError.
const (
	SectionFiles       = "files"
	SectionAttachments = "attachments"
)

// EntryError records one entry or menu item the walker had to skip.
type EntryError struct {
	Section string
	Name    string
	Err     error
}

func (e EntryError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Section, e.Name, e.Err)
}

func (e EntryError) Unwrap() error { return e.Err }

// WalkResult is everything discovered on one files page.
type WalkResult struct {
	Files  []meeting.File
	Errors []EntryError
}

// Walker discovers the files of one meeting by driving its files page.
type Walker struct {
	Page        dom.Page
	BaseURL     string
	Selectors   Selectors
	URLs        URLBuilder
	Inspector   *Inspector
	PageTimeout time.Duration
	MenuTimeout time.Duration
	Log         logging.Logger
}

// NewWalker returns a walker over page with the stock selectors, the default
// API base and the default wait budgets.
func NewWalker(page dom.Page, baseURL string, log logging.Logger) *Walker {
	return &Walker{
		Page:        page,
		BaseURL:     baseURL,
		Selectors:   DefaultSelectors(),
		URLs:        NewURLBuilder(""),
		Inspector:   NewInspector(page.Tree()),
		PageTimeout: DefaultPageTimeout,
		MenuTimeout: DefaultMenuTimeout,
		Log:         logging.OrNop(log),
	}
}

// FilesURL returns the files page for eventID under the portal base.
func FilesURL(base, eventID string) string {
	return resolveURL(base, "/event/"+url.PathEscape(eventID)+"/files")
}

// Walk loads the files page for eventID and walks its primary files and
// attachments. Failures on individual entries land in WalkResult.Errors;
// the returned error is reserved for the page itself failing to load.
func (w *Walker) Walk(ctx context.Context, eventID string) (*WalkResult, error) {
	log := w.Log.With(logging.F("event_id", eventID))
	sel := w.Selectors.Files

	filesURL := FilesURL(w.BaseURL, eventID)
	if err := w.Page.Navigate(ctx, filesURL); err != nil {
		return nil, wrapErr("open files page", err)
	}
	if err := w.Page.WaitVisible(ctx, sel.FilesList, w.PageTimeout); err != nil {
		return nil, wrapErr("wait for files list", err)
	}
	log.Debug("files page loaded", logging.F("url", filesURL))
	w.logDiagnostics(ctx, log)

	res := &WalkResult{}
	w.walkPrimary(ctx, log, res)
	w.walkAttachments(ctx, log, res)

	log.Info("discovered files",
		logging.F("files", len(res.Files)),
		logging.F("skipped", len(res.Errors)))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (w *Walker) fail(log logging.Logger, res *WalkResult, section, name string, err error) {
	res.Errors = append(res.Errors, EntryError{Section: section, Name: name, Err: err})
	log.Warn("skipped entry",
		logging.F("section", section),
		logging.F("name", name),
		logging.Err(err))
}

func (w *Walker) walkPrimary(ctx context.Context, log logging.Logger, res *WalkResult) {
	sel := w.Selectors.Files

	rows, err := w.Page.Find(ctx, sel.FileRow)
	if err != nil {
		w.fail(log, res, SectionFiles, "", wrapErr("list files", err))
		return
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}

		name, ok, err := textOf(ctx, row, sel.Name)
		if err != nil {
			w.fail(log, res, SectionFiles, "", err)
			continue
		}
		if !ok {
			continue
		}

		if err := w.primaryEntry(ctx, log, res, row, name); err != nil {
			w.fail(log, res, SectionFiles, name, err)
		}
	}
}

// primaryEntry records at most one file: the first usable item of the
// entry's format menu.
func (w *Walker) primaryEntry(ctx context.Context, log logging.Logger, res *WalkResult, row dom.Element, name string) error {
	sel := w.Selectors.Files

	trigger, err := dom.Find1(ctx, row, sel.FileTrigger)
	if err != nil {
		return wrapErr("find trigger", err)
	}
	if trigger == nil {
		res.Files = append(res.Files, meeting.Unresolved(name, "Unknown", ""))
		return nil
	}

	insp, err := w.Inspector.Inspect(ctx, trigger)
	if err != nil {
		return err
	}
	if insp.File != nil && insp.File.Name != "" {
		name = insp.File.Name
	}

	items, err := OpenMenu(ctx, w.Page, trigger, sel, w.MenuTimeout)
	defer w.closeMenu(ctx, log)
	if err != nil {
		return err
	}

	for _, item := range items {
		mi, ok, err := ReadMenuItem(ctx, item, sel)
		if err != nil {
			w.fail(log, res, SectionFiles, name, err)
			continue
		}
		if !ok {
			continue
		}

		f, err := w.fileFromItem(ctx, name, "", mi, insp.File, meeting.TypeAgendaItem)
		if err != nil {
			w.fail(log, res, SectionFiles, name, err)
			continue
		}
		if !f.Resolved() {
			w.fallback(ctx, log, &f)
		}
		w.logFile(log, f)
		res.Files = append(res.Files, f)
		return nil
	}
	return nil
}

func (w *Walker) walkAttachments(ctx context.Context, log logging.Logger, res *WalkResult) {
	sel := w.Selectors.Files

	if err := w.Page.WaitVisible(ctx, sel.AttachmentsList, w.PageTimeout); err != nil {
		err = wrapErr("wait for attachments", err)
		if IsTimeout(err) {
			log.Warn("attachments list not available", logging.Err(err))
			return
		}
		w.fail(log, res, SectionAttachments, "", err)
		return
	}

	rows, err := w.Page.Find(ctx, sel.AttachmentRow)
	if err != nil {
		w.fail(log, res, SectionAttachments, "", wrapErr("list attachments", err))
		return
	}

	section := ""
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}

		header, ok, err := textOf(ctx, row, sel.SectionHeader)
		if err != nil {
			w.fail(log, res, SectionAttachments, "", err)
			continue
		}
		if ok && header != "" {
			section = header
			continue
		}

		name, ok, err := textOf(ctx, row, sel.Name)
		if err != nil {
			w.fail(log, res, SectionAttachments, "", err)
			continue
		}
		if !ok {
			continue
		}

		trigger, err := firstMatch(ctx, row, sel.AttachTriggers)
		if err != nil {
			w.fail(log, res, SectionAttachments, name, err)
			continue
		}
		if trigger == nil {
			f := meeting.Unresolved(name, "Attachment", section)
			f.IsAttachment = true
			res.Files = append(res.Files, f)
			continue
		}

		if err := w.attachmentEntry(ctx, log, res, trigger, name, section); err != nil {
			w.fail(log, res, SectionAttachments, name, err)
		}
	}
}

// attachmentEntry records one file per usable menu item.
func (w *Walker) attachmentEntry(ctx context.Context, log logging.Logger, res *WalkResult, trigger dom.Element, name, section string) error {
	sel := w.Selectors.Files

	insp, err := w.Inspector.Inspect(ctx, trigger)
	if err != nil {
		return err
	}

	items, err := OpenMenu(ctx, w.Page, trigger, sel, w.MenuTimeout)
	defer w.closeMenu(ctx, log)
	if err != nil {
		return err
	}

	for _, item := range items {
		mi, ok, err := ReadMenuItem(ctx, item, sel)
		if err != nil {
			w.fail(log, res, SectionAttachments, name, err)
			continue
		}
		if !ok {
			continue
		}

		f, err := w.fileFromItem(ctx, name, section, mi, insp.File, meeting.TypeAttachment)
		if err != nil {
			w.fail(log, res, SectionAttachments, name, err)
			continue
		}
		w.logFile(log, f)
		res.Files = append(res.Files, f)
	}
	return nil
}

// fileFromItem inspects a menu item and builds its record. The item's own
// reference overrides the trigger's.
func (w *Walker) fileFromItem(ctx context.Context, name, section string, mi MenuItem, def *meeting.FileRef, defType int) (meeting.File, error) {
	insp, err := w.Inspector.Inspect(ctx, mi.Download)
	if err != nil {
		return meeting.File{}, err
	}
	ref := insp.File
	if ref == nil {
		ref = def
	}

	plainText := strings.Contains(mi.Label, "Plain Text")
	isAttachment := ref.TypeOr(defType) == meeting.TypeAttachment

	f := meeting.File{
		Name:         name,
		TypeLabel:    mi.Label,
		Section:      section,
		PlainText:    plainText,
		IsAttachment: isAttachment,
		HasStreamURL: ref.HasStreamURL(),
	}
	if ref != nil {
		f.FileID = ref.FileID
	}
	u, _ := w.URLs.Build(ref, isAttachment, plainText)
	f.SetURL(u)
	return f, nil
}

// fallback tries the preview iframe and then any download anchor on the
// page. A file neither of them resolves keeps the NotAvailable sentinel.
func (w *Walker) fallback(ctx context.Context, log logging.Logger, f *meeting.File) {
	sel := w.Selectors.Files

	if frame, err := dom.PageFind1(ctx, w.Page, sel.PreviewFrame); err == nil && frame != nil {
		if src, ok, err := frame.Attr(ctx, "src"); err == nil && ok {
			if p, ok := w.URLs.FromPreview(src); ok {
				f.SetURL(p.URL)
				if p.FileID != "" {
					f.FileID = p.FileID
					f.PlainText = p.PlainText
				}
				log.Debug("resolved from preview frame", logging.F("name", f.Name))
				return
			}
		}
	}

	anchor, err := dom.PageFind1(ctx, w.Page, sel.DownloadAnchor)
	if err != nil || anchor == nil {
		log.Debug("no download url found", logging.F("name", f.Name))
		return
	}
	if href, ok, err := anchor.Attr(ctx, "href"); err == nil && ok && href != "" {
		f.SetURL(href)
		log.Debug("resolved from download link", logging.F("name", f.Name))
	}
}

func (w *Walker) closeMenu(ctx context.Context, log logging.Logger) {
	if err := w.Page.ClickOutside(ctx); err != nil {
		log.Debug("could not close menu", logging.Err(err))
	}
}

func (w *Walker) logFile(log logging.Logger, f meeting.File) {
	log.Debug("file",
		logging.F("name", f.Name),
		logging.F("type", f.TypeLabel),
		logging.F("url", f.DownloadURL),
		logging.F("file_id", f.FileID),
		logging.F("stream_url", f.HasStreamURL))
}

// logDiagnostics reports the portal's main script bundle and the root
// component, which help when the portal's markup changes.
func (w *Walker) logDiagnostics(ctx context.Context, log logging.Logger) {
	scripts, err := w.Page.Find(ctx, w.Selectors.Files.MainBundle)
	if err == nil {
		for _, s := range scripts {
			src, ok, err := s.Attr(ctx, "src")
			if err != nil || !ok {
				continue
			}
			if strings.HasSuffix(strings.SplitN(src, "?", 2)[0], ".js") {
				log.Info("main bundle", logging.F("src", src))
				break
			}
		}
	}

	root, err := dom.PageFind1(ctx, w.Page, "#root")
	if err != nil || root == nil {
		return
	}
	if n, err := w.Page.Tree().FindNode(ctx, root); err == nil && n != nil {
		log.Debug("root component", logging.F("component", n.Component))
	}
}

func firstMatch(ctx context.Context, el dom.Element, selectors []string) (dom.Element, error) {
	for _, s := range selectors {
		found, err := dom.Find1(ctx, el, s)
		if err != nil {
			return nil, wrapErr("find "+s, err)
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// resolveURL joins href onto base. Absolute hrefs are returned unchanged.
func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
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
