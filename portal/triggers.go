package portal

import (
	"context"
	"strings"

	"github.com/pevans/civicfetch/dom"
)

// Trigger is a download-menu button found on a files page.
type Trigger struct {
	Name    string
	Section string
	Element dom.Element
}

// DownloadTriggers collects every download trigger on a loaded files page,
// primary files first. Attachment header rows, rows without a name and
// placeholder rows are skipped. Rows that fail to read are skipped too;
// only a failure to list the rows is returned.
func DownloadTriggers(ctx context.Context, page dom.Page, sel FilesSelectors) ([]Trigger, error) {
	var out []Trigger

	rows, err := page.Find(ctx, sel.FileRow)
	if err != nil {
		return nil, wrapErr("list files", err)
	}
	for _, row := range rows {
		name, ok, err := textOf(ctx, row, sel.Name)
		if err != nil || !ok {
			continue
		}
		btn, err := dom.Find1(ctx, row, sel.FileTrigger)
		if err != nil || btn == nil {
			continue
		}
		out = append(out, Trigger{Name: name, Section: SectionFiles, Element: btn})
	}

	rows, err = page.Find(ctx, sel.AttachmentRow)
	if err != nil {
		return out, wrapErr("list attachments", err)
	}
	for _, row := range rows {
		header, err := dom.Find1(ctx, row, sel.HeaderRow)
		if err != nil || header != nil {
			continue
		}
		name, ok, err := textOf(ctx, row, sel.Name)
		if err != nil || !ok {
			continue
		}
		if sel.PlaceholderLabel != "" && strings.Contains(name, sel.PlaceholderLabel) {
			continue
		}
		btn, err := firstMatch(ctx, row, sel.AttachTriggers)
		if err != nil || btn == nil {
			continue
		}
		out = append(out, Trigger{Name: name, Section: SectionAttachments, Element: btn})
	}

	return out, nil
}
