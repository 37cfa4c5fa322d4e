package portal

import (
	"context"
	"strings"
	"time"

	"github.com/pevans/civicfetch/dom"
)

// MenuSelector returns the selector for the format menu opened by the
// trigger with the given id.
func MenuSelector(triggerID string) string {
	return "#" + triggerID + "-menu"
}

// OpenMenu clicks trigger, waits for its menu and returns the menu's items.
// The caller closes the menu.
func OpenMenu(ctx context.Context, page dom.Page, trigger dom.Element, sel FilesSelectors, timeout time.Duration) ([]dom.Element, error) {
	id, ok, err := trigger.Attr(ctx, "id")
	if err != nil {
		return nil, wrapErr("read trigger id", err)
	}
	if !ok || id == "" {
		return nil, notFound("trigger id")
	}

	if err := trigger.Click(ctx); err != nil {
		return nil, wrapErr("open menu", err)
	}

	menuSel := MenuSelector(id)
	if err := page.WaitVisible(ctx, menuSel, timeout); err != nil {
		return nil, wrapErr("wait for menu", err)
	}
	menu, err := dom.PageFind1(ctx, page, menuSel)
	if err != nil {
		return nil, wrapErr("find menu", err)
	}
	if menu == nil {
		return nil, notFound("menu " + menuSel)
	}

	items, err := menu.Find(ctx, sel.MenuItem)
	if err != nil {
		return nil, wrapErr("list menu items", err)
	}
	return items, nil
}

// MenuItem is one usable format entry: a label and the span that starts the
// download.
type MenuItem struct {
	Label    string
	Download dom.Element
}

// ReadMenuItem returns the usable parts of a menu item. The second result is
// false when the item lacks a label or a download span.
func ReadMenuItem(ctx context.Context, item dom.Element, sel FilesSelectors) (MenuItem, bool, error) {
	label, ok, err := textOf(ctx, item, sel.Name)
	if err != nil || !ok {
		return MenuItem{}, false, err
	}
	span, err := dom.Find1(ctx, item, sel.DownloadSpan)
	if err != nil {
		return MenuItem{}, false, wrapErr("find download span", err)
	}
	if span == nil {
		return MenuItem{}, false, nil
	}
	return MenuItem{Label: label, Download: span}, true, nil
}

// textOf returns the trimmed text of the first match of selector under el.
func textOf(ctx context.Context, el dom.Element, selector string) (string, bool, error) {
	found, err := dom.Find1(ctx, el, selector)
	if err != nil {
		return "", false, wrapErr("find "+selector, err)
	}
	if found == nil {
		return "", false, nil
	}
	text, err := found.Text(ctx)
	if err != nil {
		return "", false, wrapErr("read "+selector, err)
	}
	return strings.TrimSpace(text), true, nil
}
