package chrome

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/pevans/civicfetch/dom"
)

// snapshotFn turns a fiber into {component, props}. Only JSON-safe props
// survive, plus a flat copy of remoteFile.
const snapshotFn = `const snap = (f) => {
	const prim = (v) => v === null || ['string', 'number', 'boolean'].includes(typeof v);
	const t = f.type;
	let name = '';
	if (typeof t === 'string') { name = t; }
	else if (t) { name = t.displayName || t.name || ''; }
	const raw = f.memoizedProps || f.pendingProps;
	const props = {};
	if (raw && typeof raw === 'object') {
		for (const k of Object.keys(raw)) {
			const v = raw[k];
			if (prim(v)) { props[k] = v; continue; }
			if (k === 'remoteFile' && typeof v === 'object') {
				const rf = {};
				for (const rk of Object.keys(v)) { if (prim(v[rk])) { rf[rk] = v[rk]; } }
				props[k] = rf;
			}
		}
	}
	return {component: name, props: props};
};`

type snapshot struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
}

// fiberTree reads React's internal fiber from DOM elements whose expando
// key starts with prefix.
type fiberTree struct {
	page   *Page
	prefix string
}

func (t *fiberTree) lookupFn() string {
	return fmt.Sprintf(`function() {
	for (const key in this) {
		if (key.startsWith(%q)) { return this[key] || null; }
	}
	return null;
}`, t.prefix)
}

func selfFn() string {
	return "function() {\n" + snapshotFn + "\nreturn snap(this);\n}"
}

func ancestorsFn(limit int) string {
	return fmt.Sprintf("function() {\n%s\nconst out = [];\nlet f = this.return;\nfor (let i = 0; f && i < %d; i++) { out.push(snap(f)); f = f.return; }\nreturn out;\n}", snapshotFn, limit)
}

// FindNode returns nil when the element carries no fiber under this prefix
// or when reading it throws in the page.
func (t *fiberTree) FindNode(ctx context.Context, el dom.Element) (*dom.Node, error) {
	e, ok := el.(*element)
	if !ok {
		return nil, nil
	}

	var node *dom.Node
	err := t.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := resolve(ctx, e.node)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(obj).Do(ctx)

		fiber, err := callByRef(ctx, obj, t.lookupFn())
		if err != nil || fiber == "" {
			return err
		}

		var snap snapshot
		if err := callByValue(ctx, fiber, selfFn(), &snap); err != nil {
			return err
		}
		node = &dom.Node{Component: snap.Component, Props: snap.Props, Ref: fiber}
		return nil
	}))
	if errors.Is(err, ErrScript) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s fiber: %w", t.prefix, err)
	}
	return node, nil
}

// Release frees the fiber handle FindNode pinned in the page. Failures are
// ignored; the handle dies with its execution context anyway.
func (t *fiberTree) Release(ctx context.Context, n *dom.Node) {
	fiber, ok := n.Ref.(runtime.RemoteObjectID)
	if !ok || fiber == "" {
		return
	}
	_ = t.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.ReleaseObject(fiber).Do(ctx)
	}))
}

// Ancestors walks .return from n, nearest first.
func (t *fiberTree) Ancestors(ctx context.Context, n *dom.Node, limit int) ([]*dom.Node, error) {
	fiber, ok := n.Ref.(runtime.RemoteObjectID)
	if !ok || fiber == "" || limit <= 0 {
		return nil, nil
	}

	var snaps []snapshot
	err := t.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return callByValue(ctx, fiber, ancestorsFn(limit), &snaps)
	}))
	if errors.Is(err, ErrScript) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk %s ancestors: %w", t.prefix, err)
	}

	out := make([]*dom.Node, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, &dom.Node{Component: s.Component, Props: s.Props, Accessor: t})
	}
	return out, nil
}
