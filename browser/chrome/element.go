package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/pevans/civicfetch/dom"
)

// ErrScript is returned when a function evaluated in the page throws.
var ErrScript = errors.New("page script exception")

const (
	attrJS = `function(name) {
	return this.hasAttribute(name) ? this.getAttribute(name) : null;
}`
	attrsJS = `function() {
	const out = {};
	for (const a of this.attributes) { out[a.name] = a.value; }
	return out;
}`
	textJS = `function() { return this.textContent || ''; }`
)

type element struct {
	page *Page
	node *cdp.Node
}

func (p *Page) query(ctx context.Context, selector string, opts ...chromedp.QueryOption) ([]dom.Element, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}, opts...)
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{page: p, node: n})
	}
	return out, nil
}

func (e *element) Attr(ctx context.Context, name string) (string, bool, error) {
	var v *string
	if err := e.page.callOn(ctx, e.node, attrJS, &v, name); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) Attrs(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := e.page.callOn(ctx, e.node, attrsJS, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var s string
	if err := e.page.callOn(ctx, e.node, textJS, &s); err != nil {
		return "", err
	}
	return s, nil
}

func (e *element) Find(ctx context.Context, selector string) ([]dom.Element, error) {
	return e.page.query(ctx, selector, chromedp.FromNode(e.node))
}

func (e *element) Click(ctx context.Context) error {
	return e.page.run(ctx, chromedp.MouseClickNode(e.node))
}

// callOn evaluates fn with this bound to node and decodes the JSON result
// into out.
func (p *Page) callOn(ctx context.Context, node *cdp.Node, fn string, out any, args ...any) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := resolve(ctx, node)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(obj).Do(ctx)
		return callByValue(ctx, obj, fn, out, args...)
	}))
}

func resolve(ctx context.Context, node *cdp.Node) (runtime.RemoteObjectID, error) {
	obj, err := cdpdom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve node: %w", err)
	}
	return obj.ObjectID, nil
}

func callArgs(args []any) ([]*runtime.CallArgument, error) {
	out := make([]*runtime.CallArgument, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out = append(out, &runtime.CallArgument{Value: raw})
	}
	return out, nil
}

func callByValue(ctx context.Context, obj runtime.RemoteObjectID, fn string, out any, args ...any) error {
	cargs, err := callArgs(args)
	if err != nil {
		return err
	}
	res, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj).
		WithArguments(cargs).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return fmt.Errorf("%w: %s", ErrScript, exc.Text)
	}
	if out == nil || res == nil || len(res.Value) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(res.Value), out)
}

// callByRef evaluates fn and returns a handle to the resulting object, or
// an empty ID when fn returned a primitive or null.
func callByRef(ctx context.Context, obj runtime.RemoteObjectID, fn string) (runtime.RemoteObjectID, error) {
	res, exc, err := runtime.CallFunctionOn(fn).WithObjectID(obj).Do(ctx)
	if err != nil {
		return "", err
	}
	if exc != nil {
		return "", fmt.Errorf("%w: %s", ErrScript, exc.Text)
	}
	if res == nil {
		return "", nil
	}
	return res.ObjectID, nil
}
