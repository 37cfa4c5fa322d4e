package dom

import (
	"context"
	"errors"
)

// Node is a snapshot of one component-tree node.
type Node struct {
	// Component is the component's display name, or the host tag for
	// plain DOM nodes.
	Component string

	// Props holds the committed props reduced to JSON-safe values.
	Props map[string]any

	// Ref is the accessor's private handle to the live node.
	Ref any

	// Accessor is the accessor that produced the node. Chain uses it to
	// route Ancestors back to the right implementation.
	Accessor TreeAccessor
}

// TreeAccessor reaches the client framework's internal component tree
// through a DOM element.
type TreeAccessor interface {
	// FindNode returns the component node attached to el, or nil when the
	// element carries none.
	FindNode(ctx context.Context, el Element) (*Node, error)

	// Ancestors returns up to limit ancestors of n, nearest first.
	Ancestors(ctx context.Context, n *Node, limit int) ([]*Node, error)
}

// NoTree is the accessor for backends without a live component tree.
type NoTree struct{}

func (NoTree) FindNode(context.Context, Element) (*Node, error) { return nil, nil }

func (NoTree) Ancestors(context.Context, *Node, int) ([]*Node, error) { return nil, nil }

// Chain tries each accessor in order and uses the first that finds a node.
// Framework versions attach their nodes under different property names, so
// the accessor is effectively selected by which one is actually present.
type Chain []TreeAccessor

func (c Chain) FindNode(ctx context.Context, el Element) (*Node, error) {
	var errs []error
	for _, acc := range c {
		n, err := acc.FindNode(ctx, el)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n != nil {
			if n.Accessor == nil {
				n.Accessor = acc
			}
			return n, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (c Chain) Ancestors(ctx context.Context, n *Node, limit int) ([]*Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.Accessor != nil {
		return n.Accessor.Ancestors(ctx, n, limit)
	}
	if len(c) == 0 {
		return nil, nil
	}
	return c[0].Ancestors(ctx, n, limit)
}

// Releaser is implemented by accessors whose Node.Ref pins a resource in
// the page, such as a remote object handle. Callers release a node from
// FindNode once they are done walking it.
type Releaser interface {
	Release(ctx context.Context, n *Node)
}

// Release hands n back to the accessor that produced it.
func (c Chain) Release(ctx context.Context, n *Node) {
	if n == nil || n.Accessor == nil {
		return
	}
	if r, ok := n.Accessor.(Releaser); ok {
		r.Release(ctx, n)
	}
}
