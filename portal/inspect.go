package portal

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/meeting"
)

const (
	// DownloadButtonComponent is the component that owns a file's
	// remoteFile payload.
	DownloadButtonComponent = "DownloadFileButton"

	// MaxAncestorDepth bounds the walk up the component tree.
	MaxAncestorDepth = 10

	remoteFileProp = "remoteFile"
)

// Inspection is what the component tree reveals about a download control.
type Inspection struct {
	DataAttributes map[string]string
	Props          map[string]any
	File           *meeting.FileRef
}

// Inspector recovers remoteFile payloads from download controls through the
// client framework's component tree.
type Inspector struct {
	Tree dom.TreeAccessor
}

// NewInspector returns an inspector reading through tree.
func NewInspector(tree dom.TreeAccessor) *Inspector {
	if tree == nil {
		tree = dom.NoTree{}
	}
	return &Inspector{Tree: tree}
}

// Inspect reads el's data attributes and component props, then searches the
// component and up to MaxAncestorDepth ancestors for a remoteFile payload.
// Missing framework internals produce an empty Inspection and no error; only
// driver failures are reported, as KindInternal. The found node is released
// before returning when the accessor pins page resources.
func (in *Inspector) Inspect(ctx context.Context, el dom.Element) (Inspection, error) {
	out := Inspection{DataAttributes: map[string]string{}}

	attrs, err := el.Attrs(ctx)
	if err != nil {
		return Inspection{}, internal("read attributes", err)
	}
	for k, v := range attrs {
		if strings.HasPrefix(k, "data-") {
			out.DataAttributes[k] = v
		}
	}

	node, err := in.Tree.FindNode(ctx, el)
	if err != nil {
		return Inspection{}, internal("find component", err)
	}
	if node == nil {
		return out, nil
	}
	if r, ok := in.Tree.(dom.Releaser); ok {
		defer r.Release(ctx, node)
	}
	out.Props = node.Props

	ancestors, err := in.Tree.Ancestors(ctx, node, MaxAncestorDepth)
	if err != nil {
		return Inspection{}, internal("walk component ancestors", err)
	}
	if len(ancestors) > MaxAncestorDepth {
		ancestors = ancestors[:MaxAncestorDepth]
	}

	out.File = findRemoteFile(append([]*dom.Node{node}, ancestors...))
	return out, nil
}

func internal(op string, err error) error {
	return &ExtractionError{Kind: KindInternal, Op: op, Err: err}
}

// findRemoteFile prefers a DownloadFileButton carrying remoteFile and
// otherwise takes the nearest node that carries one.
func findRemoteFile(chain []*dom.Node) *meeting.FileRef {
	for _, n := range chain {
		if n == nil || n.Component != DownloadButtonComponent {
			continue
		}
		if ref := parseFileRef(n.Props[remoteFileProp]); ref != nil {
			return ref
		}
	}
	for _, n := range chain {
		if n == nil {
			continue
		}
		if ref := parseFileRef(n.Props[remoteFileProp]); ref != nil {
			return ref
		}
	}
	return nil
}

// parseFileRef decodes a remoteFile prop. fileId and fileType arrive as
// numbers or strings depending on the portal build.
func parseFileRef(v any) *meeting.FileRef {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}

	ref := &meeting.FileRef{
		FileID: scalarString(m["fileId"]),
	}
	if t, err := strconv.Atoi(scalarString(m["fileType"])); err == nil {
		ref.TypeCode = t
	}
	if s, ok := m["name"].(string); ok {
		ref.Name = s
	}
	if s, ok := m["streamUrl"].(string); ok {
		ref.StreamURL = s
	}
	if ref.FileID == "0" {
		ref.FileID = ""
	}
	return ref
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
