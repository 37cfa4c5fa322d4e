package portal

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pevans/civicfetch/browser/static"
	"github.com/pevans/civicfetch/dom"
)

const testBase = "https://portal.test"

// pageSource serves HTML by URL path.
type pageSource map[string]string

func (s pageSource) Load(_ context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	html, ok := s[path]
	if !ok {
		return nil, fmt.Errorf("no page at %s", path)
	}
	return io.NopCloser(strings.NewReader(html)), nil
}

// fakeTree maps an element's data-key attribute to a component chain: the
// element's own node followed by its ancestors, nearest first.
type fakeTree struct {
	chains map[string][]*dom.Node
	fail   map[string]error
}

func (t *fakeTree) FindNode(ctx context.Context, el dom.Element) (*dom.Node, error) {
	key, ok, err := el.Attr(ctx, "data-key")
	if err != nil || !ok {
		return nil, err
	}
	if err := t.fail[key]; err != nil {
		return nil, err
	}
	chain := t.chains[key]
	if len(chain) == 0 {
		return nil, nil
	}
	n := *chain[0]
	n.Ref = key
	return &n, nil
}

func (t *fakeTree) Ancestors(_ context.Context, n *dom.Node, limit int) ([]*dom.Node, error) {
	key, _ := n.Ref.(string)
	chain := t.chains[key]
	if len(chain) < 2 {
		return nil, nil
	}
	anc := chain[1:]
	if len(anc) > limit {
		anc = anc[:limit]
	}
	return anc, nil
}

func node(component string, remoteFile map[string]any) *dom.Node {
	props := map[string]any{}
	if remoteFile != nil {
		props["remoteFile"] = remoteFile
	}
	return &dom.Node{Component: component, Props: props}
}

func openPage(t *testing.T, pages pageSource, tree dom.TreeAccessor) *static.Page {
	t.Helper()
	sess, err := static.New(pages, static.WithTree(tree)).Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess.Page().(*static.Page)
}

func fmtPage(layout, extra string) string {
	return strings.Replace(layout, "%s", extra, 1)
}
