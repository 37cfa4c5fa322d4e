package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/civicfetch/browser/static"
	"github.com/pevans/civicfetch/dom"
	"github.com/pevans/civicfetch/meeting"
)

const inspectPage = `<html><body>
<button id="b1" data-key="b1" data-testid="files" aria-haspopup="true">Download</button>
</body></html>`

func inspectWith(t *testing.T, tree dom.TreeAccessor) (Inspection, error) {
	t.Helper()
	page, err := static.NewPage(inspectPage, tree)
	require.NoError(t, err)
	btn, err := dom.PageFind1(context.Background(), page, "#b1")
	require.NoError(t, err)
	return NewInspector(page.Tree()).Inspect(context.Background(), btn)
}

func TestInspect_NoFrameworkInternals(t *testing.T) {
	insp, err := inspectWith(t, dom.NoTree{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"data-key": "b1", "data-testid": "files"}, insp.DataAttributes)
	assert.Nil(t, insp.Props)
	assert.Nil(t, insp.File)
}

func TestInspect_FindsRemoteFileOnAncestor(t *testing.T) {
	tree := &fakeTree{chains: map[string][]*dom.Node{
		"b1": {
			{Component: "button", Props: map[string]any{"id": "b1"}},
			node("IconButton", nil),
			node("FileMenu", map[string]any{"fileId": float64(42), "fileType": float64(1), "name": "Agenda"}),
		},
	}}

	insp, err := inspectWith(t, tree)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "b1"}, insp.Props)
	require.NotNil(t, insp.File)
	assert.Equal(t, meeting.FileRef{FileID: "42", TypeCode: 1, Name: "Agenda"}, *insp.File)
}

func TestInspect_PrefersDownloadButton(t *testing.T) {
	tree := &fakeTree{chains: map[string][]*dom.Node{
		"b1": {
			node("span", nil),
			node("MenuItem", map[string]any{"fileId": "1"}),
			node(DownloadButtonComponent, map[string]any{"fileId": "2", "streamUrl": "https://blob.test/2"}),
		},
	}}

	insp, err := inspectWith(t, tree)
	require.NoError(t, err)
	require.NotNil(t, insp.File)
	assert.Equal(t, "2", insp.File.FileID)
	assert.True(t, insp.File.HasStreamURL())
}

func TestInspect_DepthLimit(t *testing.T) {
	chain := func(at int) []*dom.Node {
		nodes := []*dom.Node{node("span", nil)}
		for i := 1; i <= 12; i++ {
			if i == at {
				nodes = append(nodes, node("Holder", map[string]any{"fileId": "7"}))
			} else {
				nodes = append(nodes, node("Wrapper", nil))
			}
		}
		return nodes
	}

	insp, err := inspectWith(t, &fakeTree{chains: map[string][]*dom.Node{"b1": chain(MaxAncestorDepth)}})
	require.NoError(t, err)
	require.NotNil(t, insp.File)
	assert.Equal(t, "7", insp.File.FileID)

	insp, err = inspectWith(t, &fakeTree{chains: map[string][]*dom.Node{"b1": chain(MaxAncestorDepth + 1)}})
	require.NoError(t, err)
	assert.Nil(t, insp.File)
}

func TestInspect_DriverFailureIsInternal(t *testing.T) {
	tree := &fakeTree{fail: map[string]error{"b1": errors.New("websocket closed")}}

	_, err := inspectWith(t, tree)
	require.Error(t, err)
	assert.True(t, IsInternal(err))
	assert.ErrorContains(t, err, "websocket closed")
}

func TestParseFileRef(t *testing.T) {
	assert.Nil(t, parseFileRef(nil))
	assert.Nil(t, parseFileRef("x"))
	assert.Nil(t, parseFileRef(map[string]any{}))

	ref := parseFileRef(map[string]any{"fileId": "  88 ", "fileType": "3"})
	assert.Equal(t, &meeting.FileRef{FileID: "88", TypeCode: 3}, ref)

	ref = parseFileRef(map[string]any{"fileId": float64(0), "fileType": nil})
	assert.Equal(t, &meeting.FileRef{}, ref)
}

type releasingTree struct {
	*fakeTree
	released []any
}

func (r *releasingTree) Release(_ context.Context, n *dom.Node) {
	r.released = append(r.released, n.Ref)
}

// TestInspect_ReleasesFoundNode verifies every inspection hands its node
// handle back, so repeated inspections do not pile up page objects
func TestInspect_ReleasesFoundNode(t *testing.T) {
	tree := &releasingTree{fakeTree: &fakeTree{chains: map[string][]*dom.Node{
		"b1": {
			node("button", nil),
			node("FileMenu", map[string]any{"fileId": "42"}),
		},
	}}}

	for i := 0; i < 3; i++ {
		insp, err := inspectWith(t, tree)
		require.NoError(t, err)
		require.NotNil(t, insp.File)
	}
	assert.Equal(t, []any{"b1", "b1", "b1"}, tree.released)

	empty := &releasingTree{fakeTree: &fakeTree{}}
	_, err := inspectWith(t, empty)
	require.NoError(t, err)
	assert.Empty(t, empty.released)
}
