package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertNode_AppendsThenReplaces(t *testing.T) {
	b := New()

	b.UpsertNode(Node{ID: 1, Title: "Task 1", X: 10, Y: 20})
	require.Len(t, b.Nodes, 1)
	assert.Equal(t, []int{}, b.Nodes[0].Connections)

	// Whole-record replace: the caller's record wins entirely.
	b.UpsertNode(Node{ID: 1, Title: "Task 1 Revised", X: 15, Y: 25})
	require.Len(t, b.Nodes, 1)
	assert.Equal(t, "Task 1 Revised", b.Nodes[0].Title)
	assert.Equal(t, 15, b.Nodes[0].X)
	assert.Equal(t, 25, b.Nodes[0].Y)
	assert.Equal(t, "", b.Nodes[0].Content)
}

func TestRemoveNode_StripsDanglingEdges(t *testing.T) {
	b := New()
	b.UpsertNode(Node{ID: 1, Title: "A"})
	b.UpsertNode(Node{ID: 2, Title: "B"})
	b.UpsertNode(Node{ID: 3, Title: "C"})
	require.True(t, b.AddConnection(1, 2))
	require.True(t, b.AddConnection(2, 3))

	require.True(t, b.RemoveNode(2))

	require.Equal(t, -1, b.FindNode(2))
	require.Len(t, b.Nodes, 2)
	// A no longer points at B; C is unaffected.
	assert.Empty(t, b.Nodes[b.FindNode(1)].Connections)
	for i := range b.Nodes {
		for _, target := range b.Nodes[i].Connections {
			assert.NotEqual(t, 2, target)
		}
	}
}

func TestRemoveNode_MissingIsNoop(t *testing.T) {
	b := New()
	b.UpsertNode(Node{ID: 1})
	assert.False(t, b.RemoveNode(99))
	assert.Len(t, b.Nodes, 1)
}

func TestAddConnection_IdempotentAndNoSelfLoop(t *testing.T) {
	b := New()
	b.UpsertNode(Node{ID: 1})
	b.UpsertNode(Node{ID: 2})

	assert.True(t, b.AddConnection(1, 2))
	assert.False(t, b.AddConnection(1, 2), "duplicate edge must be a no-op")
	assert.Equal(t, []int{2}, b.Nodes[b.FindNode(1)].Connections)

	assert.False(t, b.AddConnection(1, 1), "self-loop must be rejected")

	// Target existence is not validated.
	assert.True(t, b.AddConnection(2, 42))
}

func TestRemoveConnection(t *testing.T) {
	b := New()
	b.UpsertNode(Node{ID: 1})
	b.UpsertNode(Node{ID: 2})
	require.True(t, b.AddConnection(1, 2))

	assert.True(t, b.RemoveConnection(1, 2))
	assert.Empty(t, b.Nodes[b.FindNode(1)].Connections)
	assert.False(t, b.RemoveConnection(1, 2), "removing an absent edge is a no-op")
}

func TestMaxNodeID(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.MaxNodeID())

	b.UpsertNode(Node{ID: 3})
	b.UpsertNode(Node{ID: 9})
	b.UpsertNode(Node{ID: 7})
	assert.Equal(t, 9, b.MaxNodeID())
}

func TestClone_IsIndependent(t *testing.T) {
	b := New()
	b.UpsertNode(Node{ID: 1})
	b.UpsertNode(Node{ID: 2})
	require.True(t, b.AddConnection(1, 2))

	c := b.Clone()
	c.UpsertNode(Node{ID: 1, Title: "changed"})
	require.True(t, c.AddConnection(2, 1))

	assert.Equal(t, "", b.Nodes[b.FindNode(1)].Title)
	assert.Empty(t, b.Nodes[b.FindNode(2)].Connections)
}
