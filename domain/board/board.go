// Package board holds the shared mind-map document model: positioned,
// labeled nodes with directed connections recorded on the source node only.
package board

import (
	"time"
)

// DefaultDocumentID is the identifier of the single shared document the
// server persists. The protocol carries a documentId on every scoped
// message, but persistence does not fan out per id.
const DefaultDocumentID = "shared-global-board"

// Node is a positioned, labeled unit of document content. The id is
// assigned only by the server and is unique for the lifetime of the
// process. Connections are directed edges stored on the source node;
// there is no separate edge entity and no incoming-edge index.
type Node struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Connections []int  `json:"connections"`
}

// Board is the shared collaborative document: a node collection plus a
// last-updated timestamp in epoch milliseconds. Node order carries no
// meaning beyond insertion order.
type Board struct {
	Nodes       []Node `json:"nodes"`
	LastUpdated int64  `json:"lastUpdated"`
}

// New returns an empty board stamped with the current time.
func New() *Board {
	return &Board{
		Nodes:       []Node{},
		LastUpdated: time.Now().UnixMilli(),
	}
}

// Touch refreshes the last-updated timestamp.
func (b *Board) Touch() {
	b.LastUpdated = time.Now().UnixMilli()
}

// FindNode returns the index of the node with the given id, or -1.
func (b *Board) FindNode(id int) int {
	for i := range b.Nodes {
		if b.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// UpsertNode replaces the node with a matching id wholesale, or appends it.
// This is last-writer-wins at node granularity: no field-level merge.
func (b *Board) UpsertNode(n Node) {
	if n.Connections == nil {
		n.Connections = []int{}
	}
	if i := b.FindNode(n.ID); i >= 0 {
		b.Nodes[i] = n
	} else {
		b.Nodes = append(b.Nodes, n)
	}
	b.Touch()
}

// RemoveNode deletes the node with the given id and strips every edge
// targeting it from the remaining nodes, so the persisted state never
// keeps an edge whose target no longer exists.
func (b *Board) RemoveNode(id int) bool {
	i := b.FindNode(id)
	if i < 0 {
		return false
	}
	b.Nodes = append(b.Nodes[:i], b.Nodes[i+1:]...)
	for j := range b.Nodes {
		b.Nodes[j].Connections = removeAll(b.Nodes[j].Connections, id)
	}
	b.Touch()
	return true
}

// AddConnection appends a directed edge sourceID -> targetID. It is
// idempotent and skips self-loops. The target is not required to exist.
func (b *Board) AddConnection(sourceID, targetID int) bool {
	if sourceID == targetID {
		return false
	}
	i := b.FindNode(sourceID)
	if i < 0 {
		return false
	}
	for _, t := range b.Nodes[i].Connections {
		if t == targetID {
			return false
		}
	}
	b.Nodes[i].Connections = append(b.Nodes[i].Connections, targetID)
	b.Touch()
	return true
}

// RemoveConnection removes a single matching edge if present.
func (b *Board) RemoveConnection(sourceID, targetID int) bool {
	i := b.FindNode(sourceID)
	if i < 0 {
		return false
	}
	for j, t := range b.Nodes[i].Connections {
		if t == targetID {
			b.Nodes[i].Connections = append(b.Nodes[i].Connections[:j], b.Nodes[i].Connections[j+1:]...)
			b.Touch()
			return true
		}
	}
	return false
}

// MaxNodeID returns the highest node id on the board, or 0 when empty.
// The identity allocator seeds itself from this at startup.
func (b *Board) MaxNodeID() int {
	max := 0
	for i := range b.Nodes {
		if b.Nodes[i].ID > max {
			max = b.Nodes[i].ID
		}
	}
	return max
}

// Clone returns a deep copy safe to hand to another goroutine.
func (b *Board) Clone() *Board {
	out := &Board{
		Nodes:       make([]Node, len(b.Nodes)),
		LastUpdated: b.LastUpdated,
	}
	for i := range b.Nodes {
		n := b.Nodes[i]
		n.Connections = append([]int{}, n.Connections...)
		out.Nodes[i] = n
	}
	return out
}

func removeAll(ids []int, id int) []int {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
