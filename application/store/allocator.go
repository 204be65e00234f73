package store

import (
	"sync/atomic"

	"mindlink/domain/board"
)

// IdentityAllocator issues globally unique, monotonically increasing node
// ids for the lifetime of the server process. Ids are never reused, even
// after the node is deleted; a restart re-derives a safe starting point
// from whatever the snapshot still contains.
type IdentityAllocator struct {
	next atomic.Int64
}

// NewIdentityAllocator seeds the counter at max(existing id) + 1, or 1 for
// an empty or missing document.
func NewIdentityAllocator(seed *board.Board) *IdentityAllocator {
	a := &IdentityAllocator{}
	max := 0
	if seed != nil {
		max = seed.MaxNodeID()
	}
	a.next.Store(int64(max))
	return a
}

// NextID returns the next node id. Safe under concurrent callers.
func (a *IdentityAllocator) NextID() int {
	return int(a.next.Add(1))
}
