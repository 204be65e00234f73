// Package store owns the authoritative in-memory document state and its
// durable snapshot persistence contract.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"mindlink/domain/board"
	pkgerrors "mindlink/pkg/errors"
)

// SnapshotStore is the narrow save/load contract a persistence backend
// must satisfy. Load returns (nil, nil) when no snapshot exists; corrupt
// data is reported as a document error. The relational mirror plugs in
// behind this same interface.
type SnapshotStore interface {
	Load(ctx context.Context, documentID string) (*board.Board, error)
	Save(ctx context.Context, documentID string, b *board.Board) error
}

// DocumentStore applies mutations to the shared document and persists a
// full snapshot after each one. Every operation runs the whole
// load-mutate-persist cycle inside one critical section, so concurrent
// mutators serialize and the only conflict policy left is last-writer-wins
// at node granularity.
type DocumentStore struct {
	mu      sync.Mutex
	backend SnapshotStore
	logger  *zap.Logger
}

// NewDocumentStore creates a document store over the given backend.
func NewDocumentStore(backend SnapshotStore, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{
		backend: backend,
		logger:  logger,
	}
}

// LoadSnapshot reads the durable snapshot. An absent or empty snapshot is
// synthesized as an empty document and persisted, never an error. Corrupt
// persisted data surfaces as a document error.
func (s *DocumentStore) LoadSnapshot(ctx context.Context, documentID string) (*board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, documentID)
}

// UpsertNode replaces the node with a matching id wholesale, or appends
// it, then persists the full snapshot.
func (s *DocumentStore) UpsertNode(ctx context.Context, documentID string, n board.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.loadForMutation(ctx, documentID)
	b.UpsertNode(n)
	return s.persistLocked(ctx, documentID, b)
}

// RemoveNode deletes the node and strips every dangling edge targeting it,
// then persists.
func (s *DocumentStore) RemoveNode(ctx context.Context, documentID string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.loadForMutation(ctx, documentID)
	if !b.RemoveNode(id) {
		s.logger.Warn("remove of unknown node",
			zap.String("documentID", documentID),
			zap.Int("nodeID", id),
		)
	}
	return s.persistLocked(ctx, documentID, b)
}

// AddEdge appends a directed edge; a duplicate is a no-op. The target id
// is not validated against the node collection.
func (s *DocumentStore) AddEdge(ctx context.Context, documentID string, sourceID, targetID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.loadForMutation(ctx, documentID)
	b.AddConnection(sourceID, targetID)
	return s.persistLocked(ctx, documentID, b)
}

// RemoveEdge removes a single matching edge if present; no-op otherwise.
func (s *DocumentStore) RemoveEdge(ctx context.Context, documentID string, sourceID, targetID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.loadForMutation(ctx, documentID)
	b.RemoveConnection(sourceID, targetID)
	return s.persistLocked(ctx, documentID, b)
}

// loadLocked reads the snapshot, synthesizing and persisting an empty
// document when the backend has nothing. Caller holds s.mu.
func (s *DocumentStore) loadLocked(ctx context.Context, documentID string) (*board.Board, error) {
	b, err := s.backend.Load(ctx, documentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load snapshot")
	}
	if b == nil {
		b = board.New()
		if err := s.backend.Save(ctx, documentID, b); err != nil {
			s.logger.Error("failed to persist synthesized empty document",
				zap.String("documentID", documentID),
				zap.Error(err),
			)
		}
	}
	return b, nil
}

// loadForMutation is loadLocked with the mutation-path failure policy: a
// corrupt snapshot is logged loudly and treated as empty, so the next
// successful write repairs durable state instead of wedging mutations.
func (s *DocumentStore) loadForMutation(ctx context.Context, documentID string) *board.Board {
	b, err := s.loadLocked(ctx, documentID)
	if err != nil {
		s.logger.Error("snapshot unreadable before mutation, starting from empty document",
			zap.String("documentID", documentID),
			zap.Error(err),
		)
		return board.New()
	}
	return b
}

// persistLocked writes the full snapshot. Persistence failures are logged
// and returned, but callers are expected to keep broadcasting the mutation
// to peers: peers' views may diverge from durable state until the next
// successful write. That is the accepted failure model.
func (s *DocumentStore) persistLocked(ctx context.Context, documentID string, b *board.Board) error {
	if err := s.backend.Save(ctx, documentID, b); err != nil {
		s.logger.Error("failed to persist snapshot",
			zap.String("documentID", documentID),
			zap.Int("nodes", len(b.Nodes)),
			zap.Error(err),
		)
		return pkgerrors.Wrap(err, "persist snapshot")
	}
	s.logger.Debug("snapshot persisted",
		zap.String("documentID", documentID),
		zap.Int("nodes", len(b.Nodes)),
	)
	return nil
}
