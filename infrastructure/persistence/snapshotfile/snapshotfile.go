// Package snapshotfile persists the shared document as a single JSON file
// at a fixed, well-known path under the data directory.
package snapshotfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"mindlink/domain/board"
	pkgerrors "mindlink/pkg/errors"
)

// SnapshotFileName is the well-known snapshot file name inside the data
// directory.
const SnapshotFileName = "shared_board.json"

// Store reads and writes whole-document snapshots. There is one snapshot
// file regardless of the documentId on the wire; the id is carried for
// logging only.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a file store rooted at dataDir, creating the directory if
// needed.
func New(dataDir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, pkgerrors.NewIOError("create data directory", err)
	}
	return &Store{
		path:   filepath.Join(dataDir, SnapshotFileName),
		logger: logger,
	}, nil
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing or empty file yields (nil, nil) so the
// caller can synthesize an empty document; malformed JSON is a document
// error.
func (s *Store) Load(_ context.Context, documentID string) (*board.Board, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("snapshot file absent, treating as empty document",
			zap.String("documentID", documentID),
			zap.String("path", s.path),
		)
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewIOError("read snapshot", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		s.logger.Info("snapshot file empty, treating as empty document",
			zap.String("documentID", documentID),
			zap.String("path", s.path),
		)
		return nil, nil
	}

	var b board.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, pkgerrors.NewDocumentError("snapshot unreadable", err).WithDetails(map[string]interface{}{
			"path": s.path,
		})
	}
	if b.Nodes == nil {
		b.Nodes = []board.Node{}
	}
	return &b, nil
}

// Save writes the full snapshot. The write goes to a temp file in the same
// directory followed by a rename, so a crash mid-write never leaves a
// truncated snapshot behind.
func (s *Store) Save(_ context.Context, documentID string, b *board.Board) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return pkgerrors.NewDocumentError("encode snapshot", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, SnapshotFileName+".tmp-*")
	if err != nil {
		return pkgerrors.NewIOError("create temp snapshot", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return pkgerrors.NewIOError("write snapshot", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return pkgerrors.NewIOError("close snapshot", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return pkgerrors.NewIOError("replace snapshot", err)
	}

	s.logger.Debug("snapshot saved",
		zap.String("documentID", documentID),
		zap.String("path", s.path),
		zap.Int("nodes", len(b.Nodes)),
	)
	return nil
}
