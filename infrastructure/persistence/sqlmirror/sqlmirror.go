// Package sqlmirror mirrors document snapshots into a relational database.
// It satisfies the same save/load contract as the file backend, so the
// core never knows which one it is writing through.
package sqlmirror

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mindlink/domain/board"
	pkgerrors "mindlink/pkg/errors"
)

// BoardRecord is the per-document row holding snapshot metadata.
type BoardRecord struct {
	DocumentID  string `gorm:"column:document_id;primaryKey;size:190"`
	LastUpdated int64  `gorm:"column:last_updated;not null"`
}

// TableName provides the explicit table binding for GORM.
func (BoardRecord) TableName() string {
	return "board_snapshots"
}

// NodeRecord is one node of a document snapshot.
type NodeRecord struct {
	DocumentID string `gorm:"column:document_id;primaryKey;size:190"`
	NodeID     int    `gorm:"column:node_id;primaryKey"`
	Title      string `gorm:"column:title;type:text"`
	Content    string `gorm:"column:content;type:text"`
	X          int    `gorm:"column:x"`
	Y          int    `gorm:"column:y"`
}

// TableName provides the explicit table binding for GORM.
func (NodeRecord) TableName() string {
	return "board_nodes"
}

// ConnectionRecord is one directed edge, stored on the source node.
// Position preserves the edge order on the source.
type ConnectionRecord struct {
	DocumentID string `gorm:"column:document_id;primaryKey;size:190"`
	SourceID   int    `gorm:"column:source_id;primaryKey"`
	TargetID   int    `gorm:"column:target_id;primaryKey"`
	Position   int    `gorm:"column:position;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ConnectionRecord) TableName() string {
	return "board_connections"
}

// Store is a SnapshotStore backed by SQLite through GORM.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, pkgerrors.NewDocumentError("open snapshot database", err)
	}
	if err := db.AutoMigrate(&BoardRecord{}, &NodeRecord{}, &ConnectionRecord{}); err != nil {
		return nil, pkgerrors.NewDocumentError("migrate snapshot schema", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Load reads the full snapshot for documentID, or (nil, nil) when the
// document has never been saved.
func (s *Store) Load(ctx context.Context, documentID string) (*board.Board, error) {
	var rec BoardRecord
	err := s.db.WithContext(ctx).First(&rec, "document_id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.NewDocumentError("load snapshot row", err)
	}

	var nodes []NodeRecord
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("node_id").
		Find(&nodes).Error; err != nil {
		return nil, pkgerrors.NewDocumentError("load node rows", err)
	}

	var conns []ConnectionRecord
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Find(&conns).Error; err != nil {
		return nil, pkgerrors.NewDocumentError("load connection rows", err)
	}

	bySource := make(map[int][]ConnectionRecord)
	for _, c := range conns {
		bySource[c.SourceID] = append(bySource[c.SourceID], c)
	}

	b := &board.Board{
		Nodes:       make([]board.Node, 0, len(nodes)),
		LastUpdated: rec.LastUpdated,
	}
	for _, n := range nodes {
		targets := bySource[n.NodeID]
		sort.Slice(targets, func(i, j int) bool { return targets[i].Position < targets[j].Position })
		connections := make([]int, 0, len(targets))
		for _, c := range targets {
			connections = append(connections, c.TargetID)
		}
		b.Nodes = append(b.Nodes, board.Node{
			ID:          n.NodeID,
			Title:       n.Title,
			Content:     n.Content,
			X:           n.X,
			Y:           n.Y,
			Connections: connections,
		})
	}
	return b, nil
}

// Save replaces the stored snapshot for documentID wholesale inside one
// transaction.
func (s *Store) Save(ctx context.Context, documentID string, b *board.Board) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&ConnectionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&NodeRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&BoardRecord{}).Error; err != nil {
			return err
		}

		if err := tx.Create(&BoardRecord{
			DocumentID:  documentID,
			LastUpdated: b.LastUpdated,
		}).Error; err != nil {
			return err
		}

		for i := range b.Nodes {
			n := b.Nodes[i]
			if err := tx.Create(&NodeRecord{
				DocumentID: documentID,
				NodeID:     n.ID,
				Title:      n.Title,
				Content:    n.Content,
				X:          n.X,
				Y:          n.Y,
			}).Error; err != nil {
				return err
			}
			for pos, target := range n.Connections {
				if err := tx.Create(&ConnectionRecord{
					DocumentID: documentID,
					SourceID:   n.ID,
					TargetID:   target,
					Position:   pos,
				}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return pkgerrors.NewDocumentError("save snapshot", err)
	}

	s.logger.Debug("snapshot mirrored",
		zap.String("documentID", documentID),
		zap.Int("nodes", len(b.Nodes)),
	)
	return nil
}
