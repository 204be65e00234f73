// Package di wires the application together with explicit provider
// functions collected into a Container.
package di

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mindlink/application/store"
	"mindlink/infrastructure/config"
	"mindlink/infrastructure/persistence/snapshotfile"
	"mindlink/infrastructure/persistence/sqlmirror"
	"mindlink/interfaces/sync"
)

// Container holds the wired application dependencies.
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	Snapshots store.SnapshotStore
	Store     *store.DocumentStore
	Allocator *store.IdentityAllocator
	Registry  *sync.Registry
}

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideSnapshotStore creates the persistence backend selected by config.
func ProvideSnapshotStore(cfg *config.Config, logger *zap.Logger) (store.SnapshotStore, error) {
	switch cfg.PersistenceBackend {
	case config.BackendSQLite:
		return sqlmirror.Open(cfg.SQLitePath, logger)
	case config.BackendFile:
		return snapshotfile.New(cfg.DataDir, logger)
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.PersistenceBackend)
	}
}

// ProvideDocumentStore creates the document store over a backend.
func ProvideDocumentStore(backend store.SnapshotStore, logger *zap.Logger) *store.DocumentStore {
	return store.NewDocumentStore(backend, logger)
}

// ProvideIdentityAllocator seeds the allocator from the persisted
// snapshot, so ids continue past the highest one that survived restart.
func ProvideIdentityAllocator(ctx context.Context, docStore *store.DocumentStore, cfg *config.Config, logger *zap.Logger) (*store.IdentityAllocator, error) {
	snapshot, err := docStore.LoadSnapshot(ctx, cfg.DocumentID)
	if err != nil {
		// A corrupt snapshot must not keep the server down; the allocator
		// starts fresh and the next write repairs durable state.
		logger.Error("could not read snapshot to seed allocator, starting at 1", zap.Error(err))
		return store.NewIdentityAllocator(nil), nil
	}
	allocator := store.NewIdentityAllocator(snapshot)
	logger.Info("identity allocator seeded",
		zap.Int("maxNodeID", snapshot.MaxNodeID()),
		zap.Int("nodes", len(snapshot.Nodes)),
	)
	return allocator, nil
}

// InitializeContainer wires all dependencies.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	backend, err := ProvideSnapshotStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize persistence: %w", err)
	}

	docStore := ProvideDocumentStore(backend, logger)

	allocator, err := ProvideIdentityAllocator(ctx, docStore, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize allocator: %w", err)
	}

	return &Container{
		Config:    cfg,
		Logger:    logger,
		Snapshots: backend,
		Store:     docStore,
		Allocator: allocator,
		Registry:  sync.NewRegistry(logger),
	}, nil
}
