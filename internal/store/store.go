// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists PaperRecords. Two interchangeable backends are
// provided: a relational SQLite store and an embedded Badger key-value
// store. Callers select one through configuration and use only the Store
// interface.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// Store is the persistence capability shared by all backends.
//
// Save replaces any prior record with the same ID in full; readers observe
// either the old or the new record, never a mix. Saves of different IDs
// may run concurrently; saves of the same ID are serialized.
type Store interface {
	Save(ctx context.Context, rec *types.PaperRecord) error

	// Get returns the record or an error wrapping types.ErrNotFound.
	Get(ctx context.Context, id string) (*types.PaperRecord, error)

	// List returns summaries of all records ordered by ID.
	List(ctx context.Context) ([]types.PaperSummary, error)

	Stats(ctx context.Context) (types.StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(cfg types.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case types.BackendSQLite, "":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case types.BackendBadger:
		return NewBadgerStore(cfg.BadgerDir, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func validateRecord(rec *types.PaperRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", types.ErrStoreFailure)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: record has no id", types.ErrStoreFailure)
	}
	return nil
}
