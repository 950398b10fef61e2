// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// maxConflictRetries bounds retries of a Save that lost a transaction
// conflict to a concurrent writer.
const maxConflictRetries = 3

// BadgerStore keeps each record as one JSON value keyed by paper ID.
type BadgerStore struct {
	store  *badgerhold.Store
	dir    string
	locks  keyedMutex
	logger *zap.Logger
}

// NewBadgerStore opens or creates a Badger database in dir.
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger store: empty data directory")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	logger.Debug("badger store opened", zap.String("dir", dir))
	return &BadgerStore{store: store, dir: dir, logger: logger}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.store.Close()
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.store.Badger().IsClosed() {
		return fmt.Errorf("%w: badger database is closed", types.ErrStoreFailure)
	}
	return ctx.Err()
}

// Save upserts rec in a single Badger transaction.
func (s *BadgerStore) Save(ctx context.Context, rec *types.PaperRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: saving %s: %w", types.ErrStoreFailure, rec.ID, err)
	}

	unlock := s.locks.Lock(rec.ID)
	defer unlock()

	doc := *rec
	doc.RetrievedAt = doc.RetrievedAt.UTC()

	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = s.store.Upsert(rec.ID, doc)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("badger write conflict, retrying", zap.String("id", rec.ID), zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return fmt.Errorf("%w: saving %s: %w", types.ErrStoreFailure, rec.ID, err)
	}
	return nil
}

// Get reads the record with the given ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*types.PaperRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", types.ErrStoreFailure, id, err)
	}

	var rec types.PaperRecord
	if err := s.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: paper %s", types.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: reading %s: %w", types.ErrStoreFailure, id, err)
	}
	rec.Normalize()
	return &rec, nil
}

// List returns summaries of all stored papers ordered by ID.
func (s *BadgerStore) List(ctx context.Context) ([]types.PaperSummary, error) {
	summaries := []types.PaperSummary{}
	err := s.store.ForEach(nil, func(rec *types.PaperRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		summaries = append(summaries, rec.Summary())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing papers: %w", types.ErrStoreFailure, err)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// Stats counts stored papers, figures and entities.
func (s *BadgerStore) Stats(ctx context.Context) (types.StoreStats, error) {
	stats := types.StoreStats{Backend: types.BackendBadger, Location: s.dir}
	summaries, err := s.List(ctx)
	if err != nil {
		return stats, err
	}
	for _, sum := range summaries {
		stats.Papers++
		stats.Figures += sum.Figures
		stats.Entities += sum.Entities
	}
	return stats, nil
}

// keyedMutex serializes work per key. Entries are dropped once no
// goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
