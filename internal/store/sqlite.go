// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// SQLiteStore keeps records in three tables: papers, figures and entities.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLiteStore opens or creates the database at path and creates the
// schema if it does not exist. Write transactions take the write lock up
// front so concurrent savers queue on the busy timeout instead of failing.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: empty database path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=10000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("sqlite store opened", zap.String("path", path))
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			abstract TEXT NOT NULL DEFAULT '',
			retrieved_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS figures (
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			caption TEXT NOT NULL DEFAULT '',
			image_ref TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (paper_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			paper_id TEXT NOT NULL,
			figure_position INTEGER NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			type TEXT NOT NULL,
			normalized_id TEXT NOT NULL DEFAULT '',
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (paper_id, figure_position, position),
			FOREIGN KEY (paper_id, figure_position)
				REFERENCES figures(paper_id, position) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts rec in a single transaction, replacing all figures and
// entities previously stored for the same ID.
func (s *SQLiteStore) Save(ctx context.Context, rec *types.PaperRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if err := s.save(ctx, rec); err != nil {
		return fmt.Errorf("%w: saving %s: %w", types.ErrStoreFailure, rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, rec *types.PaperRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO papers (id, title, abstract, retrieved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, abstract=excluded.abstract,
			retrieved_at=excluded.retrieved_at`,
		rec.ID, rec.Title, rec.Abstract, rec.RetrievedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting paper: %w", err)
	}

	// Child rows are replaced wholesale so re-extraction never accumulates.
	if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE paper_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("deleting old entities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM figures WHERE paper_id = ?`, rec.ID); err != nil {
		return fmt.Errorf("deleting old figures: %w", err)
	}

	figStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO figures (paper_id, position, label, caption, image_ref) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing figure insert: %w", err)
	}
	defer figStmt.Close()

	entStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (paper_id, figure_position, position, text, type, normalized_id, start_offset, end_offset)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing entity insert: %w", err)
	}
	defer entStmt.Close()

	for i, fig := range rec.Figures {
		if _, err := figStmt.ExecContext(ctx, rec.ID, i, fig.Label, fig.Caption, fig.ImageRef); err != nil {
			return fmt.Errorf("inserting figure %d: %w", i, err)
		}
		for j, m := range fig.Entities {
			_, err := entStmt.ExecContext(ctx, rec.ID, i, j, m.Text, m.Type, m.NormalizedID, m.Start, m.End)
			if err != nil {
				return fmt.Errorf("inserting entity %d of figure %d: %w", j, i, err)
			}
		}
	}

	return tx.Commit()
}

// Get reads the record with the given ID. All reads run in one
// transaction so a concurrent Save is seen entirely or not at all.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.PaperRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning read: %w", types.ErrStoreFailure, err)
	}
	defer tx.Rollback()

	rec := &types.PaperRecord{ID: id}
	var retrieved string
	err = tx.QueryRowContext(ctx,
		`SELECT title, abstract, retrieved_at FROM papers WHERE id = ?`, id,
	).Scan(&rec.Title, &rec.Abstract, &retrieved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: paper %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading paper %s: %w", types.ErrStoreFailure, id, err)
	}
	rec.RetrievedAt, err = time.Parse(time.RFC3339Nano, retrieved)
	if err != nil {
		return nil, fmt.Errorf("%w: paper %s has bad retrieved_at %q: %w", types.ErrStoreFailure, id, retrieved, err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT label, caption, image_ref FROM figures WHERE paper_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reading figures of %s: %w", types.ErrStoreFailure, id, err)
	}
	rec.Figures = []types.FigureRecord{}
	for rows.Next() {
		var f types.FigureRecord
		if err := rows.Scan(&f.Label, &f.Caption, &f.ImageRef); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scanning figure: %w", types.ErrStoreFailure, err)
		}
		f.Entities = []types.EntityMention{}
		rec.Figures = append(rec.Figures, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating figures: %w", types.ErrStoreFailure, err)
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT figure_position, text, type, normalized_id, start_offset, end_offset
		 FROM entities WHERE paper_id = ? ORDER BY figure_position, position`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reading entities of %s: %w", types.ErrStoreFailure, id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var pos int
		var m types.EntityMention
		if err := rows.Scan(&pos, &m.Text, &m.Type, &m.NormalizedID, &m.Start, &m.End); err != nil {
			return nil, fmt.Errorf("%w: scanning entity: %w", types.ErrStoreFailure, err)
		}
		if pos < 0 || pos >= len(rec.Figures) {
			return nil, fmt.Errorf("%w: entity refers to missing figure %d of %s", types.ErrStoreFailure, pos, id)
		}
		rec.Figures[pos].Entities = append(rec.Figures[pos].Entities, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating entities: %w", types.ErrStoreFailure, err)
	}

	return rec, nil
}

// List returns summaries of all stored papers ordered by ID.
func (s *SQLiteStore) List(ctx context.Context) ([]types.PaperSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.title, p.retrieved_at,
			(SELECT count(*) FROM figures f WHERE f.paper_id = p.id),
			(SELECT count(*) FROM entities e WHERE e.paper_id = p.id)
		 FROM papers p ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing papers: %w", types.ErrStoreFailure, err)
	}
	defer rows.Close()

	summaries := []types.PaperSummary{}
	for rows.Next() {
		var sum types.PaperSummary
		var retrieved string
		if err := rows.Scan(&sum.ID, &sum.Title, &retrieved, &sum.Figures, &sum.Entities); err != nil {
			return nil, fmt.Errorf("%w: scanning paper: %w", types.ErrStoreFailure, err)
		}
		sum.RetrievedAt, _ = time.Parse(time.RFC3339Nano, retrieved)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating papers: %w", types.ErrStoreFailure, err)
	}
	return summaries, nil
}

// Stats counts stored papers, figures and entities.
func (s *SQLiteStore) Stats(ctx context.Context) (types.StoreStats, error) {
	stats := types.StoreStats{Backend: types.BackendSQLite, Location: s.path}
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT count(*) FROM papers), (SELECT count(*) FROM figures), (SELECT count(*) FROM entities)`,
	).Scan(&stats.Papers, &stats.Figures, &stats.Entities)
	if err != nil {
		return stats, fmt.Errorf("%w: counting rows: %w", types.ErrStoreFailure, err)
	}
	return stats, nil
}
