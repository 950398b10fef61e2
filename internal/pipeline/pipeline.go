// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline composes the article fetcher, the entity annotator and
// the store into single and batch extractions.
//
// An extraction moves through FETCHING, one ANNOTATING step per captioned
// figure, ASSEMBLED and STORED. Any unrecovered failure ends in FAILED and
// is reported as a *types.ExtractionError; nothing is stored for a failed
// extraction. Annotation failures are recovered per figure.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// Fetcher retrieves a partial record (no entities) for a canonical ID.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*types.PaperRecord, error)
}

// Annotator returns the entity mentions of one caption. Soft failures
// return an error wrapping types.ErrAnnotationDegraded.
type Annotator interface {
	Annotate(ctx context.Context, caption string) ([]types.EntityMention, error)
}

// Resolver maps a user-supplied identifier to a canonical ID.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Store persists assembled records.
type Store interface {
	Save(ctx context.Context, rec *types.PaperRecord) error
}

const defaultWorkers = 4

// Extractor runs extractions. It is safe for concurrent use.
type Extractor struct {
	fetcher   Fetcher
	annotator Annotator
	resolver  Resolver
	store     Store
	workers   int
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAnnotator enables caption annotation. Without an annotator every
// figure is stored with zero entities.
func WithAnnotator(a Annotator) Option {
	return func(e *Extractor) { e.annotator = a }
}

// WithResolver enables identifier resolution (for example PMID to PMCID).
// Without a resolver identifiers must already be canonical.
func WithResolver(r Resolver) Option {
	return func(e *Extractor) { e.resolver = r }
}

// WithWorkers sets the number of identifiers ExtractBatch processes
// concurrently.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock overrides the time source used for RetrievedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Extractor.
func New(f Fetcher, s Store, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher: f,
		store:   s,
		workers: defaultWorkers,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one successful extraction.
type Result struct {
	Record *types.PaperRecord

	// Degraded counts figures whose annotation failed softly.
	Degraded int
}

// Extract fetches, annotates, assembles and stores one paper. Re-running
// it for the same identifier replaces the stored record in full.
func (e *Extractor) Extract(ctx context.Context, identifier string) (*types.PaperRecord, error) {
	res, err := e.extract(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

func (e *Extractor) extract(ctx context.Context, identifier string) (Result, error) {
	identifier = strings.TrimSpace(identifier)
	log := e.logger.With(zap.String("identifier", identifier))

	fail := func(stage types.Stage, err error) (Result, error) {
		log.Warn("extraction failed",
			zap.String("stage", string(stage)),
			zap.String("kind", types.ErrorKind(err)),
			zap.Error(err))
		return Result{}, &types.ExtractionError{Identifier: identifier, Stage: stage, Err: err}
	}

	id := identifier
	if e.resolver != nil {
		resolved, err := e.resolver.Resolve(ctx, identifier)
		if err != nil {
			return fail(types.StageResolving, err)
		}
		id = resolved
		log = log.With(zap.String("id", id))
	}

	log.Debug("state", zap.String("stage", string(types.StageFetching)))
	rec, err := e.fetcher.Fetch(ctx, id)
	if err != nil {
		return fail(types.StageFetching, err)
	}

	degraded := 0
	for i := range rec.Figures {
		fig := &rec.Figures[i]
		fig.Entities = []types.EntityMention{}
		if e.annotator == nil || strings.TrimSpace(fig.Caption) == "" {
			continue
		}

		log.Debug("state", zap.String("stage", string(types.StageAnnotating)), zap.Int("figure", i))
		mentions, err := e.annotator.Annotate(ctx, fig.Caption)
		switch {
		case err == nil:
			fig.Entities = append(fig.Entities, mentions...)
		case errors.Is(err, types.ErrAnnotationDegraded):
			degraded++
			log.Warn("figure annotation degraded", zap.Int("figure", i), zap.Error(err))
		default:
			return fail(types.StageAnnotating, err)
		}
	}

	rec.RetrievedAt = e.now().UTC().Round(0)
	rec.Normalize()
	log.Debug("state", zap.String("stage", string(types.StageAssembled)))

	if err := e.store.Save(ctx, rec); err != nil {
		if !errors.Is(err, types.ErrStoreFailure) {
			err = errors.Join(types.ErrStoreFailure, err)
		}
		return fail(types.StageStoring, err)
	}

	log.Info("extracted paper",
		zap.String("id", rec.ID),
		zap.Int("figures", len(rec.Figures)),
		zap.Int("entities", rec.EntityCount()),
		zap.Int("degraded", degraded))
	return Result{Record: rec, Degraded: degraded}, nil
}
