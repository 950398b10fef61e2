// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

type job struct {
	index      int
	identifier string
}

// ExtractBatch extracts every identifier independently and returns one
// outcome per identifier in input order. A failed identifier never stops
// the batch.
//
// When ctx is cancelled no further identifiers are started. Extractions
// already running finish on a context detached from the cancellation;
// the rest are reported as skipped and the summary is marked Stopped.
func (e *Extractor) ExtractBatch(ctx context.Context, identifiers []string) types.BatchSummary {
	summary := types.BatchSummary{
		RunID:     uuid.NewString(),
		StartedAt: e.now().UTC(),
		Outcomes:  make([]types.Outcome, len(identifiers)),
	}
	log := e.logger.With(zap.String("run_id", summary.RunID))
	log.Info("batch started", zap.Int("identifiers", len(identifiers)), zap.Int("workers", e.workers))

	for i, id := range identifiers {
		summary.Outcomes[i] = types.Outcome{
			Identifier: id,
			Status:     types.OutcomeSkipped,
			Reason:     "batch stopped before this identifier was started",
		}
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	workCtx := context.WithoutCancel(ctx)

	workers := min(e.workers, len(identifiers))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				summary.Outcomes[j.index] = e.outcome(workCtx, j.identifier)
			}
		}()
	}

dispatch:
	for i, id := range identifiers {
		// Check first so a cancelled context never races a ready worker.
		if ctx.Err() != nil {
			summary.Stopped = true
			break
		}
		select {
		case <-ctx.Done():
			summary.Stopped = true
			break dispatch
		case jobs <- job{index: i, identifier: id}:
		}
	}
	close(jobs)
	wg.Wait()

	summary.FinishedAt = e.now().UTC()
	summary.Tally()
	log.Info("batch finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("stopped", summary.Stopped))
	return summary
}

func (e *Extractor) outcome(ctx context.Context, identifier string) types.Outcome {
	res, err := e.extract(ctx, identifier)
	if err != nil {
		return types.Outcome{
			Identifier: identifier,
			Status:     types.OutcomeFailed,
			Kind:       types.ErrorKind(err),
			Reason:     err.Error(),
		}
	}
	return types.Outcome{
		Identifier: identifier,
		PaperID:    res.Record.ID,
		Status:     types.OutcomeSuccess,
		Figures:    len(res.Record.Figures),
		Entities:   res.Record.EntityCount(),
		Degraded:   res.Degraded,
	}
}
