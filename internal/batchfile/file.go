// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batchfile processes identifier files dropped into a watch
// directory.
//
// A batch file holds one identifier per line; blank lines and lines
// starting with '#' are ignored. After processing, a YAML marker is
// written next to the file as <name>.processed and the file is renamed
// <name>.completed, or <name>.failed when it could not be read.
package batchfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// File name suffixes.
const (
	MarkerSuffix    = ".processed"
	CompletedSuffix = ".completed"
	FailedSuffix    = ".failed"
)

// Marker statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrStopped is returned by ProcessFile when the batch was cancelled
// before every identifier started. The file is left in place, unmarked,
// so it is picked up again on the next run.
var ErrStopped = errors.New("batch stopped before completion")

// BatchExtractor runs a batch extraction.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, identifiers []string) types.BatchSummary
}

// Marker is the record written beside a processed batch file.
type Marker struct {
	Source      string          `yaml:"source"`
	Status      string          `yaml:"status"`
	RunID       string          `yaml:"run_id,omitempty"`
	ProcessedAt time.Time       `yaml:"processed_at"`
	Error       string          `yaml:"error,omitempty"`
	Total       int             `yaml:"total"`
	Succeeded   int             `yaml:"succeeded"`
	Failed      int             `yaml:"failed"`
	Skipped     int             `yaml:"skipped"`
	Outcomes    []types.Outcome `yaml:"outcomes,omitempty"`
}

// ReadIdentifiers returns the identifiers in r, trimmed, in order.
func ReadIdentifiers(r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading identifiers: %w", err)
	}
	return ids, nil
}

// ReadFile returns the identifiers of the batch file at path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIdentifiers(f)
}

// ReadMarker loads the marker written for the batch file at source.
func ReadMarker(source string) (*Marker, error) {
	data, err := os.ReadFile(source + MarkerSuffix)
	if err != nil {
		return nil, err
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing marker for %s: %w", source, err)
	}
	return &m, nil
}

// HasMarker reports whether the batch file at source was processed.
func HasMarker(source string) bool {
	_, err := os.Stat(source + MarkerSuffix)
	return err == nil
}

// Processor runs batch files through an extractor.
type Processor struct {
	extractor BatchExtractor
	now       func() time.Time
	logger    *zap.Logger
}

// NewProcessor creates a Processor. A nil logger discards output.
func NewProcessor(e BatchExtractor, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{extractor: e, now: time.Now, logger: logger}
}

// ProcessFile extracts every identifier in the file at path, writes the
// marker and renames the file. An unreadable file is renamed with
// FailedSuffix and its marker records the error.
func (p *Processor) ProcessFile(ctx context.Context, path string) (types.BatchSummary, error) {
	log := p.logger.With(zap.String("file", path))

	ids, err := ReadFile(path)
	if err != nil {
		log.Error("reading batch file", zap.Error(err))
		m := Marker{Source: path, Status: StatusFailed, ProcessedAt: p.now().UTC(), Error: err.Error()}
		if werr := p.finish(path, m, FailedSuffix); werr != nil {
			return types.BatchSummary{}, errors.Join(err, werr)
		}
		return types.BatchSummary{}, err
	}

	log.Info("processing batch file", zap.Int("identifiers", len(ids)))
	summary := p.extractor.ExtractBatch(ctx, ids)
	if summary.Stopped {
		log.Warn("batch file interrupted", zap.Int("skipped", summary.Skipped))
		return summary, ErrStopped
	}

	m := Marker{
		Source:      path,
		Status:      StatusCompleted,
		RunID:       summary.RunID,
		ProcessedAt: p.now().UTC(),
		Total:       summary.Total(),
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		Skipped:     summary.Skipped,
		Outcomes:    summary.Outcomes,
	}
	if err := p.finish(path, m, CompletedSuffix); err != nil {
		return summary, err
	}

	log.Info("completed batch file",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (p *Processor) finish(path string, m Marker, suffix string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}
	if err := os.WriteFile(path+MarkerSuffix, data, 0o644); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if err := os.Rename(path, path+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	return nil
}
