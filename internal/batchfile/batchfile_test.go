// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batchfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// stubExtractor succeeds for identifiers starting with "PMC" and fails
// the rest. It records every batch it receives.
type stubExtractor struct {
	mu      sync.Mutex
	batches [][]string
	stopped bool
}

func (s *stubExtractor) ExtractBatch(_ context.Context, ids []string) types.BatchSummary {
	s.mu.Lock()
	s.batches = append(s.batches, ids)
	s.mu.Unlock()

	summary := types.BatchSummary{RunID: "run-1", Outcomes: make([]types.Outcome, len(ids)), Stopped: s.stopped}
	for i, id := range ids {
		switch {
		case s.stopped && i > 0:
			summary.Outcomes[i] = types.Outcome{Identifier: id, Status: types.OutcomeSkipped}
		case strings.HasPrefix(id, "PMC"):
			summary.Outcomes[i] = types.Outcome{Identifier: id, PaperID: id, Status: types.OutcomeSuccess, Figures: 1}
		default:
			summary.Outcomes[i] = types.Outcome{Identifier: id, Status: types.OutcomeFailed, Kind: "invalid_identifier", Reason: "bad"}
		}
	}
	summary.Tally()
	return summary
}

func (s *stubExtractor) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func writeBatch(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadIdentifiers(t *testing.T) {
	ids, err := ReadIdentifiers(strings.NewReader("PMC1\n\n  # comment\n  PMC2  \r\n12345\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PMC1", "PMC2", "12345"}, ids)

	ids, err = ReadIdentifiers(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProcessFile_WritesMarkerAndRenames(t *testing.T) {
	dir := t.TempDir()
	path := writeBatch(t, dir, "ids.txt", "PMC1\nbogus\nPMC3\n")
	ext := &stubExtractor{}

	summary, err := NewProcessor(ext, nil).ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, [][]string{{"PMC1", "bogus", "PMC3"}}, ext.batches)

	assert.NoFileExists(t, path)
	assert.FileExists(t, path+CompletedSuffix)

	m, err := ReadMarker(path)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 2, m.Succeeded)
	assert.Equal(t, 1, m.Failed)
	require.Len(t, m.Outcomes, 3)
	assert.Equal(t, types.OutcomeFailed, m.Outcomes[1].Status)
	assert.Equal(t, "invalid_identifier", m.Outcomes[1].Kind)
}

func TestProcessFile_Unreadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err := NewProcessor(&stubExtractor{}, nil).ProcessFile(context.Background(), path)
	require.Error(t, err)

	assert.DirExists(t, path+FailedSuffix)
	m, err := ReadMarker(path)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, m.Status)
	assert.NotEmpty(t, m.Error)
}

func TestProcessFile_StoppedLeavesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeBatch(t, dir, "ids.txt", "PMC1\nPMC2\n")

	_, err := NewProcessor(&stubExtractor{stopped: true}, nil).ProcessFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrStopped)
	assert.FileExists(t, path)
	assert.False(t, HasMarker(path))
}

func TestWatcher_MatchExtension(t *testing.T) {
	w := NewWatcher(types.BatchConfig{WatchDir: t.TempDir(), Extensions: []string{"txt", ".IDS"}}, nil)
	tests := map[string]bool{
		"a.txt":            true,
		"a.TXT":            true,
		"a.ids":            true,
		"a.txt.processed":  false,
		"a.txt.completed":  false,
		"a.csv":            false,
		"noext":            false,
	}
	for name, want := range tests {
		assert.Equal(t, want, w.matchExtension(name), name)
	}
}

func TestWatcher_ProcessesExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	existing := writeBatch(t, dir, "existing.txt", "PMC1\n")
	done := writeBatch(t, dir, "done.txt", "PMC9\n")
	require.NoError(t, os.WriteFile(done+MarkerSuffix, []byte("status: completed\n"), 0o644))
	writeBatch(t, dir, "notes.md", "PMC5\n")

	ext := &stubExtractor{}
	w := NewWatcher(types.BatchConfig{WatchDir: dir, Debounce: 50 * time.Millisecond}, NewProcessor(ext, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(existing + CompletedSuffix)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	added := writeBatch(t, dir, "added.txt", "PMC2\nPMC3\n")
	require.Eventually(t, func() bool {
		_, err := os.Stat(added + CompletedSuffix)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)

	assert.Equal(t, 2, ext.count())
	assert.FileExists(t, done)
	assert.FileExists(t, filepath.Join(dir, "notes.md"))
}

func TestWatcher_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "watch")
	w := NewWatcher(types.BatchConfig{WatchDir: dir}, NewProcessor(&stubExtractor{}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.DirExists(t, dir)
}

func TestWatcher_BadSchedule(t *testing.T) {
	w := NewWatcher(types.BatchConfig{WatchDir: t.TempDir(), SweepSchedule: "every tuesday"}, NewProcessor(&stubExtractor{}, nil))
	assert.Error(t, w.Run(context.Background()))
}
