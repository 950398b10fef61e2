// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extractor/internal/fetch"
	"github.com/pdiddy/paper-extractor/internal/store"
	"github.com/pdiddy/paper-extractor/pkg/types"
)

// --- fakes ---

// fakeFetcher serves canned articles keyed by ID. Each call returns a
// fresh copy so callers may mutate the result.
type fakeFetcher struct {
	articles map[string]func() *types.PaperRecord
	calls    int32
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (*types.PaperRecord, error) {
	atomic.AddInt32(&f.calls, 1)
	if t, _ := fetch.Classify(id); t != fetch.TypePMC {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidIdentifier, id)
	}
	mk, ok := f.articles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	return mk(), nil
}

// fakeAnnotator tags every capitalized word as a gene and can be told to
// fail on particular captions.
type fakeAnnotator struct {
	mu       sync.Mutex
	captions []string
	failOn   map[string]error
}

func (a *fakeAnnotator) Annotate(_ context.Context, caption string) ([]types.EntityMention, error) {
	a.mu.Lock()
	a.captions = append(a.captions, caption)
	a.mu.Unlock()

	if err, ok := a.failOn[caption]; ok {
		return []types.EntityMention{}, err
	}
	var out []types.EntityMention
	offset := 0
	for _, w := range strings.Fields(caption) {
		start := strings.Index(caption[offset:], w) + offset
		if w == strings.ToUpper(w) && strings.ToLower(w) != w {
			out = append(out, types.EntityMention{Text: w, Type: "gene", Start: start, End: start + len(w)})
		}
		offset = start + len(w)
	}
	return out, nil
}

func (a *fakeAnnotator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.captions)
}

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	records map[string]types.PaperRecord
	err     error
}

func newMemStore() *memStore {
	return &memStore{records: map[string]types.PaperRecord{}}
}

func (s *memStore) Save(_ context.Context, rec *types.PaperRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = *rec
	return nil
}

func (s *memStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

func article(id string, captions ...string) func() *types.PaperRecord {
	return func() *types.PaperRecord {
		rec := &types.PaperRecord{ID: id, Title: "Title of " + id, Abstract: "Abstract."}
		for i, c := range captions {
			rec.Figures = append(rec.Figures, types.FigureRecord{
				Label:    fmt.Sprintf("F%d", i+1),
				Caption:  c,
				ImageRef: fmt.Sprintf("f%d.jpg", i+1),
			})
		}
		return rec
	}
}

func fixedClock() func() time.Time {
	var n int64
	return func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, int(atomic.AddInt64(&n, 1)), 0, time.UTC)
	}
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Extract ---

func TestExtract_StoredRecordMatchesFetchOrder(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", "BRCA1 in tumours", "", "TP53 and MDM2 binding", "Plain caption"),
	}}
	db := newSQLite(t)
	e := New(ff, db, WithAnnotator(&fakeAnnotator{}), WithClock(fixedClock()))

	rec, err := e.Extract(context.Background(), "PMC1")
	require.NoError(t, err)

	got, err := db.Get(context.Background(), "PMC1")
	require.NoError(t, err)

	require.Len(t, got.Figures, 4)
	want := article("PMC1", "BRCA1 in tumours", "", "TP53 and MDM2 binding", "Plain caption")()
	for i := range want.Figures {
		assert.Equal(t, want.Figures[i].Caption, got.Figures[i].Caption, "figure %d", i)
		assert.Equal(t, want.Figures[i].Label, got.Figures[i].Label, "figure %d", i)
	}
	assert.Equal(t, rec.Figures, got.Figures)
	assert.Equal(t, []string{"TP53", "MDM2"}, []string{got.Figures[2].Entities[0].Text, got.Figures[2].Entities[1].Text})
	assert.Empty(t, got.Figures[1].Entities)
	assert.Empty(t, got.Figures[3].Entities)
}

func TestExtract_Idempotent(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", "BRCA1 in tumours", "TP53 staining"),
	}}
	db := newSQLite(t)
	e := New(ff, db, WithAnnotator(&fakeAnnotator{}), WithClock(fixedClock()))
	ctx := context.Background()

	_, err := e.Extract(ctx, "PMC1")
	require.NoError(t, err)
	first, err := db.Get(ctx, "PMC1")
	require.NoError(t, err)

	_, err = e.Extract(ctx, "PMC1")
	require.NoError(t, err)
	second, err := db.Get(ctx, "PMC1")
	require.NoError(t, err)

	assert.True(t, second.RetrievedAt.After(first.RetrievedAt))
	first.RetrievedAt, second.RetrievedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, second)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Papers)
	assert.Equal(t, 2, stats.Entities)
}

func TestExtract_AnnotatesOnlyNonEmptyCaptions(t *testing.T) {
	tests := []struct {
		name     string
		captions []string
		want     int
	}{
		{"all captioned", []string{"A one", "B two", "C three"}, 3},
		{"some empty", []string{"A one", "", "  ", "D four"}, 2},
		{"all empty", []string{"", ""}, 0},
		{"no figures", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
				"PMC1": article("PMC1", tt.captions...),
			}}
			ann := &fakeAnnotator{}
			e := New(ff, newMemStore(), WithAnnotator(ann))

			rec, err := e.Extract(context.Background(), "PMC1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ann.count())
			for _, f := range rec.Figures {
				if strings.TrimSpace(f.Caption) == "" {
					assert.Empty(t, f.Entities)
				}
				assert.NotNil(t, f.Entities)
			}
		})
	}
}

func TestExtract_AnnotationFailureIsIsolated(t *testing.T) {
	captions := []string{"BRCA1 first", "TP53 second", "KRAS third"}
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", captions...),
	}}
	ann := &fakeAnnotator{failOn: map[string]error{
		"TP53 second": fmt.Errorf("%w: timeout", types.ErrAnnotationDegraded),
	}}
	ms := newMemStore()
	e := New(ff, ms, WithAnnotator(ann))

	res, err := e.extract(context.Background(), "PMC1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Degraded)

	rec := res.Record
	require.Len(t, rec.Figures, 3)
	assert.Equal(t, "BRCA1", rec.Figures[0].Entities[0].Text)
	assert.Empty(t, rec.Figures[1].Entities)
	assert.Equal(t, "KRAS", rec.Figures[2].Entities[0].Text)
	assert.True(t, ms.has("PMC1"))
}

func TestExtract_HardAnnotatorErrorFails(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", "BRCA1 first"),
	}}
	ann := &fakeAnnotator{failOn: map[string]error{"BRCA1 first": context.Canceled}}
	ms := newMemStore()
	e := New(ff, ms, WithAnnotator(ann))

	_, err := e.Extract(context.Background(), "PMC1")
	require.Error(t, err)

	var ee *types.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, types.StageAnnotating, ee.Stage)
	assert.False(t, ms.has("PMC1"))
}

func TestExtract_NotFoundStoresNothing(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{}}
	db := newSQLite(t)
	ann := &fakeAnnotator{}
	e := New(ff, db, WithAnnotator(ann))

	_, err := e.Extract(context.Background(), "PMC404")
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, "not_found", types.ErrorKind(err))
	assert.Equal(t, 0, ann.count())

	_, err = db.Get(context.Background(), "PMC404")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestExtract_StoreFailure(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", "BRCA1 first"),
	}}
	ms := newMemStore()
	ms.err = errors.New("disk full")
	e := New(ff, ms)

	_, err := e.Extract(context.Background(), "PMC1")
	assert.ErrorIs(t, err, types.ErrExtractionFailed)
	assert.ErrorIs(t, err, types.ErrStoreFailure)

	var ee *types.ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, types.StageStoring, ee.Stage)
}

func TestExtract_WithoutAnnotator(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", "BRCA1 first", "TP53 second"),
	}}
	e := New(ff, newMemStore())

	rec, err := e.Extract(context.Background(), "PMC1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.EntityCount())
	for _, f := range rec.Figures {
		assert.NotNil(t, f.Entities)
	}
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, identifier string) (string, error) {
	if id, ok := m[identifier]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", types.ErrInvalidIdentifier, identifier)
}

func TestExtract_ResolvesIdentifier(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC7": article("PMC7", "BRCA1 first"),
	}}
	e := New(ff, newMemStore(), WithResolver(mapResolver{"35012345": "PMC7"}))

	rec, err := e.Extract(context.Background(), " 35012345 ")
	require.NoError(t, err)
	assert.Equal(t, "PMC7", rec.ID)

	_, err = e.Extract(context.Background(), "99999999")
	assert.ErrorIs(t, err, types.ErrInvalidIdentifier)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ff.calls))
}

// --- ExtractBatch ---

func TestExtractBatch_PartialSuccess(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{
		"PMC1": article("PMC1", "BRCA1 first"),
		"PMC3": article("PMC3", "TP53 second", ""),
	}}
	db := newSQLite(t)
	e := New(ff, db, WithAnnotator(&fakeAnnotator{}), WithWorkers(2))

	summary := e.ExtractBatch(context.Background(), []string{"PMC1", "B", "PMC3"})

	require.Len(t, summary.Outcomes, 3)
	assert.Equal(t, types.OutcomeSuccess, summary.Outcomes[0].Status)
	assert.Equal(t, types.OutcomeFailed, summary.Outcomes[1].Status)
	assert.Equal(t, "invalid_identifier", summary.Outcomes[1].Kind)
	assert.NotEmpty(t, summary.Outcomes[1].Reason)
	assert.Equal(t, types.OutcomeSuccess, summary.Outcomes[2].Status)
	assert.Equal(t, 2, summary.Outcomes[2].Figures)
	assert.Equal(t, 1, summary.Outcomes[2].Entities)

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, summary.HasFailures())
	assert.False(t, summary.Stopped)
	assert.NotEmpty(t, summary.RunID)

	list, err := db.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "PMC1", list[0].ID)
	assert.Equal(t, "PMC3", list[1].ID)
}

func TestExtractBatch_PreservesInputOrder(t *testing.T) {
	articles := map[string]func() *types.PaperRecord{}
	var ids []string
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("PMC%d", i+1)
		articles[id] = article(id, "GENE caption")
		ids = append(ids, id)
	}
	e := New(&fakeFetcher{articles: articles}, newMemStore(), WithWorkers(6))

	summary := e.ExtractBatch(context.Background(), ids)
	require.Len(t, summary.Outcomes, len(ids))
	for i, o := range summary.Outcomes {
		assert.Equal(t, ids[i], o.Identifier)
		assert.Equal(t, ids[i], o.PaperID)
		assert.Equal(t, types.OutcomeSuccess, o.Status)
	}
	assert.Equal(t, 25, summary.Total())
}

func TestExtractBatch_Empty(t *testing.T) {
	e := New(&fakeFetcher{}, newMemStore())
	summary := e.ExtractBatch(context.Background(), nil)
	assert.Equal(t, 0, summary.Total())
	assert.False(t, summary.HasFailures())
}

// blockingFetcher holds the first fetch until released.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingFetcher) Fetch(ctx context.Context, id string) (*types.PaperRecord, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return article(id, "BRCA1 caption")(), nil
}

func TestExtractBatch_CancelStopsDispatch(t *testing.T) {
	bf := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	ms := newMemStore()
	e := New(bf, ms, WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan types.BatchSummary)
	go func() { done <- e.ExtractBatch(ctx, []string{"PMC1", "PMC2", "PMC3"}) }()

	<-bf.started
	cancel()
	// Give the dispatcher a moment to observe the cancellation before the
	// in-flight extraction completes.
	time.Sleep(20 * time.Millisecond)
	close(bf.release)

	summary := <-done
	assert.True(t, summary.Stopped)
	assert.Equal(t, types.OutcomeSuccess, summary.Outcomes[0].Status)
	assert.Equal(t, types.OutcomeSkipped, summary.Outcomes[1].Status)
	assert.Equal(t, types.OutcomeSkipped, summary.Outcomes[2].Status)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.True(t, ms.has("PMC1"))
	assert.False(t, ms.has("PMC2"))
}

func TestExtractBatch_AlreadyCancelled(t *testing.T) {
	ff := &fakeFetcher{articles: map[string]func() *types.PaperRecord{"PMC1": article("PMC1")}}
	e := New(ff, newMemStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := e.ExtractBatch(ctx, []string{"PMC1", "PMC2"})
	assert.True(t, summary.Stopped)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ff.calls))
}
