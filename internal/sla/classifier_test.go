package sla

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jikanhq/jikan/internal/model"
)

// fakeLister counts upstream calls and can be told to fail.
type fakeLister struct {
	calls atomic.Int64
	defs  []model.StatusDefinition
	err   error
}

func (f *fakeLister) ListStatuses(ctx context.Context) ([]model.StatusDefinition, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.defs, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func catalogLister() *fakeLister {
	return &fakeLister{defs: []model.StatusDefinition{
		{Name: "To Do", CategoryKey: "new"},
		{Name: "In Progress", CategoryKey: "indeterminate"},
		{Name: "Blocked", CategoryKey: "indeterminate"},
		{Name: "Done", CategoryKey: "done"},
	}}
}

func TestClassifierUsesCatalog(t *testing.T) {
	c := NewClassifier(catalogLister(), testLogger())
	ctx := context.Background()

	assert.True(t, c.IsInProgress(ctx, "In Progress"))
	assert.True(t, c.IsInProgress(ctx, "Blocked"))
	assert.False(t, c.IsInProgress(ctx, "To Do"))
	assert.False(t, c.IsInProgress(ctx, "Done"))
}

func TestClassifierCaseInsensitive(t *testing.T) {
	c := NewClassifier(catalogLister(), testLogger())
	ctx := context.Background()

	assert.True(t, c.IsInProgress(ctx, "IN PROGRESS"))
	assert.True(t, c.IsInProgress(ctx, "blocked"))
	assert.False(t, c.IsInProgress(ctx, "DONE"))
}

func TestClassifierFetchesCatalogOnce(t *testing.T) {
	lister := catalogLister()
	c := NewClassifier(lister, testLogger())
	ctx := context.Background()

	for range 50 {
		c.IsInProgress(ctx, "In Progress")
		c.IsInProgress(ctx, "Done")
	}
	assert.Equal(t, int64(1), lister.calls.Load())
}

func TestClassifierFailedFetchIsNotRetried(t *testing.T) {
	lister := &fakeLister{err: errors.New("upstream down")}
	c := NewClassifier(lister, testLogger())
	ctx := context.Background()

	for range 10 {
		c.IsInProgress(ctx, "Done")
	}
	assert.Equal(t, int64(1), lister.calls.Load())
}

func TestClassifierHeuristicFallback(t *testing.T) {
	c := NewClassifier(&fakeLister{err: errors.New("upstream down")}, testLogger())
	ctx := context.Background()

	assert.True(t, c.IsInProgress(ctx, "In Progress"))
	assert.True(t, c.IsInProgress(ctx, "In Development"))
	assert.True(t, c.IsInProgress(ctx, "Code Review"))
	assert.True(t, c.IsInProgress(ctx, "Working"))
	assert.False(t, c.IsInProgress(ctx, "To Do"))
	assert.False(t, c.IsInProgress(ctx, "Done"))
}

func TestClassifierHeuristicForUnknownStatus(t *testing.T) {
	// Catalog is healthy but does not know the status: fall through to
	// the name heuristic rather than defaulting to false.
	c := NewClassifier(catalogLister(), testLogger())
	ctx := context.Background()

	assert.True(t, c.IsInProgress(ctx, "Under Review"))
	assert.False(t, c.IsInProgress(ctx, "Parked"))
}

func TestClassifierConcurrentFirstUse(t *testing.T) {
	lister := catalogLister()
	c := NewClassifier(lister, testLogger())

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IsInProgress(context.Background(), "In Progress")
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), lister.calls.Load())
}
