package sla

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jikanhq/jikan/internal/model"
)

// fakeFetcher serves canned histories and fails for keys in failing.
type fakeFetcher struct {
	histories map[string]model.IssueHistory
	failing   map[string]error
	calls     atomic.Int64
}

func (f *fakeFetcher) GetIssueHistory(ctx context.Context, key string) (model.IssueHistory, error) {
	f.calls.Add(1)
	if err, ok := f.failing[key]; ok {
		return model.IssueHistory{}, err
	}
	h, ok := f.histories[key]
	if !ok {
		return model.IssueHistory{}, errors.New("tracker: issue not found")
	}
	return h, nil
}

func newTestEngine(t *testing.T, fetcher *fakeFetcher, lister StatusLister) *Engine {
	t.Helper()
	if lister == nil {
		lister = catalogLister()
	}
	engine, err := NewEngine(fetcher, NewClassifier(lister, testLogger()), CalendarConfig{}, nil, testLogger())
	require.NoError(t, err)
	engine.now = func() time.Time { return utc(2023, time.July, 1, 0, 0) }
	return engine
}

func resolvedHistory(key string) model.IssueHistory {
	h := sampleHistory()
	h.Key = key
	h.ResolutionDate = tp(utc(2023, time.June, 8, 9, 0))
	return h
}

func TestNewEngineRejectsBadCalendar(t *testing.T) {
	_, err := NewEngine(&fakeFetcher{}, NewClassifier(catalogLister(), testLogger()),
		CalendarConfig{WorkingDays: []int{9}}, nil, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "working days")
}

func TestComputeRunsRequestedMetricsOnly(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	resp, err := engine.Compute(context.Background(), "PROJ-1",
		[]string{model.MetricCycleTime, model.MetricLeadTime}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "PROJ-1", resp.IssueKey)
	require.NotNil(t, resp.Metrics.CycleTime)
	assert.True(t, resp.Metrics.CycleTime.Calculated)
	require.NotNil(t, resp.Metrics.CycleTime.ValueMinutes)
	assert.Equal(t, 7*1440, *resp.Metrics.CycleTime.ValueMinutes)

	require.NotNil(t, resp.Metrics.LeadTime)
	assert.Nil(t, resp.Metrics.TimeInStatus)
	assert.Nil(t, resp.Metrics.DueDateCompliance)
	assert.Nil(t, resp.Metrics.ResolutionTime)
	assert.Nil(t, resp.Metrics.FirstResponseTime)
	assert.Nil(t, resp.RawDates)
}

func TestComputeFiltersUnknownMetrics(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	resp, err := engine.Compute(context.Background(), "PROJ-1",
		[]string{"velocity", model.MetricLeadTime, model.MetricLeadTime}, Options{})
	require.NoError(t, err)
	require.NotNil(t, resp.Metrics.LeadTime)
	assert.Nil(t, resp.Metrics.CycleTime)
}

func TestComputeDefaultsToAllMetrics(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	resp, err := engine.Compute(context.Background(), "PROJ-1", nil, Options{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Metrics.CycleTime)
	assert.NotNil(t, resp.Metrics.LeadTime)
	assert.NotNil(t, resp.Metrics.TimeInStatus)
	assert.NotNil(t, resp.Metrics.DueDateCompliance)
	assert.NotNil(t, resp.Metrics.ResolutionTime)
	assert.NotNil(t, resp.Metrics.FirstResponseTime)
}

func TestComputeIncludeRawDates(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	resp, err := engine.Compute(context.Background(), "PROJ-1",
		[]string{model.MetricLeadTime}, Options{IncludeRawDates: true})
	require.NoError(t, err)
	require.NotNil(t, resp.RawDates)
	assert.Equal(t, "Done", resp.RawDates.CurrentStatus)
	assert.Len(t, resp.RawDates.StatusChanges, 3)
	require.NotNil(t, resp.RawDates.ResolutionDate)
}

func TestComputeFetchErrorPropagates(t *testing.T) {
	fetcher := &fakeFetcher{failing: map[string]error{
		"PROJ-X": errors.New("boom"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	_, err := engine.Compute(context.Background(), "PROJ-X", nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROJ-X")
	assert.Contains(t, err.Error(), "boom")
}

func TestComputeWorkingHoursOverride(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	on := true
	resp, err := engine.Compute(context.Background(), "PROJ-1",
		[]string{model.MetricCycleTime}, Options{WorkingHoursOnly: &on})
	require.NoError(t, err)

	// June 1 09:00 -> June 8 09:00 under 09:00-17:00 Mon-Fri:
	// Thu+Fri+Mon+Tue+Wed full days.
	require.NotNil(t, resp.Metrics.CycleTime.ValueMinutes)
	assert.Equal(t, 5*480, *resp.Metrics.CycleTime.ValueMinutes)
}

func TestComputeBatchIsolation(t *testing.T) {
	fetcher := &fakeFetcher{
		histories: map[string]model.IssueHistory{
			"PROJ-1": resolvedHistory("PROJ-1"),
			"PROJ-3": resolvedHistory("PROJ-3"),
		},
		failing: map[string]error{
			"PROJ-2": errors.New("upstream exploded"),
		},
	}
	engine := newTestEngine(t, fetcher, nil)

	result, err := engine.ComputeBatch(context.Background(),
		[]string{"PROJ-1", "PROJ-2", "PROJ-3"},
		[]string{model.MetricCycleTime}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Issues, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "PROJ-2", result.Errors[0].IssueKey)
	assert.Contains(t, result.Errors[0].Error, "upstream exploded")
	assert.Equal(t, result.TotalCount, result.SuccessCount+result.ErrorCount)
	assert.NotEmpty(t, result.BatchID)
}

func TestComputeBatchEmptyKeyList(t *testing.T) {
	engine := newTestEngine(t, &fakeFetcher{}, nil)

	result, err := engine.ComputeBatch(context.Background(), nil, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalCount)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.ErrorCount)
	assert.Empty(t, result.Issues)
	assert.Empty(t, result.Errors)
}

func TestComputeBatchEchoesWorkingHoursConfig(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine, err := NewEngine(fetcher, NewClassifier(catalogLister(), testLogger()),
		CalendarConfig{
			WorkingHoursOnly: true,
			StartTime:        "08:00",
			EndTime:          "16:00",
			WorkingDays:      []int{1, 2, 3, 4},
			Timezone:         "UTC",
		}, nil, testLogger())
	require.NoError(t, err)
	engine.now = func() time.Time { return utc(2023, time.July, 1, 0, 0) }

	result, err := engine.ComputeBatch(context.Background(), []string{"PROJ-1"},
		[]string{model.MetricCycleTime}, Options{})
	require.NoError(t, err)

	assert.True(t, result.WorkingHoursOnly)
	require.NotNil(t, result.WorkingHoursConfig)
	assert.Equal(t, "08:00", result.WorkingHoursConfig.Start)
	assert.Equal(t, "16:00", result.WorkingHoursConfig.End)
	assert.Equal(t, []int{1, 2, 3, 4}, result.WorkingHoursConfig.Days)
	assert.Equal(t, []string{model.MetricCycleTime}, result.MetricsCalculated)
}

func TestComputeBatchNoConfigEchoInRawMode(t *testing.T) {
	fetcher := &fakeFetcher{histories: map[string]model.IssueHistory{
		"PROJ-1": resolvedHistory("PROJ-1"),
	}}
	engine := newTestEngine(t, fetcher, nil)

	result, err := engine.ComputeBatch(context.Background(), []string{"PROJ-1"},
		[]string{model.MetricCycleTime}, Options{})
	require.NoError(t, err)
	assert.False(t, result.WorkingHoursOnly)
	assert.Nil(t, result.WorkingHoursConfig)
}

func TestComputeBatchSharesClassifierCache(t *testing.T) {
	histories := make(map[string]model.IssueHistory)
	keys := make([]string, 0, 20)
	for _, k := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J",
		"K", "L", "M", "N", "O", "P", "Q", "R", "S", "T"} {
		key := "PROJ-" + k
		histories[key] = resolvedHistory(key)
		keys = append(keys, key)
	}
	fetcher := &fakeFetcher{histories: histories}
	lister := catalogLister()
	engine := newTestEngine(t, fetcher, lister)

	result, err := engine.ComputeBatch(context.Background(), keys,
		[]string{model.MetricResolutionTime}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 20, result.SuccessCount)
	assert.Equal(t, int64(1), lister.calls.Load(), "status catalog must be fetched at most once per batch")
}

func TestComputeBatchParallelKeepsCacheBoundAndIsolation(t *testing.T) {
	histories := make(map[string]model.IssueHistory)
	var keys []string
	for _, k := range []string{"A", "B", "D", "E", "F", "G", "H", "I"} {
		key := "PROJ-" + k
		histories[key] = resolvedHistory(key)
		keys = append(keys, key)
	}
	fetcher := &fakeFetcher{
		histories: histories,
		failing:   map[string]error{"PROJ-C": errors.New("timeout")},
	}
	lister := catalogLister()
	engine := newTestEngine(t, fetcher, lister)

	result, err := engine.ComputeBatch(context.Background(), append(keys, "PROJ-C"),
		[]string{model.MetricResolutionTime}, Options{Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, 9, result.TotalCount)
	assert.Equal(t, 8, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, "PROJ-C", result.Errors[0].IssueKey)
	assert.Equal(t, int64(1), lister.calls.Load())
}

func TestAvailableMetricsIsACopy(t *testing.T) {
	engine := newTestEngine(t, &fakeFetcher{}, nil)
	names := engine.AvailableMetrics()
	require.NotEmpty(t, names)
	names[0] = "mutated"
	assert.NotEqual(t, "mutated", engine.AvailableMetrics()[0])
}
