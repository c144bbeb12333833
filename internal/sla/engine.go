package sla

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/jikanhq/jikan/internal/model"
	"github.com/jikanhq/jikan/internal/telemetry"
)

// TimelineFetcher retrieves the raw temporal history of an issue from
// the upstream tracker. Implementations fail with tracker.ErrNotFound
// for unknown keys and a transport error otherwise.
type TimelineFetcher interface {
	GetIssueHistory(ctx context.Context, key string) (model.IssueHistory, error)
}

// Options adjust a single Compute or ComputeBatch call.
type Options struct {
	// WorkingHoursOnly overrides the engine's configured default when
	// non-nil.
	WorkingHoursOnly *bool

	// IncludeRawDates echoes the raw timestamps and status-change log
	// in each issue response.
	IncludeRawDates bool

	// Concurrency bounds parallel batch evaluation. Values <= 1 keep
	// the batch sequential.
	Concurrency int
}

// Engine orchestrates SLA metric computation: it fetches and normalizes
// issue timelines, runs the requested calculators, and isolates
// per-issue failures in batch mode. The classifier (and its one-shot
// status-category cache) is shared across every issue the engine
// evaluates.
type Engine struct {
	fetcher        TimelineFetcher
	classifier     *Classifier
	calendar       *Calendar
	defaultMetrics []string
	registry       map[string]calcFunc
	logger         *slog.Logger
	now            func() time.Time

	computeCount  otelmetric.Int64Counter
	computeErrors otelmetric.Int64Counter
	batchDuration otelmetric.Float64Histogram
}

// NewEngine builds an Engine. The calendar configuration is validated
// here, before any computation. defaultMetrics applies when a call
// passes no metric names; empty means all available metrics.
func NewEngine(fetcher TimelineFetcher, classifier *Classifier, calCfg CalendarConfig, defaultMetrics []string, logger *slog.Logger) (*Engine, error) {
	cal, err := NewCalendar(calCfg)
	if err != nil {
		return nil, err
	}
	if cal.TimezoneFellBack() {
		logger.Warn("sla: unknown timezone, falling back to UTC", "timezone", calCfg.Timezone)
	}
	if len(defaultMetrics) == 0 {
		defaultMetrics = model.AvailableMetrics
	}

	meter := telemetry.Meter("jikan/sla")
	computeCount, _ := meter.Int64Counter("jikan.sla.compute_count",
		otelmetric.WithDescription("Issues evaluated"))
	computeErrors, _ := meter.Int64Counter("jikan.sla.compute_errors",
		otelmetric.WithDescription("Issue evaluations that failed"))
	batchDuration, _ := meter.Float64Histogram("jikan.sla.batch_duration",
		otelmetric.WithDescription("Batch evaluation wall time (ms)"),
		otelmetric.WithUnit("ms"))

	return &Engine{
		fetcher:        fetcher,
		classifier:     classifier,
		calendar:       cal,
		defaultMetrics: defaultMetrics,
		registry:       newRegistry(),
		logger:         logger,
		now:            time.Now,
		computeCount:   computeCount,
		computeErrors:  computeErrors,
		batchDuration:  batchDuration,
	}, nil
}

// Compute calculates the requested metrics for a single issue. The
// timeline fetch is the only operation that can fail; calculators
// encode "cannot compute" as data, never as an error.
func (e *Engine) Compute(ctx context.Context, issueKey string, metrics []string, opts Options) (*model.IssueSLAResponse, error) {
	names := e.resolveMetrics(metrics)
	cal := e.calendar.withMode(e.resolveWorkingHours(opts))

	hist, err := e.fetcher.GetIssueHistory(ctx, issueKey)
	if err != nil {
		e.computeErrors.Add(ctx, 1)
		return nil, fmt.Errorf("sla: fetch timeline for %s: %w", issueKey, err)
	}

	tl := Normalize(hist)
	env := calcEnv{cal: cal, classifier: e.classifier, now: e.now()}

	var out model.IssueSLAMetrics
	for _, name := range names {
		e.registry[name](ctx, tl, env, &out)
	}

	resp := &model.IssueSLAResponse{
		IssueKey: issueKey,
		Metrics:  out,
	}
	if opts.IncludeRawDates {
		resp.RawDates = &model.RawDates{
			Created:        hist.Created,
			Updated:        hist.Updated,
			DueDate:        hist.DueDate,
			ResolutionDate: hist.ResolutionDate,
			CurrentStatus:  hist.CurrentStatus,
			StatusChanges:  hist.Changes,
		}
	}
	e.computeCount.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.Int("metric_count", len(names)),
	))
	return resp, nil
}

// ComputeBatch evaluates each key in isolation: a failed issue is
// recorded in Errors and the rest of the batch continues. An empty key
// list is a zero-count success, not an error. With opts.Concurrency > 1
// issues are evaluated in parallel under that limit; the classifier's
// one-shot cache build keeps its at-most-once guarantee either way.
func (e *Engine) ComputeBatch(ctx context.Context, issueKeys []string, metrics []string, opts Options) (*model.IssueSLABatchResponse, error) {
	start := e.now()
	names := e.resolveMetrics(metrics)
	workingHours := e.resolveWorkingHours(opts)

	type slot struct {
		resp *model.IssueSLAResponse
		err  error
	}
	slots := make([]slot, len(issueKeys))

	if opts.Concurrency > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, key := range issueKeys {
			g.Go(func() error {
				resp, err := e.Compute(gctx, key, names, opts)
				slots[i] = slot{resp: resp, err: err}
				return nil // isolation: item failures never cancel siblings
			})
		}
		_ = g.Wait()
	} else {
		for i, key := range issueKeys {
			resp, err := e.Compute(ctx, key, names, opts)
			slots[i] = slot{resp: resp, err: err}
		}
	}

	result := &model.IssueSLABatchResponse{
		BatchID:           uuid.NewString(),
		Issues:            []model.IssueSLAResponse{},
		Errors:            []model.BatchItemError{},
		TotalCount:        len(issueKeys),
		MetricsCalculated: names,
		WorkingHoursOnly:  workingHours,
	}
	for i, s := range slots {
		if s.err != nil {
			e.logger.Warn("sla: batch item failed", "issue_key", issueKeys[i], "error", s.err)
			result.Errors = append(result.Errors, model.BatchItemError{
				IssueKey: issueKeys[i],
				Error:    s.err.Error(),
			})
			continue
		}
		result.Issues = append(result.Issues, *s.resp)
	}
	result.SuccessCount = len(result.Issues)
	result.ErrorCount = len(result.Errors)

	if workingHours {
		cfg := e.calendar.Echo()
		result.WorkingHoursConfig = &model.WorkingHoursConfig{
			Start:    cfg.StartTime,
			End:      cfg.EndTime,
			Days:     append([]int(nil), cfg.WorkingDays...),
			Timezone: cfg.Timezone,
		}
	}

	e.batchDuration.Record(ctx, float64(e.now().Sub(start).Milliseconds()),
		otelmetric.WithAttributes(attribute.Int("batch_size", len(issueKeys))))
	return result, nil
}

// AvailableMetrics returns the metric names the engine can calculate.
func (e *Engine) AvailableMetrics() []string {
	return append([]string(nil), model.AvailableMetrics...)
}

// resolveMetrics filters the requested names against the registry,
// falling back to the configured defaults for an empty request.
// Order is preserved; duplicates are dropped.
func (e *Engine) resolveMetrics(requested []string) []string {
	if len(requested) == 0 {
		requested = e.defaultMetrics
	}
	seen := make(map[string]bool, len(requested))
	names := make([]string, 0, len(requested))
	for _, name := range requested {
		if seen[name] {
			continue
		}
		if _, ok := e.registry[name]; !ok {
			e.logger.Debug("sla: ignoring unknown metric", "metric", name)
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (e *Engine) resolveWorkingHours(opts Options) bool {
	if opts.WorkingHoursOnly != nil {
		return *opts.WorkingHoursOnly
	}
	return e.calendar.WorkingHoursOnly()
}
