package sla

import (
	"context"
	"sort"
	"time"

	"github.com/jikanhq/jikan/internal/model"
)

// calcEnv carries the per-call inputs shared by all calculators: the
// calendar with the resolved working-hours mode, the classifier for
// status-category questions, and the "now" bound for unresolved issues.
type calcEnv struct {
	cal        *Calendar
	classifier *Classifier
	now        time.Time
}

// calcFunc is one metric calculator. Calculators are pure: they read
// the normalized timeline and write a single field of out. "Cannot
// compute" is encoded as data (calculated=false plus a reason), never
// as an error.
type calcFunc func(ctx context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics)

// newRegistry builds the closed calculator registry, keyed by metric
// name. Resolved once at engine construction.
func newRegistry() map[string]calcFunc {
	return map[string]calcFunc{
		model.MetricCycleTime:         calcCycleTime,
		model.MetricLeadTime:          calcLeadTime,
		model.MetricTimeInStatus:      calcTimeInStatus,
		model.MetricDueDateCompliance: calcDueDateCompliance,
		model.MetricResolutionTime:    calcResolutionTime,
		model.MetricFirstResponseTime: calcFirstResponseTime,
	}
}

func calcCycleTime(_ context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics) {
	if !tl.Resolved() {
		out.CycleTime = &model.CycleTimeMetric{
			Calculated: false,
			Reason:     "issue not resolved",
		}
		return
	}
	minutes := env.cal.WorkingMinutes(tl.Created, *tl.ResolutionDate)
	out.CycleTime = &model.CycleTimeMetric{
		ValueMinutes: &minutes,
		Formatted:    FormatDuration(minutes),
		Calculated:   true,
	}
}

func calcLeadTime(_ context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics) {
	end := env.now
	if tl.Resolved() {
		end = *tl.ResolutionDate
	}
	minutes := env.cal.WorkingMinutes(tl.Created, end)
	out.LeadTime = &model.LeadTimeMetric{
		ValueMinutes: minutes,
		Formatted:    FormatDuration(minutes),
		IsResolved:   tl.Resolved(),
	}
}

// calcResolutionTime sums the durations of intervals whose status the
// classifier places in the in-progress category. An in-progress
// interval still open at resolution is clipped at the resolution date.
func calcResolutionTime(ctx context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics) {
	if !tl.Resolved() {
		out.ResolutionTime = &model.ResolutionTimeMetric{
			Calculated: false,
			Reason:     "issue not resolved",
		}
		return
	}

	total := 0
	found := false
	for _, iv := range tl.Intervals {
		if !env.classifier.IsInProgress(ctx, iv.Status) {
			continue
		}
		found = true
		end := *tl.ResolutionDate
		if iv.ExitedAt != nil {
			end = *iv.ExitedAt
		}
		total += env.cal.WorkingMinutes(iv.EnteredAt, end)
	}

	if !found {
		out.ResolutionTime = &model.ResolutionTimeMetric{
			Calculated: false,
			Reason:     "no in-progress status found",
		}
		return
	}
	out.ResolutionTime = &model.ResolutionTimeMetric{
		ValueMinutes: &total,
		Formatted:    FormatDuration(total),
		Calculated:   true,
	}
}

// calcTimeInStatus builds the per-status breakdown. In raw mode the
// normalized summary is mapped directly (closed intervals only). In
// working-hours mode each interval is recomputed through the calendar,
// with the open interval counted up to now.
func calcTimeInStatus(_ context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics) {
	var entries []model.TimeInStatusEntry
	total := 0

	if env.cal.WorkingHoursOnly() {
		index := make(map[string]int)
		for _, iv := range tl.Intervals {
			end := env.now
			if iv.ExitedAt != nil {
				end = *iv.ExitedAt
			}
			minutes := env.cal.WorkingMinutes(iv.EnteredAt, end)

			i, seen := index[iv.Status]
			if !seen {
				index[iv.Status] = len(entries)
				entries = append(entries, model.TimeInStatusEntry{Status: iv.Status})
				i = len(entries) - 1
			}
			entries[i].ValueMinutes += minutes
			entries[i].VisitCount++
			total += minutes
		}
		for i := range entries {
			entries[i].Formatted = FormatDuration(entries[i].ValueMinutes)
		}
	} else {
		for _, s := range tl.Summary {
			entries = append(entries, model.TimeInStatusEntry{
				Status:       s.Status,
				ValueMinutes: s.TotalDurationMinutes,
				Formatted:    s.TotalDurationFormatted,
				VisitCount:   s.VisitCount,
			})
			total += s.TotalDurationMinutes
		}
	}

	if total > 0 {
		for i := range entries {
			entries[i].Percentage = float64(entries[i].ValueMinutes) / float64(total) * 100
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ValueMinutes > entries[j].ValueMinutes
	})

	out.TimeInStatus = &model.TimeInStatusMetric{
		Statuses:     entries,
		TotalMinutes: total,
	}
}

// calcDueDateCompliance compares the due date against the resolution
// date, or against now for unresolved issues. Due dates are date-only
// upstream, so the comparison point is the end of the due day. Margins
// are wall-clock minutes; a deadline is a calendar concept, so the
// working-hours calendar never applies here.
func calcDueDateCompliance(_ context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics) {
	if tl.DueDate == nil {
		out.DueDateCompliance = &model.DueDateComplianceMetric{Status: model.ComplianceNoDueDate}
		return
	}

	comparison := env.now
	if tl.Resolved() {
		comparison = *tl.ResolutionDate
	}

	y, m, d := tl.DueDate.In(comparison.Location()).Date()
	dueEnd := time.Date(y, m, d, 23, 59, 59, 0, comparison.Location())

	margin := int(dueEnd.Sub(comparison).Minutes())

	var status model.ComplianceStatus
	var formatted string
	switch {
	case margin < 0:
		status = model.ComplianceMissed
		formatted = FormatDuration(-margin) + " late"
	case tl.Resolved():
		status = model.ComplianceMet
		formatted = FormatDuration(margin) + " early"
	default:
		status = model.CompliancePending
		formatted = FormatDuration(margin) + " early"
	}

	out.DueDateCompliance = &model.DueDateComplianceMetric{
		Status:          status,
		MarginMinutes:   &margin,
		FormattedMargin: formatted,
	}
}

// calcFirstResponseTime measures creation to the first transition out
// of the initial status.
func calcFirstResponseTime(_ context.Context, tl *model.IssueTimeline, env calcEnv, out *model.IssueSLAMetrics) {
	if len(tl.Intervals) < 2 {
		out.FirstResponseTime = &model.FirstResponseTimeMetric{
			Calculated: false,
			Reason:     "no status transition found",
		}
		return
	}
	minutes := env.cal.WorkingMinutes(tl.Created, tl.Intervals[1].EnteredAt)
	out.FirstResponseTime = &model.FirstResponseTimeMetric{
		ValueMinutes: &minutes,
		Formatted:    FormatDuration(minutes),
		Calculated:   true,
		ResponseType: "transition",
	}
}
