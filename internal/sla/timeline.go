package sla

import (
	"sort"
	"time"

	"github.com/jikanhq/jikan/internal/model"
)

// Normalize converts a raw, possibly partially-ordered status-change
// log into a strictly time-ordered sequence of status intervals and a
// per-status duration summary.
//
// Rules:
//   - intervals are sorted by entry time (stable, so identical inputs
//     always normalize identically);
//   - the final interval is open (no exit, nil duration) if and only if
//     its status matches the issue's current status;
//   - closed intervals get their duration filled in minutes;
//   - the summary sums closed-interval durations per status and counts
//     every entry into a status as a visit, open intervals included.
//
// Pure transformation: no I/O, no clock reads, idempotent.
func Normalize(h model.IssueHistory) *model.IssueTimeline {
	changes := append([]model.StatusChange(nil), h.Changes...)
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].EnteredAt.Before(changes[j].EnteredAt)
	})

	intervals := make([]model.StatusInterval, 0, len(changes))
	for i, ch := range changes {
		iv := model.StatusInterval{
			Status:    ch.Status,
			EnteredAt: ch.EnteredAt,
		}
		last := i == len(changes)-1
		if last && ch.Status == h.CurrentStatus {
			// Current interval stays open.
		} else if ch.ExitedAt != nil {
			exit := *ch.ExitedAt
			iv.ExitedAt = &exit
			dur := minutesBetween(ch.EnteredAt, exit)
			iv.DurationMinutes = &dur
		} else if !last {
			// Missing exit on an interior entry: close it at the next
			// entry's start so the sequence stays contiguous.
			exit := changes[i+1].EnteredAt
			iv.ExitedAt = &exit
			dur := minutesBetween(ch.EnteredAt, exit)
			iv.DurationMinutes = &dur
		}
		intervals = append(intervals, iv)
	}

	summary := summarize(intervals)

	return &model.IssueTimeline{
		Key:            h.Key,
		Created:        h.Created,
		Updated:        h.Updated,
		DueDate:        h.DueDate,
		ResolutionDate: h.ResolutionDate,
		CurrentStatus:  h.CurrentStatus,
		Intervals:      intervals,
		Summary:        summary,
	}
}

func summarize(intervals []model.StatusInterval) []model.StatusTimeSummary {
	index := make(map[string]int)
	var summary []model.StatusTimeSummary

	for _, iv := range intervals {
		i, seen := index[iv.Status]
		if !seen {
			index[iv.Status] = len(summary)
			summary = append(summary, model.StatusTimeSummary{Status: iv.Status})
			i = len(summary) - 1
		}
		summary[i].VisitCount++
		if iv.DurationMinutes != nil {
			summary[i].TotalDurationMinutes += *iv.DurationMinutes
		}
	}

	for i := range summary {
		summary[i].TotalDurationFormatted = FormatDuration(summary[i].TotalDurationMinutes)
	}
	return summary
}

func minutesBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start).Minutes())
}
