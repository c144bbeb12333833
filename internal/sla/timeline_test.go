package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jikanhq/jikan/internal/model"
)

func tp(t time.Time) *time.Time { return &t }

// sampleHistory is an issue that went To Do -> In Progress -> Done,
// delivered out of order to exercise sorting.
func sampleHistory() model.IssueHistory {
	created := utc(2023, time.June, 1, 9, 0)
	return model.IssueHistory{
		Key:           "PROJ-1",
		Created:       created,
		Updated:       utc(2023, time.June, 9, 9, 0),
		CurrentStatus: "Done",
		Changes: []model.StatusChange{
			{Status: "In Progress", EnteredAt: utc(2023, time.June, 2, 9, 0), ExitedAt: tp(utc(2023, time.June, 8, 9, 0))},
			{Status: "To Do", EnteredAt: created, ExitedAt: tp(utc(2023, time.June, 2, 9, 0))},
			{Status: "Done", EnteredAt: utc(2023, time.June, 8, 9, 0)},
		},
	}
}

func TestNormalizeOrdersIntervals(t *testing.T) {
	tl := Normalize(sampleHistory())

	require.Len(t, tl.Intervals, 3)
	assert.Equal(t, "To Do", tl.Intervals[0].Status)
	assert.Equal(t, "In Progress", tl.Intervals[1].Status)
	assert.Equal(t, "Done", tl.Intervals[2].Status)
	for i := 1; i < len(tl.Intervals); i++ {
		assert.False(t, tl.Intervals[i].EnteredAt.Before(tl.Intervals[i-1].EnteredAt))
	}
}

func TestNormalizeOpenIntervalMatchesCurrentStatus(t *testing.T) {
	tl := Normalize(sampleHistory())

	last := tl.Intervals[len(tl.Intervals)-1]
	assert.True(t, last.Open())
	assert.Nil(t, last.DurationMinutes)

	// Closed intervals carry durations.
	require.NotNil(t, tl.Intervals[0].DurationMinutes)
	assert.Equal(t, 1440, *tl.Intervals[0].DurationMinutes)
	require.NotNil(t, tl.Intervals[1].DurationMinutes)
	assert.Equal(t, 6*1440, *tl.Intervals[1].DurationMinutes)
}

func TestNormalizeLastClosedWhenStatusDiffers(t *testing.T) {
	h := sampleHistory()
	// Current status no longer matches the last log entry; the entry
	// must not be marked open.
	h.CurrentStatus = "Reopened"
	h.Changes[2].ExitedAt = tp(utc(2023, time.June, 9, 9, 0))

	tl := Normalize(h)
	last := tl.Intervals[len(tl.Intervals)-1]
	assert.False(t, last.Open())
	require.NotNil(t, last.DurationMinutes)
	assert.Equal(t, 1440, *last.DurationMinutes)
}

func TestNormalizeClosesInteriorGaps(t *testing.T) {
	h := sampleHistory()
	h.Changes[1].ExitedAt = nil // interior entry missing its exit

	tl := Normalize(h)
	require.NotNil(t, tl.Intervals[0].ExitedAt)
	assert.Equal(t, tl.Intervals[1].EnteredAt, *tl.Intervals[0].ExitedAt)
}

func TestNormalizeSummary(t *testing.T) {
	h := sampleHistory()
	// Revisit In Progress: Done closes, then back to In Progress (open).
	h.CurrentStatus = "In Progress"
	h.Changes[2].ExitedAt = tp(utc(2023, time.June, 9, 9, 0))
	h.Changes = append(h.Changes, model.StatusChange{
		Status:    "In Progress",
		EnteredAt: utc(2023, time.June, 9, 9, 0),
	})

	tl := Normalize(h)
	bySt := make(map[string]model.StatusTimeSummary)
	for _, s := range tl.Summary {
		bySt[s.Status] = s
	}

	// Two visits, but the open second visit adds no duration.
	assert.Equal(t, 2, bySt["In Progress"].VisitCount)
	assert.Equal(t, 6*1440, bySt["In Progress"].TotalDurationMinutes)
	assert.Equal(t, "6d 0h 0m", bySt["In Progress"].TotalDurationFormatted)

	assert.Equal(t, 1, bySt["To Do"].VisitCount)
	assert.Equal(t, 1, bySt["Done"].VisitCount)
	assert.Equal(t, 1440, bySt["Done"].TotalDurationMinutes)
}

func TestNormalizeIdempotent(t *testing.T) {
	h := sampleHistory()
	first := Normalize(h)
	second := Normalize(h)
	assert.Equal(t, first, second)

	// The input is never mutated.
	assert.Equal(t, "In Progress", h.Changes[0].Status)
}

func TestNormalizeEmptyHistory(t *testing.T) {
	tl := Normalize(model.IssueHistory{Key: "PROJ-2", CurrentStatus: "To Do"})
	assert.Empty(t, tl.Intervals)
	assert.Empty(t, tl.Summary)
	assert.Equal(t, "PROJ-2", tl.Key)
}
