// Package model defines the core domain types for Jikan.
//
// Types mirror the upstream tracker's wire vocabulary (issue keys,
// status names, changelog entries) and the normalized timeline form
// every metric calculator consumes. Types use strong typing (time.Time,
// enums) and avoid interface{} wherever possible.
package model

import "time"

// StatusChange is one entry of the raw status-transition log as fetched
// from the upstream tracker. ExitedAt is nil for the entry the issue is
// currently in.
type StatusChange struct {
	Status    string     `json:"status"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
}

// IssueHistory is the raw temporal record of a single issue: its key
// timestamps, current status, and the ordered status-change log.
// Produced by the tracker client; consumed by the timeline normalizer.
type IssueHistory struct {
	Key            string         `json:"issue_key"`
	Created        time.Time      `json:"created"`
	Updated        time.Time      `json:"updated"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	ResolutionDate *time.Time     `json:"resolution_date,omitempty"`
	CurrentStatus  string         `json:"current_status"`
	Changes        []StatusChange `json:"status_changes"`
}

// StatusInterval is a contiguous span during which an issue held one
// status. ExitedAt == nil marks the current (open) interval; its
// DurationMinutes stays nil until the interval closes. Intervals are
// owned by the normalizer that produced them and never mutated after
// construction.
type StatusInterval struct {
	Status          string     `json:"status"`
	EnteredAt       time.Time  `json:"entered_at"`
	ExitedAt        *time.Time `json:"exited_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// Open reports whether the interval is still running.
func (si StatusInterval) Open() bool {
	return si.ExitedAt == nil
}

// StatusTimeSummary aggregates all visits to one status: summed
// closed-interval duration and visit count. An open interval counts as
// a visit but contributes no duration.
type StatusTimeSummary struct {
	Status                 string `json:"status"`
	TotalDurationMinutes   int    `json:"total_duration_minutes"`
	TotalDurationFormatted string `json:"total_duration_formatted"`
	VisitCount             int    `json:"visit_count"`
}

// IssueTimeline is the normalized form consumed by all calculators:
// strictly time-ordered intervals plus the per-status summary. Rebuilt
// from scratch on every request; nothing is cached across calls.
type IssueTimeline struct {
	Key            string              `json:"issue_key"`
	Created        time.Time           `json:"created"`
	Updated        time.Time           `json:"updated"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	ResolutionDate *time.Time          `json:"resolution_date,omitempty"`
	CurrentStatus  string              `json:"current_status"`
	Intervals      []StatusInterval    `json:"intervals"`
	Summary        []StatusTimeSummary `json:"status_summary"`
}

// Resolved reports whether the issue has a resolution date.
func (t *IssueTimeline) Resolved() bool {
	return t.ResolutionDate != nil
}

// StatusDefinition is one entry of the upstream status catalog: a
// status name and the key of the category it belongs to.
type StatusDefinition struct {
	Name        string `json:"name"`
	CategoryKey string `json:"category_key"`
}
