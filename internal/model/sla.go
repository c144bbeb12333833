package model

import "time"

// Metric names accepted by the engine.
const (
	MetricCycleTime         = "cycle_time"
	MetricLeadTime          = "lead_time"
	MetricTimeInStatus      = "time_in_status"
	MetricDueDateCompliance = "due_date_compliance"
	MetricResolutionTime    = "resolution_time"
	MetricFirstResponseTime = "first_response_time"
)

// AvailableMetrics lists every metric the engine can calculate, in
// canonical order. Unknown names requested by callers are filtered out.
var AvailableMetrics = []string{
	MetricCycleTime,
	MetricLeadTime,
	MetricTimeInStatus,
	MetricDueDateCompliance,
	MetricResolutionTime,
	MetricFirstResponseTime,
}

// CycleTimeMetric measures created -> resolution. A metric that cannot
// be computed carries Calculated=false and a Reason, never a fabricated
// zero value.
type CycleTimeMetric struct {
	ValueMinutes *int   `json:"value_minutes,omitempty"`
	Formatted    string `json:"formatted,omitempty"`
	Calculated   bool   `json:"calculated"`
	Reason       string `json:"reason,omitempty"`
}

// LeadTimeMetric measures created -> resolution, or created -> now for
// unresolved issues. Always calculable.
type LeadTimeMetric struct {
	ValueMinutes int    `json:"value_minutes"`
	Formatted    string `json:"formatted"`
	IsResolved   bool   `json:"is_resolved"`
}

// ResolutionTimeMetric measures time spent in in-progress-category
// statuses between creation and resolution.
type ResolutionTimeMetric struct {
	ValueMinutes *int   `json:"value_minutes,omitempty"`
	Formatted    string `json:"formatted,omitempty"`
	Calculated   bool   `json:"calculated"`
	Reason       string `json:"reason,omitempty"`
}

// TimeInStatusEntry is the time an issue spent in one status.
type TimeInStatusEntry struct {
	Status       string  `json:"status"`
	ValueMinutes int     `json:"value_minutes"`
	Formatted    string  `json:"formatted"`
	Percentage   float64 `json:"percentage"`
	VisitCount   int     `json:"visit_count"`
}

// TimeInStatusMetric is the per-status breakdown, sorted by minutes
// descending, plus the aggregate total.
type TimeInStatusMetric struct {
	Statuses     []TimeInStatusEntry `json:"statuses"`
	TotalMinutes int                 `json:"total_minutes"`
}

// ComplianceStatus classifies due-date compliance.
type ComplianceStatus string

const (
	ComplianceMet       ComplianceStatus = "met"
	ComplianceMissed    ComplianceStatus = "missed"
	ComplianceNoDueDate ComplianceStatus = "no_due_date"
	CompliancePending   ComplianceStatus = "pending"
)

// DueDateComplianceMetric classifies whether resolution (or the current
// time, if unresolved) falls before or after the due date. Margins are
// wall-clock minutes: a deadline is a calendar concept, so the
// working-hours calendar never applies here.
type DueDateComplianceMetric struct {
	Status          ComplianceStatus `json:"status"`
	MarginMinutes   *int             `json:"margin_minutes,omitempty"`
	FormattedMargin string           `json:"formatted_margin,omitempty"`
}

// FirstResponseTimeMetric measures created -> first status transition
// after the initial status.
type FirstResponseTimeMetric struct {
	ValueMinutes *int   `json:"value_minutes,omitempty"`
	Formatted    string `json:"formatted,omitempty"`
	Calculated   bool   `json:"calculated"`
	Reason       string `json:"reason,omitempty"`
	ResponseType string `json:"response_type,omitempty"`
}

// IssueSLAMetrics is the bag of requested metric results for one issue.
// Only the requested metrics are non-nil.
type IssueSLAMetrics struct {
	CycleTime         *CycleTimeMetric         `json:"cycle_time,omitempty"`
	LeadTime          *LeadTimeMetric          `json:"lead_time,omitempty"`
	TimeInStatus      *TimeInStatusMetric      `json:"time_in_status,omitempty"`
	DueDateCompliance *DueDateComplianceMetric `json:"due_date_compliance,omitempty"`
	ResolutionTime    *ResolutionTimeMetric    `json:"resolution_time,omitempty"`
	FirstResponseTime *FirstResponseTimeMetric `json:"first_response_time,omitempty"`
}

// RawDates echoes the raw timestamps and status-change log of an issue
// when the caller asks for them alongside the computed metrics.
type RawDates struct {
	Created        time.Time      `json:"created"`
	Updated        time.Time      `json:"updated"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	ResolutionDate *time.Time     `json:"resolution_date,omitempty"`
	CurrentStatus  string         `json:"current_status"`
	StatusChanges  []StatusChange `json:"status_changes"`
}

// IssueSLAResponse is the per-issue result: constructed per request,
// immutable, returned to the caller, discarded.
type IssueSLAResponse struct {
	IssueKey string          `json:"issue_key"`
	Metrics  IssueSLAMetrics `json:"metrics"`
	RawDates *RawDates       `json:"raw_dates,omitempty"`
}

// BatchItemError records one failed issue inside a batch.
type BatchItemError struct {
	IssueKey string `json:"issue_key"`
	Error    string `json:"error"`
}

// WorkingHoursConfig echoes the business-hours calendar a batch was
// computed against.
type WorkingHoursConfig struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Days     []int  `json:"days"`
	Timezone string `json:"timezone"`
}

// IssueSLABatchResponse is the aggregate batch result. Issues holds
// successes only; failures land in Errors. Invariant:
// TotalCount == SuccessCount + ErrorCount and len(Issues) == SuccessCount.
type IssueSLABatchResponse struct {
	BatchID            string              `json:"batch_id"`
	Issues             []IssueSLAResponse  `json:"issues"`
	TotalCount         int                 `json:"total_count"`
	SuccessCount       int                 `json:"success_count"`
	ErrorCount         int                 `json:"error_count"`
	Errors             []BatchItemError    `json:"errors"`
	MetricsCalculated  []string            `json:"metrics_calculated"`
	WorkingHoursOnly   bool                `json:"working_hours_applied"`
	WorkingHoursConfig *WorkingHoursConfig `json:"working_hours_config,omitempty"`
}
