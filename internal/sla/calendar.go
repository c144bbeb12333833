// Package sla implements the issue timeline and SLA metrics engine:
// business-hours interval arithmetic, status-category classification,
// timeline normalization, the metric calculators, and the orchestrating
// engine with single-issue and batch entry points.
package sla

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default working-hours window applied when the configuration leaves
// the corresponding field empty.
const (
	DefaultWorkStart = "09:00"
	DefaultWorkEnd   = "17:00"
)

// DefaultWorkingDays is Monday through Friday in ISO numbering (Mon=1).
var DefaultWorkingDays = []int{1, 2, 3, 4, 5}

// CalendarConfig describes a recurring weekly business-hours calendar.
type CalendarConfig struct {
	// WorkingHoursOnly selects between raw elapsed minutes (false) and
	// minutes clipped to the working window (true).
	WorkingHoursOnly bool

	// StartTime and EndTime bound the daily working window, "HH:MM"
	// local to Timezone. Empty values default to 09:00 and 17:00.
	StartTime string
	EndTime   string

	// WorkingDays holds ISO weekday numbers (1=Monday .. 7=Sunday).
	// Empty defaults to Monday-Friday. Out-of-range values are a
	// configuration error.
	WorkingDays []int

	// Timezone is an IANA zone name. Empty or unrecognized names fall
	// back to UTC; the fallback is deliberate and never an error.
	Timezone string
}

// Calendar is the immutable, validated form of a CalendarConfig.
// Safe for concurrent use; WorkingMinutes has no side effects.
type Calendar struct {
	workingHoursOnly   bool
	startHour, startMin int
	endHour, endMin     int
	workingDays         map[int]bool
	loc                 *time.Location
	cfg                 CalendarConfig
	tzFellBack          bool
}

// NewCalendar validates cfg and builds a Calendar. It fails on
// out-of-range weekday numbers or malformed HH:MM values, before any
// computation runs. An unknown timezone does not fail; it falls back to
// UTC, observable via TimezoneFellBack.
func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	if cfg.StartTime == "" {
		cfg.StartTime = DefaultWorkStart
	}
	if cfg.EndTime == "" {
		cfg.EndTime = DefaultWorkEnd
	}
	if len(cfg.WorkingDays) == 0 {
		cfg.WorkingDays = append([]int(nil), DefaultWorkingDays...)
	}

	var bad []string
	days := make(map[int]bool, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		if d < 1 || d > 7 {
			bad = append(bad, strconv.Itoa(d))
			continue
		}
		days[d] = true
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("sla: working days must be in 1..7 (Monday=1), got %s", strings.Join(bad, ", "))
	}

	sh, sm, err := parseClock(cfg.StartTime)
	if err != nil {
		return nil, fmt.Errorf("sla: working hours start: %w", err)
	}
	eh, em, err := parseClock(cfg.EndTime)
	if err != nil {
		return nil, fmt.Errorf("sla: working hours end: %w", err)
	}

	loc := time.UTC
	fellBack := false
	if cfg.Timezone != "" {
		if l, lerr := time.LoadLocation(cfg.Timezone); lerr == nil {
			loc = l
		} else {
			fellBack = true
		}
	}

	return &Calendar{
		workingHoursOnly: cfg.WorkingHoursOnly,
		startHour:        sh,
		startMin:         sm,
		endHour:          eh,
		endMin:           em,
		workingDays:      days,
		loc:              loc,
		cfg:              cfg,
		tzFellBack:       fellBack,
	}, nil
}

// WorkingHoursOnly reports whether the calendar clips to working hours.
func (c *Calendar) WorkingHoursOnly() bool { return c.workingHoursOnly }

// TimezoneFellBack reports whether the configured timezone was
// unrecognized and UTC was substituted.
func (c *Calendar) TimezoneFellBack() bool { return c.tzFellBack }

// Location returns the resolved timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// withMode returns a copy of the calendar with WorkingHoursOnly set to
// on. The copy shares the validated window and timezone.
func (c *Calendar) withMode(on bool) *Calendar {
	if on == c.workingHoursOnly {
		return c
	}
	cc := *c
	cc.workingHoursOnly = on
	return &cc
}

// WorkingMinutes returns the number of minutes in [start, end] that the
// calendar counts. Reversed input (end before start) yields 0. When
// WorkingHoursOnly is false this is raw elapsed wall-clock minutes;
// otherwise both endpoints are converted to the calendar timezone and
// the span is walked day by day, summing the overlap of each working
// day's window with the span. Non-working days and the portions of
// boundary days outside the window contribute nothing.
func (c *Calendar) WorkingMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	if !c.workingHoursOnly {
		return int(end.Sub(start).Minutes())
	}

	startLocal := start.In(c.loc)
	endLocal := end.In(c.loc)

	day := midnight(startLocal)
	lastDay := midnight(endLocal)

	total := 0
	for !day.After(lastDay) {
		if c.workingDays[isoWeekday(day)] {
			y, m, d := day.Date()
			windowStart := time.Date(y, m, d, c.startHour, c.startMin, 0, 0, c.loc)
			windowEnd := time.Date(y, m, d, c.endHour, c.endMin, 0, 0, c.loc)

			overlapStart := laterOf(windowStart, startLocal)
			overlapEnd := earlierOf(windowEnd, endLocal)
			if overlapEnd.After(overlapStart) {
				total += int(overlapEnd.Sub(overlapStart).Minutes())
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}

// Echo returns the wire representation of the working-hours window for
// batch responses.
func (c *Calendar) Echo() CalendarConfig {
	return c.cfg
}

func parseClock(s string) (hour, min int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("malformed hour in %q", s)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("malformed minute in %q", s)
	}
	return hour, min, nil
}

// isoWeekday maps time.Weekday (Sunday=0) to ISO numbering (Monday=1).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
