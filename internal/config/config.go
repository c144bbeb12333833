// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jikanhq/jikan/internal/model"
	"github.com/jikanhq/jikan/internal/sla"
)

// Config holds all application configuration.
type Config struct {
	// Tracker settings.
	TrackerBaseURL string
	TrackerEmail   string // Set for basic auth; empty means bearer token.
	TrackerToken   string
	TrackerTimeout time.Duration

	// SLA calendar settings.
	DefaultMetrics   []string
	WorkingHoursOnly bool
	WorkStart        string // "HH:MM"
	WorkEnd          string // "HH:MM"
	WorkingDays      []int  // ISO weekday numbers, Monday=1.
	Timezone         string // IANA name; unknown names fall back to UTC.

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		TrackerBaseURL:   envStr("JIKAN_TRACKER_BASE_URL", ""),
		TrackerEmail:     envStr("JIKAN_TRACKER_EMAIL", ""),
		TrackerToken:     envStr("JIKAN_TRACKER_TOKEN", ""),
		TrackerTimeout:   envDuration("JIKAN_TRACKER_TIMEOUT", 30*time.Second),
		DefaultMetrics:   envCSV("JIKAN_DEFAULT_METRICS", model.AvailableMetrics),
		WorkingHoursOnly: envBool("JIKAN_WORKING_HOURS_ONLY", false),
		WorkStart:        envStr("JIKAN_WORKING_HOURS_START", sla.DefaultWorkStart),
		WorkEnd:          envStr("JIKAN_WORKING_HOURS_END", sla.DefaultWorkEnd),
		Timezone:         envStr("JIKAN_TIMEZONE", "UTC"),
		OTELEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:      envStr("OTEL_SERVICE_NAME", "jikan"),
		LogLevel:         envStr("JIKAN_LOG_LEVEL", "info"),
	}

	days, err := envIntCSV("JIKAN_WORKING_DAYS", sla.DefaultWorkingDays)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkingDays = days

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and well-formed.
// Calendar window and weekday validation also runs at calendar
// construction; repeating it here fails fast before anything starts.
func (c Config) Validate() error {
	if c.TrackerBaseURL == "" {
		return fmt.Errorf("config: JIKAN_TRACKER_BASE_URL is required")
	}
	if c.TrackerToken == "" {
		return fmt.Errorf("config: JIKAN_TRACKER_TOKEN is required")
	}
	for _, d := range c.WorkingDays {
		if d < 1 || d > 7 {
			return fmt.Errorf("config: JIKAN_WORKING_DAYS values must be in 1..7 (Monday=1), got %d", d)
		}
	}
	for _, m := range c.DefaultMetrics {
		if !slices.Contains(model.AvailableMetrics, m) {
			return fmt.Errorf("config: JIKAN_DEFAULT_METRICS contains unknown metric %q", m)
		}
	}
	return nil
}

// CalendarConfig maps the SLA settings onto the engine's calendar form.
func (c Config) CalendarConfig() sla.CalendarConfig {
	return sla.CalendarConfig{
		WorkingHoursOnly: c.WorkingHoursOnly,
		StartTime:        c.WorkStart,
		EndTime:          c.WorkEnd,
		WorkingDays:      c.WorkingDays,
		Timezone:         c.Timezone,
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envCSV(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envIntCSV(key string, defaultVal []int) ([]int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	var out []int
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %q is not an integer", key, p)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return defaultVal, nil
	}
	return out, nil
}
