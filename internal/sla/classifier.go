package sla

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/jikanhq/jikan/internal/model"
)

// inProgressCategoryKey is the upstream status-category key that marks
// statuses as actively being worked on.
const inProgressCategoryKey = "indeterminate"

// inProgressKeywords is the name heuristic used when the status catalog
// is unavailable or does not know a status.
var inProgressKeywords = []string{"progress", "development", "review", "working"}

// StatusLister fetches the global catalog of status definitions. It is
// the expensive upstream lookup the classifier calls at most once per
// instance.
type StatusLister interface {
	ListStatuses(ctx context.Context) ([]model.StatusDefinition, error)
}

// Classifier answers "is this status in-progress?" from a lazily built,
// instance-scoped map of lowercased status name to category key.
//
// The map is built on first use and reused for the instance's remaining
// lifetime, so the upstream catalog is fetched at most once no matter
// how many issues a batch evaluates. A failed fetch is also remembered:
// the classifier then answers from name heuristics and never retries.
// Safe for concurrent use.
type Classifier struct {
	lister StatusLister
	logger *slog.Logger

	group singleflight.Group
	built atomic.Bool
	mu    sync.RWMutex
	cache map[string]string
}

// NewClassifier creates a Classifier over the given catalog lister.
func NewClassifier(lister StatusLister, logger *slog.Logger) *Classifier {
	return &Classifier{lister: lister, logger: logger}
}

// IsInProgress reports whether statusName belongs to the in-progress
// category. Lookup is case-insensitive against the cached catalog;
// unknown statuses (or a failed catalog fetch) fall back to a substring
// heuristic. Never returns an error.
func (c *Classifier) IsInProgress(ctx context.Context, statusName string) bool {
	cache := c.categoryMap(ctx)
	if key, ok := cache[strings.ToLower(statusName)]; ok {
		return key == inProgressCategoryKey
	}
	return matchesInProgressKeyword(statusName)
}

// categoryMap returns the status->category map, building it on first
// call. Concurrent first calls are deduplicated via singleflight so the
// upstream is hit exactly once even under the parallel batch mode.
func (c *Classifier) categoryMap(ctx context.Context) map[string]string {
	if c.built.Load() {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.cache
	}

	c.group.Do("build", func() (any, error) {
		if c.built.Load() {
			return nil, nil
		}
		m := make(map[string]string)
		defs, err := c.lister.ListStatuses(ctx)
		if err != nil {
			// Best effort: remember the empty map so the lookup is not
			// retried; every miss falls through to the heuristic.
			c.logger.Warn("sla: status catalog unavailable, using name heuristics", "error", err)
		} else {
			for _, def := range defs {
				name := strings.ToLower(strings.TrimSpace(def.Name))
				if name != "" {
					m[name] = def.CategoryKey
				}
			}
		}
		c.mu.Lock()
		c.cache = m
		c.mu.Unlock()
		c.built.Store(true)
		return nil, nil
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

func matchesInProgressKeyword(statusName string) bool {
	name := strings.ToLower(statusName)
	for _, kw := range inProgressKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
