package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jikanhq/jikan/internal/model"
	"github.com/jikanhq/jikan/internal/telemetry"
)

// timeFormats are the timestamp layouts the upstream emits, most
// specific first.
var timeFormats = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339,
}

const dueDateFormat = "2006-01-02"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the tracker (e.g. "https://acme.atlassian.net").
	BaseURL string

	// Email and APIToken authenticate via basic auth when Email is set;
	// otherwise APIToken is sent as a bearer token.
	Email    string
	APIToken string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the tracker's REST API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	email   string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL or APIToken is empty.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker: BaseURL is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("tracker: APIToken is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.APIToken,
		client:  httpClient,
		logger:  logger,
	}, nil
}

// issuePayload is the subset of the issue resource the history needs.
type issuePayload struct {
	Key    string `json:"key"`
	Fields struct {
		Created        string `json:"created"`
		Updated        string `json:"updated"`
		DueDate        string `json:"duedate"`
		ResolutionDate string `json:"resolutiondate"`
		Status         struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
	Changelog struct {
		Histories []struct {
			Created string `json:"created"`
			Items   []struct {
				Field      string `json:"field"`
				FromString string `json:"fromString"`
				ToString   string `json:"toString"`
			} `json:"items"`
		} `json:"histories"`
	} `json:"changelog"`
}

// statusPayload is one entry of the global status catalog.
type statusPayload struct {
	Name           string `json:"name"`
	StatusCategory struct {
		Key string `json:"key"`
	} `json:"statusCategory"`
}

// GetIssueHistory fetches an issue with its changelog and builds the
// raw status-change log the engine normalizes. Returns ErrNotFound for
// unknown keys and *Error on other upstream failures.
func (c *Client) GetIssueHistory(ctx context.Context, key string) (model.IssueHistory, error) {
	ctx, span := telemetry.Tracer("jikan/tracker").Start(ctx, "tracker.GetIssueHistory")
	defer span.End()
	span.SetAttributes(attribute.String("issue.key", key))

	path := "/rest/api/2/issue/" + url.PathEscape(key) +
		"?fields=created,updated,duedate,resolutiondate,status&expand=changelog"

	var payload issuePayload
	if err := c.get(ctx, path, &payload); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.IssueHistory{}, err
	}

	hist, err := buildHistory(key, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.IssueHistory{}, err
	}
	return hist, nil
}

// ListStatuses fetches every status known to the tracker with its
// category key.
func (c *Client) ListStatuses(ctx context.Context) ([]model.StatusDefinition, error) {
	ctx, span := telemetry.Tracer("jikan/tracker").Start(ctx, "tracker.ListStatuses")
	defer span.End()

	var payload []statusPayload
	if err := c.get(ctx, "/rest/api/2/status", &payload); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	defs := make([]model.StatusDefinition, 0, len(payload))
	for _, s := range payload {
		defs = append(defs, model.StatusDefinition{
			Name:        s.Name,
			CategoryKey: s.StatusCategory.Key,
		})
	}
	return defs, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tracker: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.email != "" {
		req.SetBasicAuth(c.email, c.token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracker: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("tracker: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		msg := errorMessage(body)
		c.logger.Warn("tracker: upstream error", "path", path, "status", resp.StatusCode, "message", msg)
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("tracker: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the first error string from the upstream error
// envelope, falling back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		ErrorMessages []string `json:"errorMessages"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.ErrorMessages) > 0 {
		return envelope.ErrorMessages[0]
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// statusTransition is one status-field changelog entry.
type statusTransition struct {
	at   time.Time
	from string
	to   string
}

// buildHistory converts the issue payload into the raw status-change
// log. The initial status is inferred from the first transition's
// from-status; an issue with no transitions has a single open entry in
// its current status.
func buildHistory(key string, p issuePayload) (model.IssueHistory, error) {
	created, err := parseTime(p.Fields.Created)
	if err != nil {
		return model.IssueHistory{}, fmt.Errorf("tracker: issue %s created date: %w", key, err)
	}
	updated, err := parseTime(p.Fields.Updated)
	if err != nil {
		return model.IssueHistory{}, fmt.Errorf("tracker: issue %s updated date: %w", key, err)
	}

	hist := model.IssueHistory{
		Key:           key,
		Created:       created,
		Updated:       updated,
		CurrentStatus: p.Fields.Status.Name,
	}

	if p.Fields.DueDate != "" {
		due, err := time.Parse(dueDateFormat, p.Fields.DueDate)
		if err != nil {
			return model.IssueHistory{}, fmt.Errorf("tracker: issue %s due date: %w", key, err)
		}
		hist.DueDate = &due
	}
	if p.Fields.ResolutionDate != "" {
		res, err := parseTime(p.Fields.ResolutionDate)
		if err != nil {
			return model.IssueHistory{}, fmt.Errorf("tracker: issue %s resolution date: %w", key, err)
		}
		hist.ResolutionDate = &res
	}

	var transitions []statusTransition
	for _, h := range p.Changelog.Histories {
		at, err := parseTime(h.Created)
		if err != nil {
			continue // malformed changelog entries are skipped, not fatal
		}
		for _, item := range h.Items {
			if item.Field != "status" {
				continue
			}
			transitions = append(transitions, statusTransition{
				at:   at,
				from: item.FromString,
				to:   item.ToString,
			})
		}
	}
	sort.SliceStable(transitions, func(i, j int) bool {
		return transitions[i].at.Before(transitions[j].at)
	})

	if len(transitions) == 0 {
		hist.Changes = []model.StatusChange{{
			Status:    p.Fields.Status.Name,
			EnteredAt: created,
		}}
		return hist, nil
	}

	first := transitions[0]
	exit := first.at
	hist.Changes = append(hist.Changes, model.StatusChange{
		Status:    first.from,
		EnteredAt: created,
		ExitedAt:  &exit,
	})
	for i, tr := range transitions {
		ch := model.StatusChange{
			Status:    tr.to,
			EnteredAt: tr.at,
		}
		if i < len(transitions)-1 {
			next := transitions[i+1].at
			ch.ExitedAt = &next
		}
		hist.Changes = append(hist.Changes, ch)
	}
	return hist, nil
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
