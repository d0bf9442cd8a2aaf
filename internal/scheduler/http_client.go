package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// RetryPolicy bounds how the scheduler service retries a trigger that fails
// to reach its target. MaximumEventAge caps how stale an invocation may be
// before the service gives up, so a dead target is not hammered forever.
type RetryPolicy struct {
	MaximumRetryAttempts int           `json:"maximumRetryAttempts"`
	MaximumEventAge      time.Duration `json:"-"`
}

// scheduleRequest is the JSON body for create and update calls.
type scheduleRequest struct {
	ScheduleAt           time.Time      `json:"scheduleAt"`
	Target               string         `json:"target"`
	Payload              TriggerPayload `json:"payload"`
	MaximumRetryAttempts int            `json:"maximumRetryAttempts"`
	MaximumEventAgeSecs  int            `json:"maximumEventAgeInSeconds"`
}

// HTTPClient talks to the scheduler service over its REST facade.
// The base URL is injected from config so tests can point to a local mock.
type HTTPClient struct {
	baseURL    string
	policy     RetryPolicy
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration, policy RetryPolicy) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		policy:  policy,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateSchedule registers a one-shot trigger under name.
// Expects 201 Created with a JSON body carrying the schedule reference.
func (c *HTTPClient) CreateSchedule(ctx context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	return c.put(ctx, http.MethodPost, name, at, target, payload, http.StatusCreated)
}

// UpdateSchedule repoints an existing trigger. Expects 200 OK.
func (c *HTTPClient) UpdateSchedule(ctx context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	return c.put(ctx, http.MethodPut, name, at, target, payload, http.StatusOK)
}

func (c *HTTPClient) put(ctx context.Context, method, name string, at time.Time, target string, payload TriggerPayload, wantStatus int) (ScheduleRef, error) {
	body, err := json.Marshal(scheduleRequest{
		ScheduleAt:           at.UTC(),
		Target:               target,
		Payload:              payload,
		MaximumRetryAttempts: c.policy.MaximumRetryAttempts,
		MaximumEventAgeSecs:  int(c.policy.MaximumEventAge.Seconds()),
	})
	if err != nil {
		return ScheduleRef{}, fmt.Errorf("marshal schedule request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.scheduleURL(name), bytes.NewReader(body))
	if err != nil {
		return ScheduleRef{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ScheduleRef{}, fmt.Errorf("scheduler %s %s: %w", method, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return ScheduleRef{}, fmt.Errorf("scheduler %s %s: unexpected status %d", method, name, resp.StatusCode)
	}

	var ref ScheduleRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return ScheduleRef{}, fmt.Errorf("decode schedule response: %w", err)
	}
	return ref, nil
}

// DeleteSchedule removes a trigger. 404 is treated as success: the entry is
// gone either way, and cancel-side callers only ever delete best-effort.
func (c *HTTPClient) DeleteSchedule(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.scheduleURL(name), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scheduler delete %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("scheduler delete %s: unexpected status %d", name, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) scheduleURL(name string) string {
	return c.baseURL + "/schedules/" + url.PathEscape(name)
}

var _ Client = (*HTTPClient)(nil)
