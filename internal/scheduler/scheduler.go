package scheduler

import (
	"context"
	"time"
)

// TriggerPayload is the full body the scheduler hands to its target at fire
// time. Only the notification id travels; the fan-out worker re-reads content
// from the database, so the payload never goes stale and stays tiny.
type TriggerPayload struct {
	NotificationID string `json:"notificationId"`
}

// ScheduleRef is the opaque reference returned by the scheduler service.
type ScheduleRef struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// Client abstracts the external one-shot scheduler service.
// The service enforces at most one schedule per name; Create on a taken name
// fails, Update repoints, Delete removes. Callers decide per flow whether a
// failed Delete matters — cancel treats it as best-effort cleanup.
type Client interface {
	CreateSchedule(ctx context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error)
	UpdateSchedule(ctx context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error)
	DeleteSchedule(ctx context.Context, name string) error
}
