package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OfflineClient is the non-production scheduler: it returns synthetic
// references without dialing out, so the create/cancel flows stay fully
// testable (and runnable in dev) with no scheduler service reachable.
// Firing the trigger is then a manual or cron-driven POST to the fan-out
// endpoint, or the due-scan sweeper.
type OfflineClient struct {
	logger *zap.Logger
}

func NewOfflineClient(logger *zap.Logger) *OfflineClient {
	return &OfflineClient{logger: logger}
}

func (c *OfflineClient) CreateSchedule(_ context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	c.logger.Info("offline scheduler: create",
		zap.String("name", name),
		zap.Time("at", at),
		zap.String("target", target),
		zap.String("notification_id", payload.NotificationID),
	)
	return ScheduleRef{Name: name, ARN: "offline:schedule/" + name}, nil
}

func (c *OfflineClient) UpdateSchedule(_ context.Context, name string, at time.Time, _ string, _ TriggerPayload) (ScheduleRef, error) {
	c.logger.Info("offline scheduler: update", zap.String("name", name), zap.Time("at", at))
	return ScheduleRef{Name: name, ARN: "offline:schedule/" + name}, nil
}

func (c *OfflineClient) DeleteSchedule(_ context.Context, name string) error {
	c.logger.Info("offline scheduler: delete", zap.String("name", name))
	return nil
}

var _ Client = (*OfflineClient)(nil)
