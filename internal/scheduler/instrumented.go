package scheduler

import (
	"context"
	"time"
)

// InstrumentedClient decorates a Client with a per-call observation hook.
// The hook receives the operation name and the call's error so the metrics
// package can count outcomes without this package importing prometheus.
type InstrumentedClient struct {
	next    Client
	observe func(op string, err error)
}

func NewInstrumentedClient(next Client, observe func(op string, err error)) *InstrumentedClient {
	if observe == nil {
		observe = func(string, error) {}
	}
	return &InstrumentedClient{next: next, observe: observe}
}

func (c *InstrumentedClient) CreateSchedule(ctx context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	ref, err := c.next.CreateSchedule(ctx, name, at, target, payload)
	c.observe("create", err)
	return ref, err
}

func (c *InstrumentedClient) UpdateSchedule(ctx context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	ref, err := c.next.UpdateSchedule(ctx, name, at, target, payload)
	c.observe("update", err)
	return ref, err
}

func (c *InstrumentedClient) DeleteSchedule(ctx context.Context, name string) error {
	err := c.next.DeleteSchedule(ctx, name)
	c.observe("delete", err)
	return err
}

var _ Client = (*InstrumentedClient)(nil)
