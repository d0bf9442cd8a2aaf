package scheduler

import (
	"context"
	"sync"
	"time"
)

// Call records one invocation against the FakeClient.
type Call struct {
	Op      string // "create", "update", "delete"
	Name    string
	At      time.Time
	Target  string
	Payload TriggerPayload
}

// FakeClient is a recording scheduler for unit tests. Error overrides let
// tests drive the compensation paths.
type FakeClient struct {
	mu    sync.Mutex
	calls []Call

	CreateErr error
	UpdateErr error
	DeleteErr error
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) CreateSchedule(_ context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	f.record(Call{Op: "create", Name: name, At: at, Target: target, Payload: payload})
	if f.CreateErr != nil {
		return ScheduleRef{}, f.CreateErr
	}
	return ScheduleRef{Name: name, ARN: "fake:schedule/" + name}, nil
}

func (f *FakeClient) UpdateSchedule(_ context.Context, name string, at time.Time, target string, payload TriggerPayload) (ScheduleRef, error) {
	f.record(Call{Op: "update", Name: name, At: at, Target: target, Payload: payload})
	if f.UpdateErr != nil {
		return ScheduleRef{}, f.UpdateErr
	}
	return ScheduleRef{Name: name, ARN: "fake:schedule/" + name}, nil
}

func (f *FakeClient) DeleteSchedule(_ context.Context, name string) error {
	f.record(Call{Op: "delete", Name: name})
	return f.DeleteErr
}

func (f *FakeClient) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a snapshot of all recorded invocations in order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns only the calls matching op.
func (f *FakeClient) CallsTo(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

var _ Client = (*FakeClient)(nil)
