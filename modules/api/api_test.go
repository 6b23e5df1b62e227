package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/domain/task"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// fakeBoard is a scriptable BoardPort. Unset hooks return zero values.
type fakeBoard struct {
	create   func(task.CreateIntent) (task.Task, error)
	update   func(task.UpdateIntent) (task.Task, error)
	move     func(task.MoveIntent) (task.Task, error)
	remove   func(string) (string, error)
	snapshot func() ([]task.Task, error)
	get      func(string) (task.Task, error)
	statusAt func(string, time.Time) (task.Status, bool, error)
}

func (f *fakeBoard) Create(_ context.Context, in task.CreateIntent) (task.Task, error) {
	return f.create(in)
}

func (f *fakeBoard) Update(_ context.Context, in task.UpdateIntent) (task.Task, error) {
	return f.update(in)
}

func (f *fakeBoard) Move(_ context.Context, in task.MoveIntent) (task.Task, error) {
	return f.move(in)
}

func (f *fakeBoard) Delete(_ context.Context, id string) (string, error) {
	return f.remove(id)
}

func (f *fakeBoard) Snapshot(context.Context) ([]task.Task, error) {
	if f.snapshot == nil {
		return nil, nil
	}
	return f.snapshot()
}

func (f *fakeBoard) Get(_ context.Context, id string) (task.Task, error) {
	return f.get(id)
}

func (f *fakeBoard) StatusAt(_ context.Context, id string, at time.Time) (task.Status, bool, error) {
	return f.statusAt(id, at)
}

// fakeAnalytics returns a fixed dashboard.
type fakeAnalytics struct {
	window int
	err    error
}

func (f *fakeAnalytics) Dashboard(_ context.Context, windowDays int) (metrics.Dashboard, error) {
	f.window = windowDays
	if f.err != nil {
		return metrics.Dashboard{}, f.err
	}
	return metrics.Dashboard{Report: metrics.Report{WindowDays: windowDays}}, nil
}

// sentFrame is a frame captured from a connection's reply func.
type sentFrame struct {
	Event   string
	Ref     string
	Payload json.RawMessage
}

type replyRecorder struct {
	mu     sync.Mutex
	frames []sentFrame
}

func (r *replyRecorder) reply(event, ref string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, sentFrame{Event: event, Ref: ref, Payload: data})
	return nil
}

func (r *replyRecorder) Frames() []sentFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sentFrame, len(r.frames))
	copy(out, r.frames)
	return out
}
