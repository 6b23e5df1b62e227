package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/events"
	"github.com/example/taskboard/protocol"
)

// DefaultWriteTimeout bounds a single accepted mutation.
const DefaultWriteTimeout = 10 * time.Second

// Broadcaster fans an event out to every connected client.
type Broadcaster interface {
	Broadcast(event string, payload any) error
}

// BoardPort is the set of board operations available to driving adapters.
type BoardPort interface {
	Create(ctx context.Context, in task.CreateIntent) (task.Task, error)
	Update(ctx context.Context, in task.UpdateIntent) (task.Task, error)
	Move(ctx context.Context, in task.MoveIntent) (task.Task, error)
	Delete(ctx context.Context, taskID string) (string, error)
	Snapshot(ctx context.Context) ([]task.Task, error)
	Get(ctx context.Context, taskID string) (task.Task, error)
	StatusAt(ctx context.Context, taskID string, at time.Time) (task.Status, bool, error)
}

// Engine is the single authority for board mutations. It validates
// intents, writes through the store and broadcasts the canonical result.
// Work on one task ID is serialized from the store read to the broadcast,
// so every client sees a task's changes in commit order.
type Engine struct {
	store        task.Store
	hub          Broadcaster
	eventBus     mono.EventBus
	locks        *keyedMutex
	logger       types.Logger
	writeTimeout time.Duration
	now          func() time.Time
	newID        func() string
}

var _ BoardPort = (*Engine)(nil)

// NewEngine creates an engine over store that broadcasts through hub.
func NewEngine(store task.Store, hub Broadcaster, logger types.Logger) *Engine {
	return &Engine{
		store:        store,
		hub:          hub,
		locks:        newKeyedMutex(),
		logger:       logger,
		writeTimeout: DefaultWriteTimeout,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
		newID: func() string { return uuid.New().String() },
	}
}

// SetEventBus enables best-effort domain events after each mutation.
func (e *Engine) SetEventBus(bus mono.EventBus) {
	e.eventBus = bus
}

// Create validates the intent, fills defaults and persists a new task.
func (e *Engine) Create(ctx context.Context, in task.CreateIntent) (task.Task, error) {
	t, err := task.NewTask(e.newID(), in, e.now())
	if err != nil {
		return task.Task{}, err
	}

	ctx, cancel := e.detach(ctx)
	defer cancel()

	unlock := e.locks.Lock(t.ID)
	created, err := e.store.Create(ctx, t)
	if err != nil {
		unlock()
		return task.Task{}, e.storeError("create", t.ID, err)
	}
	e.broadcast(protocol.EventCreated, created)
	unlock()

	e.logger.Info("Task created", "taskID", created.ID, "status", created.Status)
	e.publish(func(bus mono.EventBus) error {
		return events.TaskCreatedV1.Publish(bus, events.TaskCreatedEvent{
			TaskID:    created.ID,
			Title:     created.Title,
			Status:    string(created.Status),
			Category:  string(created.Category),
			Timestamp: created.CreatedAt,
		}, nil)
	})
	return created, nil
}

// Update applies the whitelisted fields of the intent.
func (e *Engine) Update(ctx context.Context, in task.UpdateIntent) (task.Task, error) {
	if err := in.Validate(); err != nil {
		return task.Task{}, err
	}
	id := in.TaskID()

	ctx, cancel := e.detach(ctx)
	defer cancel()

	var changed bool
	updated, err := e.mutate(ctx, "update", id, func(current task.Task, now time.Time) task.Patch {
		p := task.PlanUpdate(current, in, now)
		changed = p.StatusChanged()
		return p
	}, func(t task.Task) (string, any) {
		return protocol.EventUpdated, t
	})
	if err != nil {
		return task.Task{}, err
	}

	e.logger.Info("Task updated", "taskID", id, "statusChanged", changed)
	e.publish(func(bus mono.EventBus) error {
		return events.TaskUpdatedV1.Publish(bus, events.TaskUpdatedEvent{
			TaskID:        id,
			Status:        string(updated.Status),
			StatusChanged: changed,
			Timestamp:     updated.UpdatedAt,
		}, nil)
	})
	return updated, nil
}

// Move changes only the status of a task. Moving to the current status
// appends nothing but still broadcasts the canonical record.
func (e *Engine) Move(ctx context.Context, in task.MoveIntent) (task.Task, error) {
	if err := in.Validate(); err != nil {
		return task.Task{}, err
	}

	ctx, cancel := e.detach(ctx)
	defer cancel()

	var from task.Status
	moved, err := e.mutate(ctx, "move", in.TaskID, func(current task.Task, now time.Time) task.Patch {
		from = current.Status
		return task.PlanMove(current, in.NewStatus, now)
	}, func(t task.Task) (string, any) {
		return protocol.EventMoved, protocol.MovedPayload{Task: t}
	})
	if err != nil {
		return task.Task{}, err
	}

	e.logger.Info("Task moved", "taskID", in.TaskID, "from", from, "to", moved.Status)
	e.publish(func(bus mono.EventBus) error {
		return events.TaskMovedV1.Publish(bus, events.TaskMovedEvent{
			TaskID:     in.TaskID,
			FromStatus: string(from),
			ToStatus:   string(moved.Status),
			Timestamp:  moved.UpdatedAt,
		}, nil)
	})
	return moved, nil
}

// Delete removes a task and broadcasts its bare identifier.
func (e *Engine) Delete(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", &task.ValidationError{Reason: protocol.MsgTaskIDRequired}
	}

	ctx, cancel := e.detach(ctx)
	defer cancel()

	unlock := e.locks.Lock(taskID)
	if _, err := e.store.DeleteByID(ctx, taskID); err != nil {
		unlock()
		return "", e.storeError("delete", taskID, err)
	}
	e.broadcast(protocol.EventDeleted, taskID)
	unlock()

	e.logger.Info("Task deleted", "taskID", taskID)
	e.publish(func(bus mono.EventBus) error {
		return events.TaskDeletedV1.Publish(bus, events.TaskDeletedEvent{
			TaskID:    taskID,
			Timestamp: e.now(),
		}, nil)
	})
	return taskID, nil
}

// Snapshot returns every task, most recently created first.
func (e *Engine) Snapshot(ctx context.Context) ([]task.Task, error) {
	tasks, err := e.store.Find(ctx)
	if err != nil {
		return nil, e.storeError("snapshot", "", err)
	}
	return tasks, nil
}

// Get returns a single task.
func (e *Engine) Get(ctx context.Context, taskID string) (task.Task, error) {
	if taskID == "" {
		return task.Task{}, &task.ValidationError{Reason: protocol.MsgTaskIDRequired}
	}
	t, err := e.store.FindByID(ctx, taskID)
	if err != nil {
		return task.Task{}, e.storeError("get", taskID, err)
	}
	return t, nil
}

// StatusAt reconstructs the status a task held at the given instant.
func (e *Engine) StatusAt(ctx context.Context, taskID string, at time.Time) (task.Status, bool, error) {
	t, err := e.Get(ctx, taskID)
	if err != nil {
		return "", false, err
	}
	s, ok := task.StatusAt(t, at)
	return s, ok, nil
}

// mutate runs the read-decide-write-broadcast cycle for one task while
// holding that task's lock.
func (e *Engine) mutate(
	ctx context.Context,
	op, id string,
	plan func(current task.Task, now time.Time) task.Patch,
	announce func(task.Task) (string, any),
) (task.Task, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	current, err := e.store.FindByID(ctx, id)
	if err != nil {
		return task.Task{}, e.storeError(op, id, err)
	}

	updated, err := e.store.UpdateByID(ctx, id, plan(current, e.now()))
	if err != nil {
		return task.Task{}, e.storeError(op, id, err)
	}

	event, payload := announce(updated)
	e.broadcast(event, payload)
	return updated, nil
}

// detach keeps an accepted mutation running after the caller goes away.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
}

func (e *Engine) broadcast(event string, payload any) {
	if e.hub == nil {
		return
	}
	if err := e.hub.Broadcast(event, payload); err != nil {
		e.logger.Warn("Failed to broadcast", "event", event, "error", err)
	}
}

// publish emits a domain event. Failures are logged and never surface.
func (e *Engine) publish(fn func(bus mono.EventBus) error) {
	if e.eventBus == nil {
		return
	}
	if err := fn(e.eventBus); err != nil {
		e.logger.Warn("Failed to publish domain event", "error", err)
	}
}

// storeError passes NotFound through and wraps everything else as a store
// failure, logging it at the engine boundary.
func (e *Engine) storeError(op, id string, err error) error {
	if errors.Is(err, task.ErrNotFound) {
		return err
	}
	e.logger.Error("Store operation failed", "op", op, "taskID", id, "error", err)
	return fmt.Errorf("%w: %s: %w", task.ErrStore, op, err)
}
