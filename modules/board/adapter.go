package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/taskboard/domain/task"
)

// boardAdapter implements BoardPort over the board module's services.
type boardAdapter struct {
	container mono.ServiceContainer
}

// NewBoardAdapter creates a new adapter for board services.
// container is the ServiceContainer received via SetDependencyServiceContainer.
func NewBoardAdapter(container mono.ServiceContainer) BoardPort {
	if container == nil {
		panic("board adapter requires non-nil ServiceContainer")
	}
	return &boardAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%w: %s service call failed: %w", task.ErrStore, service, err)
	}
	return nil
}

// Create creates a task via the create service.
func (a *boardAdapter) Create(ctx context.Context, in task.CreateIntent) (task.Task, error) {
	var resp TaskResponse
	if err := call(ctx, a.container, "create", &in, &resp); err != nil {
		return task.Task{}, err
	}
	return resp.unwrap()
}

// Update patches a task via the update service.
func (a *boardAdapter) Update(ctx context.Context, in task.UpdateIntent) (task.Task, error) {
	var resp TaskResponse
	if err := call(ctx, a.container, "update", &in, &resp); err != nil {
		return task.Task{}, err
	}
	return resp.unwrap()
}

// Move changes a task's status via the move service.
func (a *boardAdapter) Move(ctx context.Context, in task.MoveIntent) (task.Task, error) {
	var resp TaskResponse
	if err := call(ctx, a.container, "move", &in, &resp); err != nil {
		return task.Task{}, err
	}
	return resp.unwrap()
}

// Delete removes a task via the delete service.
func (a *boardAdapter) Delete(ctx context.Context, taskID string) (string, error) {
	req := TaskIDRequest{TaskID: taskID}
	var resp DeleteResponse
	if err := call(ctx, a.container, "delete", &req, &resp); err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// Snapshot lists all tasks via the snapshot service.
func (a *boardAdapter) Snapshot(ctx context.Context) ([]task.Task, error) {
	req := SnapshotRequest{}
	var resp SnapshotResponse
	if err := call(ctx, a.container, "snapshot", &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Tasks == nil {
		resp.Tasks = []task.Task{}
	}
	return resp.Tasks, nil
}

// Get retrieves a task via the get service.
func (a *boardAdapter) Get(ctx context.Context, taskID string) (task.Task, error) {
	req := TaskIDRequest{TaskID: taskID}
	var resp TaskResponse
	if err := call(ctx, a.container, "get", &req, &resp); err != nil {
		return task.Task{}, err
	}
	return resp.unwrap()
}

// StatusAt reconstructs a past status via the status-at service.
func (a *boardAdapter) StatusAt(ctx context.Context, taskID string, at time.Time) (task.Status, bool, error) {
	req := StatusAtRequest{TaskID: taskID, At: at}
	var resp StatusAtResponse
	if err := call(ctx, a.container, "status-at", &req, &resp); err != nil {
		return "", false, err
	}
	if err := resp.Err(); err != nil {
		return "", false, err
	}
	return resp.Status, resp.Known, nil
}

func (r TaskResponse) unwrap() (task.Task, error) {
	if err := r.Err(); err != nil {
		return task.Task{}, err
	}
	if r.Task == nil {
		return task.Task{}, fmt.Errorf("%w: empty response", task.ErrStore)
	}
	return *r.Task, nil
}
