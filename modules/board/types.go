package board

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/taskboard/domain/task"
)

// Error codes carried in service responses so the adapter can restore the
// error class on the calling side.
const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeStore      = "store"
)

// Result is embedded in every service response.
type Result struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// TaskResponse is the response for create, update, move and get.
type TaskResponse struct {
	Result
	Task *task.Task `json:"task,omitempty"`
}

// TaskIDRequest addresses a single task.
type TaskIDRequest struct {
	TaskID string `json:"task_id"`
}

// DeleteResponse is the response for delete.
type DeleteResponse struct {
	Result
	TaskID string `json:"task_id,omitempty"`
}

// SnapshotRequest is the request for the full task list.
type SnapshotRequest struct{}

// SnapshotResponse is the response for snapshot.
type SnapshotResponse struct {
	Result
	Tasks []task.Task `json:"tasks"`
}

// StatusAtRequest asks for a task's status at a past instant.
type StatusAtRequest struct {
	TaskID string    `json:"task_id"`
	At     time.Time `json:"at"`
}

// StatusAtResponse answers StatusAtRequest. Known is false when the task
// did not exist yet at that instant.
type StatusAtResponse struct {
	Result
	Status task.Status `json:"status,omitempty"`
	Known  bool        `json:"known"`
}

// resultOf converts an engine error into a response code.
func resultOf(err error) Result {
	var ve *task.ValidationError
	switch {
	case err == nil:
		return Result{}
	case errors.As(err, &ve):
		return Result{Code: CodeValidation, Message: ve.Reason}
	case errors.Is(err, task.ErrNotFound):
		return Result{Code: CodeNotFound, Message: err.Error()}
	default:
		return Result{Code: CodeStore, Message: err.Error()}
	}
}

// Err restores the error class of a response on the calling side.
func (r Result) Err() error {
	switch r.Code {
	case "":
		return nil
	case CodeValidation:
		return &task.ValidationError{Reason: r.Message}
	case CodeNotFound:
		return task.ErrNotFound
	default:
		return fmt.Errorf("%w: %s", task.ErrStore, strings.TrimPrefix(r.Message, task.ErrStore.Error()+": "))
	}
}
