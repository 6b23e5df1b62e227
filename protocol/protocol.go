// Package protocol defines the websocket wire contract shared by the server
// and the client reconciliation layer.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/example/taskboard/domain/task"
)

// Client to server events.
const (
	EventCreate      = "task:create"
	EventUpdate      = "task:update"
	EventMove        = "task:move"
	EventDelete      = "task:delete"
	EventSyncRequest = "sync:request"
)

// Server to client events. EventSyncTasks is also accepted from clients as
// a resync request.
const (
	EventSyncTasks = "sync:tasks"
	EventCreated   = "task:created"
	EventUpdated   = "task:updated"
	EventMoved     = "task:moved"
	EventDeleted   = "task:deleted"
	EventError     = "error"
	EventAck       = "ack"
)

// Ack statuses.
const (
	AckOK    = "ok"
	AckError = "error"
)

// Client-facing failure messages.
const (
	MsgTaskIDRequired   = "Task ID is required"
	MsgMoveArgsRequired = "taskId and newStatus are required"
	MsgTaskNotFound     = "Task not found"
	MsgCreateFailed     = "Failed to create task"
	MsgUpdateFailed     = "Failed to update task"
	MsgMoveFailed       = "Failed to move task"
	MsgDeleteFailed     = "Failed to delete task"
	MsgSyncFailed       = "Failed to sync tasks"
	MsgInvalidFrame     = "Invalid message format"
	MsgRateLimited      = "Rate limit exceeded, please slow down"
)

// Frame is the envelope for every websocket message. Ref correlates a
// request with its ack and is omitted on broadcasts.
type Frame struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes data into a frame.
func NewFrame(event, ref string, data any) (Frame, error) {
	f := Frame{Event: event, Ref: ref}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	f.Data = raw
	return f, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: empty payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", f.Event, err)
	}
	return nil
}

// Ack acknowledges a client request.
type Ack struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Task    *task.Task  `json:"task,omitempty"`
	TaskID  string      `json:"taskId,omitempty"`
	Tasks   []task.Task `json:"tasks,omitempty"`
}

// OK reports whether the request succeeded.
func (a Ack) OK() bool {
	return a.Status == AckOK
}

// Err converts a failed ack into an error.
func (a Ack) Err() error {
	if a.OK() {
		return nil
	}
	return fmt.Errorf("server: %s", a.Message)
}

// MovedPayload is the body of task:moved.
type MovedPayload struct {
	Task task.Task `json:"task"`
}

// ErrorPayload is the body of error.
type ErrorPayload struct {
	Message string `json:"message"`
}
