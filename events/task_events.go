package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// TaskCreatedEvent is emitted after a task is persisted for the first time.
type TaskCreatedEvent struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskUpdatedEvent is emitted after a field-level update.
type TaskUpdatedEvent struct {
	TaskID        string    `json:"task_id"`
	Status        string    `json:"status"`
	StatusChanged bool      `json:"status_changed"`
	Timestamp     time.Time `json:"timestamp"`
}

// TaskMovedEvent is emitted after a move, whether or not the status changed.
type TaskMovedEvent struct {
	TaskID     string    `json:"task_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// TaskDeletedEvent is emitted after a task is removed.
type TaskDeletedEvent struct {
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskCreatedV1 is the typed event definition for task creation.
// Subject: events.board.v1.task-created
var TaskCreatedV1 = helper.EventDefinition[TaskCreatedEvent](
	"board", "TaskCreated", "v1",
)

// TaskUpdatedV1 is the typed event definition for task updates.
// Subject: events.board.v1.task-updated
var TaskUpdatedV1 = helper.EventDefinition[TaskUpdatedEvent](
	"board", "TaskUpdated", "v1",
)

// TaskMovedV1 is the typed event definition for status moves.
// Subject: events.board.v1.task-moved
var TaskMovedV1 = helper.EventDefinition[TaskMovedEvent](
	"board", "TaskMoved", "v1",
)

// TaskDeletedV1 is the typed event definition for task deletion.
// Subject: events.board.v1.task-deleted
var TaskDeletedV1 = helper.EventDefinition[TaskDeletedEvent](
	"board", "TaskDeleted", "v1",
)
