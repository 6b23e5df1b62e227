package api

import (
	"time"

	"github.com/example/taskboard/domain/task"
)

// TaskListResponse is the API response for the task snapshot.
type TaskListResponse struct {
	Tasks []task.Task `json:"tasks"`
	Total int         `json:"total"`
}

// StatusAtResponse is the API response for a reconstructed status.
type StatusAtResponse struct {
	TaskID string      `json:"taskId"`
	At     time.Time   `json:"at"`
	Status task.Status `json:"status,omitempty"`
	Known  bool        `json:"known"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Modules map[string]any `json:"modules,omitempty"`
}
