package task

import (
	"strings"
	"time"
)

// CreateIntent carries the client-supplied fields for a new task. Omitted
// or empty fields take the documented defaults.
type CreateIntent struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Status      Status       `json:"status,omitempty"`
	Priority    Priority     `json:"priority,omitempty"`
	Category    Category     `json:"category,omitempty"`
	Assignee    *string      `json:"assignee,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Validate rejects enum values outside the allowed sets.
func (in CreateIntent) Validate() error {
	if in.Status != "" && !in.Status.Valid() {
		return invalidf("invalid status %q", in.Status)
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return invalidf("invalid priority %q", in.Priority)
	}
	if in.Category != "" && !in.Category.Valid() {
		return invalidf("invalid category %q", in.Category)
	}
	return nil
}

// NewTask builds the canonical record for a create intent. The history is
// seeded with the initial status, and the first-reached timestamps are
// stamped when the task starts out in inprogress or done.
func NewTask(id string, in CreateIntent, now time.Time) (Task, error) {
	if err := in.Validate(); err != nil {
		return Task{}, err
	}

	t := Task{
		ID:          id,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Category:    in.Category,
		Assignee:    normalizeAssignee(in.Assignee),
		Attachments: cloneSlice(in.Attachments),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Title == "" {
		t.Title = DefaultTitle
	}
	if t.Status == "" {
		t.Status = DefaultStatus
	}
	if t.Priority == "" {
		t.Priority = DefaultPriority
	}
	if t.Category == "" {
		t.Category = DefaultCategory
	}
	if t.Attachments == nil {
		t.Attachments = []Attachment{}
	}

	t.StatusHistory = []StatusChange{{Status: t.Status, ChangedAt: now}}
	switch t.Status {
	case StatusInProgress:
		t.StartedAt = &now
	case StatusDone:
		t.CompletedAt = &now
	}
	return t, nil
}

// UpdateIntent is a field-level patch. Only whitelisted fields are decoded;
// anything else a client sends is dropped by the JSON decoder.
type UpdateIntent struct {
	ID          string                 `json:"id,omitempty"`
	LegacyID    string                 `json:"_id,omitempty"`
	Title       Optional[string]       `json:"title,omitzero"`
	Description Optional[string]       `json:"description,omitzero"`
	Status      Optional[Status]       `json:"status,omitzero"`
	Priority    Optional[Priority]     `json:"priority,omitzero"`
	Category    Optional[Category]     `json:"category,omitzero"`
	Attachments Optional[[]Attachment] `json:"attachments,omitzero"`
	Assignee    Optional[*string]      `json:"assignee,omitzero"`
}

// TaskID returns the identifier, accepting the legacy _id key.
func (in UpdateIntent) TaskID() string {
	if in.ID != "" {
		return in.ID
	}
	return in.LegacyID
}

// Validate checks the identifier and every field that was sent.
func (in UpdateIntent) Validate() error {
	if in.TaskID() == "" {
		return invalidf("Task ID is required")
	}
	if in.Title.Set && strings.TrimSpace(in.Title.Value) == "" {
		return invalidf("title cannot be empty")
	}
	if in.Status.Set && !in.Status.Value.Valid() {
		return invalidf("invalid status %q", in.Status.Value)
	}
	if in.Priority.Set && !in.Priority.Value.Valid() {
		return invalidf("invalid priority %q", in.Priority.Value)
	}
	if in.Category.Set && !in.Category.Value.Valid() {
		return invalidf("invalid category %q", in.Category.Value)
	}
	return nil
}

// MoveIntent changes only the status of a task.
type MoveIntent struct {
	TaskID    string `json:"taskId"`
	NewStatus Status `json:"newStatus"`
}

// Validate requires both arguments and a known status.
func (in MoveIntent) Validate() error {
	if in.TaskID == "" || in.NewStatus == "" {
		return invalidf("taskId and newStatus are required")
	}
	if !in.NewStatus.Valid() {
		return invalidf("invalid status %q", in.NewStatus)
	}
	return nil
}

func normalizeAssignee(a *string) *string {
	if a == nil {
		return nil
	}
	v := strings.TrimSpace(*a)
	if v == "" {
		return nil
	}
	return &v
}
