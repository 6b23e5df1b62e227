package task

import (
	"slices"
	"time"
)

// Status is the workflow column a task sits in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists all priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return slices.Contains(Priorities, p)
}

// Category classifies the kind of work a task represents.
type Category string

const (
	CategoryBug           Category = "bug"
	CategoryFeature       Category = "feature"
	CategoryEnhancement   Category = "enhancement"
	CategoryDesign        Category = "design"
	CategoryRefactor      Category = "refactor"
	CategoryDocumentation Category = "documentation"
	CategoryTesting       Category = "testing"
)

// Categories lists the fixed set of task categories.
var Categories = []Category{
	CategoryBug,
	CategoryFeature,
	CategoryEnhancement,
	CategoryDesign,
	CategoryRefactor,
	CategoryDocumentation,
	CategoryTesting,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// Defaults applied to omitted fields on create.
const (
	DefaultTitle    = "Untitled Task"
	DefaultStatus   = StatusTodo
	DefaultPriority = PriorityMedium
	DefaultCategory = CategoryFeature
)

// Attachment is a reference to a file stored elsewhere.
type Attachment struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// StatusChange is one entry of a task's status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changedAt"`
}

// Task is the canonical task record.
//
// StatusHistory is append-only: entries are non-decreasing in ChangedAt and
// the last entry always matches Status. StartedAt and CompletedAt record the
// first time the task reached inprogress and done; they are never cleared.
type Task struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Status        Status         `json:"status"`
	Priority      Priority       `json:"priority"`
	Category      Category       `json:"category"`
	Assignee      *string        `json:"assignee"`
	Attachments   []Attachment   `json:"attachments"`
	StartedAt     *time.Time     `json:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt"`
	StatusHistory []StatusChange `json:"statusHistory"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	c.Attachments = cloneSlice(t.Attachments)
	c.StatusHistory = cloneSlice(t.StatusHistory)
	return c
}

// AssigneeName returns the assignee label or "" when unassigned.
func (t Task) AssigneeName() string {
	if t.Assignee == nil {
		return ""
	}
	return *t.Assignee
}

// CompletionTime returns when the task was completed. Tasks in done without
// a recorded CompletedAt fall back to UpdatedAt.
func (t Task) CompletionTime() (time.Time, bool) {
	if t.CompletedAt != nil {
		return *t.CompletedAt, true
	}
	if t.Status == StatusDone {
		return t.UpdatedAt, true
	}
	return time.Time{}, false
}

// LastChange returns the most recent history entry.
func (t Task) LastChange() (StatusChange, bool) {
	if len(t.StatusHistory) == 0 {
		return StatusChange{}, false
	}
	return t.StatusHistory[len(t.StatusHistory)-1], true
}

// cloneSlice copies s, keeping nil and empty distinct so JSON stays stable.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
