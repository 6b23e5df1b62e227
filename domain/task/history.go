package task

import "time"

// History answers questions about a task's past statuses.
type History interface {
	// StatusAt returns the status held at the given instant. The second
	// result is false when the instant precedes the task's existence.
	StatusAt(at time.Time) (Status, bool)
	// FirstEntered returns when the task first reached s.
	FirstEntered(s Status) (time.Time, bool)
	// LastEntered returns when the task most recently reached s.
	LastEntered(s Status) (time.Time, bool)
}

// LoggedHistory replays a recorded status log. Entries sharing a timestamp
// resolve to the later one in log order.
type LoggedHistory []StatusChange

// StatusAt finds the last entry at or before at.
func (h LoggedHistory) StatusAt(at time.Time) (Status, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if !h[i].ChangedAt.After(at) {
			return h[i].Status, true
		}
	}
	return "", false
}

func (h LoggedHistory) FirstEntered(s Status) (time.Time, bool) {
	for _, c := range h {
		if c.Status == s {
			return c.ChangedAt, true
		}
	}
	return time.Time{}, false
}

func (h LoggedHistory) LastEntered(s Status) (time.Time, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Status == s {
			return h[i].ChangedAt, true
		}
	}
	return time.Time{}, false
}

// InferredHistory reconstructs statuses from timestamps for records that
// have no status log.
type InferredHistory struct {
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// StatusAt applies done, then inprogress, then todo by timestamp.
func (h InferredHistory) StatusAt(at time.Time) (Status, bool) {
	switch {
	case h.CompletedAt != nil && !at.Before(*h.CompletedAt):
		return StatusDone, true
	case h.StartedAt != nil && !at.Before(*h.StartedAt):
		return StatusInProgress, true
	case !at.Before(h.CreatedAt):
		return StatusTodo, true
	}
	return "", false
}

func (h InferredHistory) FirstEntered(s Status) (time.Time, bool) {
	switch s {
	case StatusTodo:
		return h.CreatedAt, true
	case StatusInProgress:
		if h.StartedAt != nil {
			return *h.StartedAt, true
		}
	case StatusDone:
		if h.CompletedAt != nil {
			return *h.CompletedAt, true
		}
	}
	return time.Time{}, false
}

func (h InferredHistory) LastEntered(s Status) (time.Time, bool) {
	return h.FirstEntered(s)
}

// HistoryOf selects the logged variant when the task has a status log and
// falls back to inference otherwise.
func HistoryOf(t Task) History {
	if len(t.StatusHistory) > 0 {
		return LoggedHistory(t.StatusHistory)
	}
	return InferredHistory{
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

// StatusAt returns the status t held at the given instant.
func StatusAt(t Task, at time.Time) (Status, bool) {
	return HistoryOf(t).StatusAt(at)
}

// CheckHistory verifies the log invariants: non-decreasing timestamps and a
// last entry that matches the current status.
func CheckHistory(t Task) bool {
	if len(t.StatusHistory) == 0 {
		return false
	}
	for i := 1; i < len(t.StatusHistory); i++ {
		if t.StatusHistory[i].ChangedAt.Before(t.StatusHistory[i-1].ChangedAt) {
			return false
		}
	}
	return t.StatusHistory[len(t.StatusHistory)-1].Status == t.Status
}
