// Package client keeps a local mirror of the board in sync with the server.
package client

import (
	"encoding/json"
	"fmt"

	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/protocol"
)

// Mirror is a client's local copy of the board, newest task first. It has a
// single owner and is not safe for concurrent use.
type Mirror struct {
	tasks []task.Task
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{}
}

// Replace discards the mirror and loads a server snapshot.
func (m *Mirror) Replace(tasks []task.Task) {
	m.tasks = make([]task.Task, len(tasks))
	for i, t := range tasks {
		m.tasks[i] = t.Clone()
	}
}

// Upsert replaces the task with the same ID in place, or inserts it at the
// front. Applying the same record twice leaves the mirror unchanged.
func (m *Mirror) Upsert(t task.Task) {
	if i := m.index(t.ID); i >= 0 {
		m.tasks[i] = t.Clone()
		return
	}
	m.tasks = append([]task.Task{t.Clone()}, m.tasks...)
}

// Remove deletes a task and reports whether it was present.
func (m *Mirror) Remove(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
	return true
}

// Patch edits a task in place for an optimistic update.
func (m *Mirror) Patch(id string, fn func(*task.Task)) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	fn(&m.tasks[i])
	return true
}

// Get returns a copy of one task.
func (m *Mirror) Get(id string) (task.Task, bool) {
	i := m.index(id)
	if i < 0 {
		return task.Task{}, false
	}
	return m.tasks[i].Clone(), true
}

// Tasks returns a copy of every task in mirror order.
func (m *Mirror) Tasks() []task.Task {
	out := make([]task.Task, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of tasks.
func (m *Mirror) Len() int {
	return len(m.tasks)
}

// Columns groups tasks by status, keeping mirror order within a column.
func (m *Mirror) Columns() map[task.Status][]task.Task {
	return Columns(m.tasks)
}

// Apply folds one server event into the mirror. Events that do not change
// the board are ignored.
func (m *Mirror) Apply(f protocol.Frame) error {
	switch f.Event {
	case protocol.EventSyncTasks:
		var tasks []task.Task
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &tasks); err != nil {
				return fmt.Errorf("%s: decode payload: %w", f.Event, err)
			}
		}
		m.Replace(tasks)
	case protocol.EventCreated, protocol.EventUpdated, protocol.EventMoved:
		t, err := decodeTask(f)
		if err != nil {
			return err
		}
		m.Upsert(t)
	case protocol.EventDeleted:
		var id string
		if err := f.Decode(&id); err != nil {
			return err
		}
		m.Remove(id)
	}
	return nil
}

// Replay folds an event that arrived while a snapshot was in flight into the
// snapshot loaded since. A task event is kept unless the snapshot already
// holds a newer copy of the task. Deletions always win.
func (m *Mirror) Replay(f protocol.Frame) error {
	switch f.Event {
	case protocol.EventCreated, protocol.EventUpdated, protocol.EventMoved:
		t, err := decodeTask(f)
		if err != nil {
			return err
		}
		m.Merge(t)
	case protocol.EventDeleted:
		var id string
		if err := f.Decode(&id); err != nil {
			return err
		}
		m.Remove(id)
	}
	return nil
}

// Merge upserts t unless the mirror holds a copy updated after it.
func (m *Mirror) Merge(t task.Task) {
	if i := m.index(t.ID); i >= 0 && m.tasks[i].UpdatedAt.After(t.UpdatedAt) {
		return
	}
	m.Upsert(t)
}

func decodeTask(f protocol.Frame) (task.Task, error) {
	if f.Event == protocol.EventMoved {
		var p protocol.MovedPayload
		if err := f.Decode(&p); err != nil {
			return task.Task{}, err
		}
		return p.Task, nil
	}
	var t task.Task
	if err := f.Decode(&t); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (m *Mirror) index(id string) int {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Columns groups tasks by status in the order given.
func Columns(tasks []task.Task) map[task.Status][]task.Task {
	cols := make(map[task.Status][]task.Task, len(task.Statuses))
	for _, s := range task.Statuses {
		cols[s] = []task.Task{}
	}
	for _, t := range tasks {
		cols[t.Status] = append(cols[t.Status], t.Clone())
	}
	return cols
}

// applyUpdate mirrors the whitelisted fields of an update intent.
func applyUpdate(t *task.Task, in task.UpdateIntent) {
	if in.Title.Set {
		t.Title = in.Title.Value
	}
	if in.Description.Set {
		t.Description = in.Description.Value
	}
	if in.Status.Set {
		t.Status = in.Status.Value
	}
	if in.Priority.Set {
		t.Priority = in.Priority.Value
	}
	if in.Category.Set {
		t.Category = in.Category.Value
	}
	if in.Attachments.Set {
		t.Attachments = append([]task.Attachment{}, in.Attachments.Value...)
	}
	if in.Assignee.Set {
		t.Assignee = in.Assignee.Value
	}
}
