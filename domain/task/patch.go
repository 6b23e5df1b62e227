package task

import (
	"strings"
	"time"
)

// Patch is the set of changes a store applies to one record in a single
// atomic write. It is produced by the engine, never by clients.
type Patch struct {
	Title         Optional[string]
	Description   Optional[string]
	Status        Optional[Status]
	Priority      Optional[Priority]
	Category      Optional[Category]
	Attachments   Optional[[]Attachment]
	Assignee      Optional[*string]
	StartedAt     Optional[time.Time]
	CompletedAt   Optional[time.Time]
	AppendHistory []StatusChange
	UpdatedAt     time.Time
}

// StatusChanged reports whether the patch appends a history entry.
func (p Patch) StatusChanged() bool {
	return len(p.AppendHistory) > 0
}

// Apply writes the patch onto t.
func (p Patch) Apply(t *Task) {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = p.Description.Value
	}
	if p.Status.Set {
		t.Status = p.Status.Value
	}
	if p.Priority.Set {
		t.Priority = p.Priority.Value
	}
	if p.Category.Set {
		t.Category = p.Category.Value
	}
	if p.Attachments.Set {
		t.Attachments = cloneSlice(p.Attachments.Value)
		if t.Attachments == nil {
			t.Attachments = []Attachment{}
		}
	}
	if p.Assignee.Set {
		t.Assignee = normalizeAssignee(p.Assignee.Value)
	}
	if p.StartedAt.Set && t.StartedAt == nil {
		s := p.StartedAt.Value
		t.StartedAt = &s
	}
	if p.CompletedAt.Set && t.CompletedAt == nil {
		c := p.CompletedAt.Value
		t.CompletedAt = &c
	}
	t.StatusHistory = append(t.StatusHistory, p.AppendHistory...)
	if !p.UpdatedAt.IsZero() {
		t.UpdatedAt = p.UpdatedAt
	}
}

// PlanUpdate turns an update intent into a patch against the current record.
func PlanUpdate(current Task, in UpdateIntent, now time.Time) Patch {
	p := Patch{
		Description: in.Description,
		Priority:    in.Priority,
		Category:    in.Category,
		Attachments: in.Attachments,
		Assignee:    in.Assignee,
		UpdatedAt:   now,
	}
	if in.Title.Set {
		p.Title = Some(strings.TrimSpace(in.Title.Value))
	}
	if in.Status.Set {
		planTransition(current, in.Status.Value, now, &p)
	}
	return p
}

// PlanMove turns a move intent into a status-only patch.
func PlanMove(current Task, newStatus Status, now time.Time) Patch {
	p := Patch{UpdatedAt: now}
	planTransition(current, newStatus, now, &p)
	return p
}

// planTransition appends history and stamps first-reached timestamps when
// next differs from the current status. A same-status transition is a no-op.
func planTransition(current Task, next Status, now time.Time, p *Patch) {
	if next == current.Status {
		return
	}
	at := now
	if last, ok := current.LastChange(); ok && at.Before(last.ChangedAt) {
		at = last.ChangedAt
	}
	p.Status = Some(next)
	p.AppendHistory = []StatusChange{{Status: next, ChangedAt: at}}
	switch next {
	case StatusInProgress:
		if current.StartedAt == nil {
			p.StartedAt = Some(at)
		}
	case StatusDone:
		if current.CompletedAt == nil {
			p.CompletedAt = Some(at)
		}
	}
}
