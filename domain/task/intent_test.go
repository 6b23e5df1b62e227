package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask_Defaults(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := NewTask("t1", CreateIntent{Title: "Write spec"}, now)
	require.NoError(t, err)

	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "Write spec", got.Title)
	assert.Equal(t, "", got.Description)
	assert.Equal(t, StatusTodo, got.Status)
	assert.Equal(t, PriorityMedium, got.Priority)
	assert.Equal(t, CategoryFeature, got.Category)
	assert.Nil(t, got.Assignee)
	assert.NotNil(t, got.Attachments)
	assert.Empty(t, got.Attachments)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, []StatusChange{{Status: StatusTodo, ChangedAt: now}}, got.StatusHistory)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestNewTask_EmptyTitleDefaults(t *testing.T) {
	got, err := NewTask("t1", CreateIntent{Title: "   "}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, got.Title)
}

func TestNewTask_StartsInProgress(t *testing.T) {
	now := time.Now().UTC()
	got, err := NewTask("t1", CreateIntent{Status: StatusInProgress}, now)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, now, *got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestNewTask_RejectsInvalidEnums(t *testing.T) {
	tests := []CreateIntent{
		{Status: "blocked"},
		{Priority: "urgent"},
		{Category: "chore"},
	}
	for _, in := range tests {
		_, err := NewTask("t1", in, time.Now())
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestUpdateIntent_DecodeWhitelist(t *testing.T) {
	raw := `{
		"id": "abc",
		"title": "New",
		"assignee": null,
		"createdAt": "2000-01-01T00:00:00Z",
		"statusHistory": [],
		"completedAt": "2000-01-01T00:00:00Z"
	}`

	var in UpdateIntent
	require.NoError(t, json.Unmarshal([]byte(raw), &in))

	assert.Equal(t, "abc", in.TaskID())
	assert.True(t, in.Title.Set)
	assert.Equal(t, "New", in.Title.Value)
	assert.True(t, in.Assignee.Set)
	assert.Nil(t, in.Assignee.Value)
	assert.False(t, in.Status.Set)
	assert.False(t, in.Description.Set)
	assert.NoError(t, in.Validate())
}

func TestUpdateIntent_LegacyID(t *testing.T) {
	var in UpdateIntent
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"legacy"}`), &in))
	assert.Equal(t, "legacy", in.TaskID())
}

func TestUpdateIntent_Validate(t *testing.T) {
	tests := []struct {
		name string
		in   UpdateIntent
	}{
		{"missing id", UpdateIntent{Title: Some("x")}},
		{"empty title", UpdateIntent{ID: "a", Title: Some(" ")}},
		{"bad status", UpdateIntent{ID: "a", Status: Some(Status("blocked"))}},
		{"bad priority", UpdateIntent{ID: "a", Priority: Some(Priority("p0"))}},
		{"bad category", UpdateIntent{ID: "a", Category: Some(Category("chore"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.in.Validate(), ErrValidation)
		})
	}
}

func TestMoveIntent_Validate(t *testing.T) {
	assert.ErrorIs(t, MoveIntent{NewStatus: StatusDone}.Validate(), ErrValidation)
	assert.ErrorIs(t, MoveIntent{TaskID: "a"}.Validate(), ErrValidation)
	assert.ErrorIs(t, MoveIntent{TaskID: "a", NewStatus: "blocked"}.Validate(), ErrValidation)
	assert.NoError(t, MoveIntent{TaskID: "a", NewStatus: StatusDone}.Validate())
}

func TestOptional_MarshalOmitsUnset(t *testing.T) {
	data, err := json.Marshal(UpdateIntent{ID: "a", Status: Some(StatusDone)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","status":"done"}`, string(data))
}

func TestValidationError_Reason(t *testing.T) {
	err := MoveIntent{}.Validate()

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "taskId and newStatus are required", ve.Reason)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
}
