package board

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/taskboard/domain/task"
)

func TestResult_RoundTripsErrorClass(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    string
		wantErr error
	}{
		{"nil", nil, "", nil},
		{"validation", &task.ValidationError{Reason: "Task ID is required"}, CodeValidation, task.ErrValidation},
		{"not found", task.ErrNotFound, CodeNotFound, task.ErrNotFound},
		{"store", fmt.Errorf("%w: move: %w", task.ErrStore, errors.New("disk full")), CodeStore, task.ErrStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resultOf(tt.err)
			assert.Equal(t, tt.code, r.Code)

			err := r.Err()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResult_KeepsValidationReason(t *testing.T) {
	err := resultOf(&task.ValidationError{Reason: "title cannot be empty"}).Err()

	var ve *task.ValidationError
	if assert.ErrorAs(t, err, &ve) {
		assert.Equal(t, "title cannot be empty", ve.Reason)
	}
}

func TestResult_StoreMessageNotDoubled(t *testing.T) {
	orig := fmt.Errorf("%w: snapshot: %w", task.ErrStore, errors.New("timeout"))
	err := resultOf(orig).Err()
	assert.Equal(t, orig.Error(), err.Error())
}
