package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("amount must be positive"), KindValidation},
		{"not found", NotFound("expense", "e1"), KindNotFound},
		{"authorization", Unauthorized("not your step"), KindAuthorization},
		{"conflict", Conflict("version changed"), KindConflict},
		{"external", External("currency", errors.New("timeout")), KindExternalService},
		{"wrapped", fmt.Errorf("act: %w", Conflict("version changed")), KindConflict},
		{"plain error", errors.New("boom"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(NotFound("rule", "r1"), KindNotFound))
	assert.False(t, IsKind(NotFound("rule", "r1"), KindConflict))
	assert.False(t, IsKind(nil, ""))
}

func TestReasonAndUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := External("currency", cause)

	assert.Equal(t, "currency call failed", Reason(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "external_service: currency call failed: dial tcp: timeout", err.Error())
	assert.Equal(t, "expense e1 not found", Reason(fmt.Errorf("get: %w", NotFound("expense", "e1"))))
	assert.Equal(t, "boom", Reason(errors.New("boom")))
}
