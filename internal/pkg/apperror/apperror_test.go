package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("checkout: %w", Conflict("ConceptAlreadyPaid", "already paid"))

	assert.True(t, errors.Is(err, Conflict("ConceptAlreadyPaid", "")))
	assert.False(t, errors.Is(err, Conflict("ConceptAlreadyActive", "")))
	assert.True(t, errors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
}

func TestKindAndCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"validation", Validation("NameRequired", "name is required"), KindValidation, "NameRequired"},
		{"wrapped gateway", fmt.Errorf("x: %w", Gateway("down", errors.New("timeout"))), KindGateway, "GatewayError"},
		{"plain error", errors.New("boom"), KindInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := Gateway("could not create session", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "GatewayError: could not create session: connection refused", err.Error())
	assert.Equal(t, "NotFound: missing", NotFound("NotFound", "missing").Error())
}
