package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches own code", func(t *testing.T) {
		err := New(CodeInvalidState, "order not active")
		assert.True(t, HasCode(err, CodeInvalidState))
		assert.False(t, HasCode(err, CodeReplay))
	})

	t.Run("matches wrapped code", func(t *testing.T) {
		inner := New(CodeComplianceViolation, "sender over daily limit")
		outer := Wrap(inner, CodeInternal, "transfer failed")
		assert.True(t, HasCode(outer, CodeComplianceViolation))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("false for plain errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})

	t.Run("survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handler: %w", New(CodeForbidden, "missing capability"))
		assert.True(t, HasCode(err, CodeForbidden))
	})
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeReplay, CodeOf(New(CodeReplay, "transfer id consumed")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Wrap(cause, CodeInternal, "store unavailable")
	require.ErrorIs(t, err, cause)
}
