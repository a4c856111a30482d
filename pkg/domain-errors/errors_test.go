package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeValidation, "amount must be positive")
		assert.True(t, HasCode(err, CodeValidation))
		assert.False(t, HasCode(err, CodeInternal))
	})

	t.Run("matches nested code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeTimeout, "ledger call timed out")
		outer := Wrap(fmt.Errorf("submit: %w", inner), CodeUnavailable, "mint submission failed")
		assert.True(t, HasCode(outer, CodeUnavailable))
		assert.True(t, HasCode(outer, CodeTimeout))
		assert.Equal(t, CodeUnavailable, CodeOf(outer))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("keeps sentinel reachable", func(t *testing.T) {
		sentinel := errors.New("unavailable")
		err := Wrap(sentinel, CodeUnavailable, "reserve source down")
		assert.True(t, Is(err, sentinel))
		assert.Equal(t, "reserve source down: unavailable", err.Error())
	})
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "bad amount", Message(Wrap(errors.New("strconv"), CodeValidation, "bad amount")))
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Equal(t, "", Message(nil))
}
