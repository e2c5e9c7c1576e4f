package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCode(t *testing.T) {
	err := AlreadyInCall(42)

	assert.True(t, IsCode(err, ErrCodeAlreadyInCall))
	assert.False(t, IsCode(err, ErrCodeCallAlreadyEnded))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeAlreadyInCall))
}

func TestIsCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("outer context: %w", CallAlreadyEnded("abc"))

	assert.True(t, IsCode(err, ErrCodeCallAlreadyEnded))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable(cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 503, err.StatusCode)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
}

func TestAsAppError(t *testing.T) {
	appErr := AsAppError(CallNotFound("abc"))
	assert.Equal(t, ErrCodeCallNotFound, appErr.Code)
	assert.Equal(t, 404, appErr.StatusCode)

	generic := AsAppError(errors.New("boom"))
	assert.Equal(t, ErrCodeInternal, generic.Code)
	assert.Equal(t, 500, generic.StatusCode)
}
