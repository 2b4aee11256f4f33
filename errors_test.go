package relay_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

func TestError_constructors(t *testing.T) {
	t.Parallel()

	err := relay.Error(http.StatusNotFound, "missing")
	assert.EqualError(t, err, "missing")
	assert.Equal(t, http.StatusNotFound, relay.ErrorStatus(err))

	err = relay.Errorf(http.StatusBadRequest, "bad field %q", "name")
	assert.EqualError(t, err, `bad field "name"`)
	assert.Equal(t, http.StatusBadRequest, relay.ErrorStatus(err))
}

func TestErrorStatus_defaultsTo500(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusInternalServerError, relay.ErrorStatus(errors.New("plain")))
}

func TestErrorStatus_wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("context: %w", relay.Error(http.StatusForbidden, "nope"))
	assert.Equal(t, http.StatusForbidden, relay.ErrorStatus(err))
}

func TestDependencyError_unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connect refused")
	err := &relay.DependencyError{Provider: "db", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `"db"`)
	assert.Equal(t, http.StatusInternalServerError, relay.ErrorStatus(err))
}

func TestCleanupError_unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("close failed")
	err := &relay.CleanupError{Provider: "cache", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `"cache"`)
}

func TestTaskError_unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("send failed")
	err := &relay.TaskError{Index: 2, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "task 2")
}

func TestPanicError_message(t *testing.T) {
	t.Parallel()

	err := &relay.PanicError{Value: "oops"}
	require.EqualError(t, err, "panic: oops")
}
