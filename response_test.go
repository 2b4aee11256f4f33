package relay_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/relay"
)

func TestNewResponse(t *testing.T) {
	t.Parallel()

	resp := relay.NewResponse(map[string]string{"ok": "yes"}, http.StatusCreated)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Nil(t, resp.Header)
}

func TestResponse_WithHeader(t *testing.T) {
	t.Parallel()

	resp := relay.NewResponse(nil, http.StatusOK).
		WithHeader("Cache-Control", "no-store").
		WithHeader("X-Total", "3")

	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "3", resp.Header.Get("X-Total"))
}
