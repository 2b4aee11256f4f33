package relay_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

func noopHandler(_ *relay.Ctx) (*relay.Response, error) {
	return relay.NewResponse(nil, http.StatusOK), nil
}

func TestRouter_Dispatch_literal(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/health", noopHandler)

	m, err := r.Dispatch(http.MethodGet, "/health")
	require.NoError(t, err)
	assert.Equal(t, "/health", m.Pattern)
	assert.Zero(t, m.Params.Len())
}

func TestRouter_Dispatch_singleSegmentParam(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/users/:id", noopHandler)

	m, err := r.Dispatch(http.MethodGet, "/users/42")
	require.NoError(t, err)
	assert.Equal(t, "42", m.Params.Get("id"))

	// A single-segment parameter must not cross '/'.
	_, err = r.Dispatch(http.MethodGet, "/users/42/extra")
	assert.ErrorIs(t, err, relay.ErrRouteNotFound)
}

func TestRouter_Dispatch_wildcardParam(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/files/{name:path}", noopHandler)

	m, err := r.Dispatch(http.MethodGet, "/files/a/b/c.png")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c.png", m.Params.Get("name"))
}

func TestRouter_Dispatch_paramOrder(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/orgs/:org/repos/:repo/blob/{path:path}", noopHandler)

	m, err := r.Dispatch(http.MethodGet, "/orgs/acme/repos/site/blob/src/main.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"org", "repo", "path"}, m.Params.Names())
	assert.Equal(t, "acme", m.Params.Get("org"))
	assert.Equal(t, "site", m.Params.Get("repo"))
	assert.Equal(t, "src/main.go", m.Params.Get("path"))
}

func TestRouter_Dispatch_firstMatchWins(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/items/special", noopHandler, relay.WithMeta("name", "special"))
	r.Get("/items/:id", noopHandler, relay.WithMeta("name", "generic"))

	m, err := r.Dispatch(http.MethodGet, "/items/special")
	require.NoError(t, err)
	assert.Equal(t, "special", m.Meta["name"])

	m, err = r.Dispatch(http.MethodGet, "/items/7")
	require.NoError(t, err)
	assert.Equal(t, "generic", m.Meta["name"])
}

func TestRouter_Dispatch_registrationOrderNotSpecificity(t *testing.T) {
	t.Parallel()

	// Registered least-specific-first: the generic route shadows the
	// specific one. Callers own the ordering.
	r := relay.NewRouter()
	r.Get("/items/:id", noopHandler, relay.WithMeta("name", "generic"))
	r.Get("/items/special", noopHandler, relay.WithMeta("name", "special"))

	m, err := r.Dispatch(http.MethodGet, "/items/special")
	require.NoError(t, err)
	assert.Equal(t, "generic", m.Meta["name"])
}

func TestRouter_Dispatch_methodMismatch(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/thing", noopHandler)

	_, err := r.Dispatch(http.MethodPost, "/thing")
	assert.ErrorIs(t, err, relay.ErrRouteNotFound)
}

func TestRouter_Dispatch_anchored(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/api", noopHandler)

	for _, path := range []string{"/api/extra", "/prefix/api", "/ap"} {
		_, err := r.Dispatch(http.MethodGet, path)
		assert.ErrorIs(t, err, relay.ErrRouteNotFound, "path %q", path)
	}
}

func TestRouter_Dispatch_literalEscaping(t *testing.T) {
	t.Parallel()

	// Regexp metacharacters in literal segments match verbatim.
	r := relay.NewRouter()
	r.Get("/v1.0/data", noopHandler)

	_, err := r.Dispatch(http.MethodGet, "/v1x0/data")
	assert.ErrorIs(t, err, relay.ErrRouteNotFound)

	_, err = r.Dispatch(http.MethodGet, "/v1.0/data")
	assert.NoError(t, err)
}

func TestRouter_Register_badPattern(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	assert.Panics(t, func() { r.Get("no-leading-slash", noopHandler) })
	assert.Panics(t, func() { r.Get("/users/:", noopHandler) })
	assert.Panics(t, func() { r.Get("/files/{name:path}/more", noopHandler) })
}

func TestRouter_Register_afterFreeze(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/ok", noopHandler)
	relay.New(r)

	assert.Panics(t, func() { r.Get("/late", noopHandler) })
}

func TestRouter_Methods(t *testing.T) {
	t.Parallel()

	r := relay.NewRouter()
	r.Get("/x", noopHandler)
	r.Post("/x", noopHandler)
	r.Put("/x", noopHandler)
	r.Patch("/x", noopHandler)
	r.Delete("/x", noopHandler)

	for _, method := range []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
	} {
		_, err := r.Dispatch(method, "/x")
		assert.NoError(t, err, method)
	}
}
