// Package relay is a transport-agnostic request-processing core for web
// services. Given a matched route and a request's already-parsed input, it
// resolves request-scoped resources, runs the handler (which may fan out
// concurrent sub-operations), executes deferred background tasks after the
// response is finalized, and then releases resources — in that order, always.
//
// The core pieces compose through a Pipeline:
//
//	r := relay.NewRouter()
//	r.Get("/users/:id", getUser, relay.WithDeps("db"))
//	r.Get("/files/{name:path}", getFile)
//
//	p := relay.New(r, relay.WithProviders(providers))
//	resp := p.Execute(ctx, &relay.IncomingRequest{Method: "GET", Path: "/users/42"})
//
// Handlers never see the wire. They receive a Ctx with path parameters,
// resolved dependencies, a spawn primitive for structured concurrency, and a
// background-task queue, and they return a Response value:
//
//	func getUser(c *relay.Ctx) (*relay.Response, error) {
//	    db, _ := c.Dep("db")
//	    c.Tasks().Add(auditLookup, c.Param("id"))
//	    ...
//	    return relay.NewResponse(user, http.StatusOK), nil
//	}
//
// Background tasks run only after the response is produced, dependency
// cleanup runs only after every background task has finished, and a failing
// task never affects its siblings or the already-sent response.
//
// HTTP parsing, TLS, validation, and serialization are the transport's job;
// cmd/sample shows a minimal net/http binding.
package relay
