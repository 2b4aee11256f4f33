// Command sample demonstrates the relay request core behind a minimal
// net/http binding.
//
// Run:
//
//	go run ./cmd/sample
//
// Dump the route table:
//
//	go run ./cmd/sample -routes
//
// Then explore:
//
//	GET    http://localhost:8080/notes              — list notes
//	POST   http://localhost:8080/notes              — create a note (JSON body)
//	GET    http://localhost:8080/notes/{id}         — get a note
//	DELETE http://localhost:8080/notes/{id}         — delete a note
//	GET    http://localhost:8080/files/a/b/c.txt    — wildcard path capture
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"

	"github.com/bjaus/relay"
)

func main() {
	routesFlag := flag.Bool("routes", false, "Print the route table as YAML and exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	store := &noteStore{next: 1, notes: map[string]string{"1": "hello"}}
	router := newRouter(store)

	if *routesFlag {
		if err := router.WriteRoutesYAML(os.Stdout); err != nil {
			slog.Error("route dump failed", "err", err)
			os.Exit(1)
		}
		return
	}

	providers := relay.NewProviders()
	providers.Register("store", func(ctx context.Context) (any, func(context.Context) error, error) {
		// A request-scoped session over the shared store. The closer runs
		// only after the request's background tasks finish.
		session := store.session()
		return session, func(context.Context) error {
			session.close()
			return nil
		}, nil
	})

	pipeline := relay.New(router,
		relay.WithProviders(providers),
		relay.WithScheduler(relay.NewScheduler(relay.WithMaxConcurrent(64))),
		relay.WithTaskRate(100, 10),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := &http.Server{Addr: ":8080", Handler: bind(pipeline)}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background()) //nolint:errcheck // best effort on exit
	}()

	slog.Info("starting server", "addr", ":8080")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
	}
	slog.Info("server stopped")
}

func newRouter(store *noteStore) *relay.Router {
	r := relay.NewRouter()

	r.Get("/notes", listNotes, relay.WithDeps("store"), relay.WithMeta("summary", "List notes"))
	r.Post("/notes", createNote, relay.WithDeps("store"))
	r.Get("/notes/:id", getNote, relay.WithDeps("store"))
	r.Delete("/notes/:id", deleteNote, relay.WithDeps("store"))
	r.Get("/files/{name:path}", getFile)

	return r
}

func listNotes(c *relay.Ctx) (*relay.Response, error) {
	s := mustSession(c)
	return relay.NewResponse(s.list(), http.StatusOK), nil
}

func createNote(c *relay.Ctx) (*relay.Response, error) {
	body, ok := c.Body().(map[string]any)
	if !ok {
		return nil, relay.Error(http.StatusBadRequest, "expected a JSON object")
	}
	text, _ := body["text"].(string)
	if text == "" {
		return nil, relay.Error(http.StatusBadRequest, "text is required")
	}

	s := mustSession(c)
	id := s.create(text)

	// Audit after the response is out; the session is still open.
	c.Tasks().Add(func(ctx context.Context, args relay.Args) error {
		slog.Info("note created", "id", args.Arg(0))
		return nil
	}, id)

	return relay.NewResponse(map[string]string{"id": id}, http.StatusCreated), nil
}

func getNote(c *relay.Ctx) (*relay.Response, error) {
	s := mustSession(c)
	text, ok := s.get(c.Param("id"))
	if !ok {
		return nil, relay.Errorf(http.StatusNotFound, "note %s not found", c.Param("id"))
	}
	return relay.NewResponse(map[string]string{"id": c.Param("id"), "text": text}, http.StatusOK), nil
}

func deleteNote(c *relay.Ctx) (*relay.Response, error) {
	s := mustSession(c)
	s.delete(c.Param("id"))
	return relay.NewResponse(nil, http.StatusNoContent), nil
}

func getFile(c *relay.Ctx) (*relay.Response, error) {
	return relay.NewResponse(map[string]string{"name": c.Param("name")}, http.StatusOK), nil
}

func mustSession(c *relay.Ctx) *session {
	v, ok := c.Dep("store")
	if !ok {
		panic("route registered without the store dependency")
	}
	return v.(*session)
}

// bind adapts the pipeline to net/http. The wire work — body parsing, query
// splitting, response encoding — happens here, outside the core.
func bind(p *relay.Pipeline) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body any
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "malformed JSON body", http.StatusBadRequest)
				return
			}
		}

		resp := p.Execute(r.Context(), &relay.IncomingRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header,
			Body:   body,
		})

		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		if resp.Body == nil {
			w.WriteHeader(resp.Status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.Status)
		json.NewEncoder(w).Encode(resp.Body) //nolint:errcheck // best effort after WriteHeader
	})
}

// noteStore is a process-wide store; sessions are the request-scoped view.
type noteStore struct {
	mu    sync.Mutex
	next  int
	notes map[string]string
}

func (s *noteStore) session() *session { return &session{store: s} }

type session struct {
	store  *noteStore
	closed bool
}

func (s *session) close() { s.closed = true }

func (s *session) list() []map[string]string {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	out := make([]map[string]string, 0, len(s.store.notes))
	for id, text := range s.store.notes {
		out = append(out, map[string]string{"id": id, "text": text})
	}
	return out
}

func (s *session) create(text string) string {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.next++
	id := fmt.Sprintf("%d", s.store.next)
	s.store.notes[id] = text
	return id
}

func (s *session) get(id string) (string, bool) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	text, ok := s.store.notes[id]
	return text, ok
}

func (s *session) delete(id string) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	delete(s.store.notes, id)
}
