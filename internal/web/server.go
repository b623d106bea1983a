// Package web provides an HTTP status server for the hydration helper.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/grdaneault/hydration-helper/internal/logic"
	"github.com/grdaneault/hydration-helper/internal/status"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// History reads stored events. *store.Store implements it.
type History interface {
	RecentEvents(ctx context.Context, limit int) ([]logic.Event, error)
	ConsumedSince(ctx context.Context, since time.Time) (int, error)
	ReadingCount(ctx context.Context) (int, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    History // nil when no store is configured
	log        *zap.Logger
}

// New creates a Server that reads state from the given tracker.
// history may be nil.
func New(addr string, tracker *status.Tracker, history History, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{tracker: tracker, history: history, log: log}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/history.json", s.handleHistory)

	return r
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn("render index", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history store not configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx := r.Context()
	events, err := s.history.RecentEvents(ctx, limit)
	if err != nil {
		s.log.Error("read history", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	snap := s.tracker.Snapshot()
	y, m, d := snap.Now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, snap.Now.Location())
	today, err := s.history.ConsumedSince(ctx, midnight)
	if err != nil {
		s.log.Error("read consumption", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	readings, err := s.history.ReadingCount(ctx)
	if err != nil {
		s.log.Error("count readings", zap.Error(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(formatHistory(events, today, readings))
}
