package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
)

// Server exposes health probes and a read-only view of the ranking.
type Server struct {
	server *http.Server
	ledger *ledger.Ledger
	ready  atomic.Bool
}

type scoreItem struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type scoresResponse struct {
	Capacity int         `json:"capacity"`
	Entries  []scoreItem `json:"entries"`
}

func NewServer(addr string, l *ledger.Ledger) *Server {
	s := &Server{ledger: l}

	// Default to not ready until explicitly set
	s.ready.Store(false)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes returns the HTTP handler; tests drive it through httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/scores", s.handleScores)
	return r
}

// Start serves on a background goroutine. ln may be nil, in which case
// the configured address is used.
func (s *Server) Start(ln net.Listener) {
	go func() {
		var err error
		if ln != nil {
			logger.Info("Health server listening", "addr", ln.Addr().String())
			err = s.server.Serve(ln)
		} else {
			logger.Info("Health server listening", "addr", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
	}
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	entries := s.ledger.Entries()
	resp := scoresResponse{
		Capacity: s.ledger.Capacity(),
		Entries:  make([]scoreItem, 0, len(entries)),
	}
	for i, e := range entries {
		resp.Entries = append(resp.Entries, scoreItem{Rank: i + 1, Name: e.Name, Score: e.Score})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to encode scores", "error", err)
	}
}
