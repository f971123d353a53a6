package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/conveyorci/conveyor/internal/db"
	"github.com/conveyorci/conveyor/internal/store"
)

// Server is the read-only status API server.
type Server struct {
	store *store.Store
	db    *db.DB
	port  int
	log   *logrus.Logger
}

// NewServer creates a Server. A nil logger disables request logging.
func NewServer(st *store.Store, database *db.DB, port int, log *logrus.Logger) *Server {
	return &Server{store: st, db: database, port: port, log: log}
}

// Handler returns the route table. Split out from Start for testing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/runs", s.handleRunList)
	mux.HandleFunc("/api/runs/", s.routeRun)
	mux.HandleFunc("/api/stats/pass-rates", s.handlePassRates)
	return s.logged(mux)
}

// Start registers routes and starts listening.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	if s.log != nil {
		s.log.WithField("addr", addr).Info("status API listening")
	}
	return http.ListenAndServe(addr, s.Handler())
}

// logged wraps the handler with per-request logging.
func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).Round(time.Microsecond).String(),
			}).Info("request")
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRunList serves GET /api/runs with an optional ?status= filter.
func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runs, err := s.store.List(r.URL.Query().Get("status"))
	if err != nil {
		s.serverError(w, err)
		return
	}
	if runs == nil {
		runs = []store.RunState{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// routeRun dispatches /api/runs/{id} and /api/runs/{id}/events.
func (s *Server) routeRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleRunDetail(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "events":
		s.handleRunEvents(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "results":
		s.handleRunResults(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request, id string) {
	rs, err := s.store.Get(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request, id string) {
	events, err := s.db.GetRunEvents(id)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if events == nil {
		events = []db.RunEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleRunResults(w http.ResponseWriter, r *http.Request, id string) {
	results, err := s.db.GetInstanceResults(id)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if results == nil {
		results = []db.InstanceResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handlePassRates serves the per-axis test pass rate aggregation.
func (s *Server) handlePassRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rates, err := s.db.PassRateByAxis()
	if err != nil {
		s.serverError(w, err)
		return
	}
	if rates == nil {
		rates = []db.AxisPassRate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	if s.log != nil {
		s.log.WithError(err).Error("request failed")
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
