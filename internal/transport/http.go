// Package transport maps the watcher command surface and the broadcast
// stream onto HTTP. It is deliberately thin: every operation delegates to
// the registry or broadcaster without adding semantics.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/registry"
	"github.com/filesentry/filesentry/pkg/sentry"
	"github.com/filesentry/filesentry/pkg/types"
	"github.com/filesentry/filesentry/pkg/watcher"
)

// Server exposes the watcher core over HTTP
type Server struct {
	core   *sentry.Sentry
	logger logger.Logger
}

// NewServer creates the HTTP surface for a running core
func NewServer(core *sentry.Sentry, log logger.Logger) *Server {
	return &Server{core: core, logger: log}
}

// Handler returns the routing table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /watchers", s.handleCreate)
	mux.HandleFunc("GET /watchers", s.handleList)
	mux.HandleFunc("GET /watchers/{id}", s.handleStatus)
	mux.HandleFunc("POST /watchers/{id}/start", s.handleStart)
	mux.HandleFunc("POST /watchers/{id}/stop", s.handleStop)
	mux.HandleFunc("DELETE /watchers/{id}", s.handleRemove)
	mux.HandleFunc("GET /watchers/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var cfg types.WatcherConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, err := s.core.Registry().Create(cfg)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	states := s.core.Registry().List()
	out := make(map[string]types.WatcherState, len(states))
	for _, st := range states {
		out[st.ID()] = st
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"watchers": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.core.Registry().Status(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	state, err := s.core.Registry().Start(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	state, err := s.core.Registry().Stop(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.core.Registry().Remove(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"watchers":    s.core.Registry().Len(),
		"subscribers": s.core.Broadcaster().SubscriberCount(),
	})
}

// statusFor maps typed core errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, registry.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, watcher.ErrPathNotFound):
		return http.StatusBadRequest
	case errors.Is(err, watcher.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, watcher.ErrEngineFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
