// Package httpapi serves spec.md §6's HTTP endpoint table one-to-one
// against internal/provisioner: request parsing, routing, and JSON
// serialization only — every mutation still goes through the Provisioner's
// own single-writer lock.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/provisioner"
)

// Server is the gorilla/mux router wiring spec.md §6's endpoint table onto
// a Provisioner.
type Server struct {
	router *mux.Router
	p      *provisioner.Provisioner
	log    *zap.Logger
}

func New(p *provisioner.Provisioner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{router: mux.NewRouter(), p: p, log: log}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)

	s.router.HandleFunc("/servers", s.listServers).Methods(http.MethodGet)
	s.router.HandleFunc("/servers", s.createServer).Methods(http.MethodPost)
	s.router.HandleFunc("/servers/{id}", s.getServer).Methods(http.MethodGet)
	s.router.HandleFunc("/servers/{id}", s.deleteServer).Methods(http.MethodDelete)
	s.router.HandleFunc("/servers/{id}/pause", s.pauseServer).Methods(http.MethodPost)
	s.router.HandleFunc("/servers/{id}/resume", s.resumeServer).Methods(http.MethodPost)
	s.router.HandleFunc("/servers/{id}/stop", s.stopServer).Methods(http.MethodPost)
	s.router.HandleFunc("/servers/{id}/pin", s.pinServer).Methods(http.MethodPost)
	s.router.HandleFunc("/servers/{id}/unpin", s.unpinServer).Methods(http.MethodPost)
	s.router.HandleFunc("/servers/{id}/snapshot", s.snapshotServer).Methods(http.MethodPost)

	s.router.HandleFunc("/snapshots", s.listSnapshots).Methods(http.MethodGet)
	s.router.HandleFunc("/snapshots/{id}", s.deleteSnapshot).Methods(http.MethodDelete)
}

type requestIDKey struct{}

// requestIDMiddleware stamps every request with a correlation id, echoed
// back in the X-Request-Id response header and included in every log line
// for that request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Sugar().Warnw("httpapi: encode response", "err", err)
	}
}

// writeError maps the spec.md §7 error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var cfgErr *cloud.ConfigError
	var notFound *cloud.NotFound
	var conflict *cloud.Conflict
	var remoteFailure *cloud.RemoteFailure
	switch {
	case errors.As(err, &cfgErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &conflict):
		status = http.StatusConflict
	case errors.As(err, &remoteFailure):
		status = http.StatusBadGateway
	}
	s.log.Sugar().Warnw("httpapi: request failed",
		"request_id", requestID(r.Context()), "path", r.URL.Path, "status", status, "err", err)
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func idParam(r *http.Request) string {
	return mux.Vars(r)["id"]
}
