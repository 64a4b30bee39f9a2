// Package ingress exposes the HTTP webhook surface: requester access events,
// operator authentication, and the management routes. Every inbound request
// first drains due purge tasks, so revocation needs no background timer.
package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/delivery"
	"github.com/dmitrijs2005/dropvault/internal/server/purge"
	"github.com/dmitrijs2005/dropvault/internal/server/registry"
	"github.com/dmitrijs2005/dropvault/internal/server/snapshot"
)

type Server struct {
	delivery           *delivery.Service
	registry           *registry.Service
	purge              *purge.Service
	snapshot           *snapshot.Service
	logger             logging.Logger
	secretKey          []byte
	operatorSecretHash string
	tokenValidity      time.Duration
	now                func() time.Time
}

func NewServer(dl *delivery.Service, reg *registry.Service, pg *purge.Service,
	sn *snapshot.Service, logger logging.Logger,
	secretKey []byte, operatorSecretHash string, tokenValidity time.Duration) *Server {
	return &Server{
		delivery:           dl,
		registry:           reg,
		purge:              pg,
		snapshot:           sn,
		logger:             logger.With("module", "ingress"),
		secretKey:          secretKey,
		operatorSecretHash: operatorSecretHash,
		tokenValidity:      tokenValidity,
		now:                time.Now,
	}
}

// Router builds the route table. The drain middleware wraps everything;
// management routes additionally require an operator token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.drainMiddleware)

	r.HandleFunc("/auth", s.handleAuth).Methods(http.MethodPost)
	r.HandleFunc("/events", s.handleEvent).Methods(http.MethodPost)

	ops := r.NewRoute().Subrouter()
	ops.Use(s.operatorMiddleware)
	ops.HandleFunc("/payloads", s.handleCreatePayload).Methods(http.MethodPost)
	ops.HandleFunc("/payloads", s.handleListPayloads).Methods(http.MethodGet)
	ops.HandleFunc("/payloads/{code}", s.handleDeletePayload).Methods(http.MethodDelete)
	ops.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	ops.HandleFunc("/admin/snapshot", s.handleSnapshot).Methods(http.MethodPost)
	ops.HandleFunc("/admin/restore", s.handleRestore).Methods(http.MethodPost)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(context.Background(), "response encoding failed", "error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
