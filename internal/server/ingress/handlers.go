package ingress

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/server/auth"
	"github.com/dmitrijs2005/dropvault/internal/server/snapshot"
)

type authRequest struct {
	OperatorID string `json:"operatorId"`
	Secret     string `json:"secret"`
}

type authResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.operatorSecretHash), []byte(req.Secret)); err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	operatorID := req.OperatorID
	if operatorID == "" {
		operatorID = "operator"
	}

	token, err := auth.GenerateToken(operatorID, s.secretKey, s.tokenValidity)
	if err != nil {
		s.logger.Error(r.Context(), "token generation failed", "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, authResponse{Token: token})
}

type eventRequest struct {
	Kind        string    `json:"kind"`
	PayloadCode string    `json:"payloadCode"`
	RequesterID string    `json:"requesterId"`
	ChannelID   string    `json:"channelId"`
	Timestamp   time.Time `json:"timestamp"`
}

type accessResponse struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	NewCycle  bool      `json:"newCycle"`
	ExpiresAt time.Time `json:"expiresAt"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
}

// handleEvent processes one inbound requester interaction. Only access
// events arrive here; management actions have dedicated routes.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	// Kind is matched case-insensitively: senders spell it both "access"
	// and "Access".
	if !strings.EqualFold(req.Kind, "access") {
		s.writeError(w, http.StatusBadRequest, "unsupported event kind")
		return
	}
	if req.PayloadCode == "" || req.RequesterID == "" || req.ChannelID == "" {
		s.writeError(w, http.StatusBadRequest, "payloadCode, requesterId and channelId are required")
		return
	}

	at := req.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	result, err := s.delivery.HandleAccess(r.Context(), req.PayloadCode, req.RequesterID, req.ChannelID, at)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorNotFound):
			s.writeError(w, http.StatusNotFound, "unknown code")
		case errors.Is(err, common.ErrDurabilityGap):
			s.logger.Error(r.Context(), "revocation scheduling failed", "code", req.PayloadCode, "error", err.Error())
			s.writeError(w, http.StatusInternalServerError, "delivery completed but revocation scheduling failed")
		default:
			s.logger.Error(r.Context(), "access handling failed", "code", req.PayloadCode, "error", err.Error())
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, accessResponse{
		Code:      result.Payload.Code,
		Name:      result.Payload.Name,
		NewCycle:  result.IsNewCycle,
		ExpiresAt: result.ExpiresAt,
		Delivered: result.Delivered,
		Failed:    result.Failed,
	})
}

type createPayloadRequest struct {
	Name        string   `json:"name"`
	ContentRefs []string `json:"contentRefs"`
}

func (s *Server) handleCreatePayload(w http.ResponseWriter, r *http.Request) {
	var req createPayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	payload, err := s.registry.Create(r.Context(), req.Name, req.ContentRefs)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error(r.Context(), "payload creation failed", "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.snapshotRegistry(r)
	s.writeJSON(w, http.StatusCreated, payload)
}

type payloadStatusResponse struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ContentRefs []string  `json:"contentRefs"`
	CreatedAt   time.Time `json:"createdAt"`
	AccessCount int64     `json:"accessCount"`
}

func (s *Server) handleListPayloads(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.registry.Status(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "payload listing failed", "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result := make([]payloadStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		result = append(result, payloadStatusResponse{
			Code:        st.Payload.Code,
			Name:        st.Payload.Name,
			ContentRefs: st.Payload.ContentRefs,
			CreatedAt:   st.Payload.CreatedAt,
			AccessCount: st.AccessCount,
		})
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeletePayload(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	if err := s.registry.Delete(r.Context(), code); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown code")
			return
		}
		s.logger.Error(r.Context(), "payload deletion failed", "code", code, "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.snapshotRegistry(r)
	w.WriteHeader(http.StatusNoContent)
}

type pendingTaskResponse struct {
	ID               string    `json:"id"`
	SourcePayload    string    `json:"sourcePayload"`
	TargetChannel    string    `json:"targetChannel"`
	DueAt            time.Time `json:"dueAt"`
	MinutesRemaining int       `json:"minutesRemaining"`
	Overdue          bool      `json:"overdue"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	pending, err := s.purge.PendingTasks(r.Context(), s.now())
	if err != nil {
		s.logger.Error(r.Context(), "task listing failed", "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	result := make([]pendingTaskResponse, 0, len(pending))
	for _, p := range pending {
		result = append(result, pendingTaskResponse{
			ID:               p.Task.ID,
			SourcePayload:    p.Task.SourcePayloadCode,
			TargetChannel:    p.Task.TargetChannel,
			DueAt:            p.Task.DueAt,
			MinutesRemaining: p.MinutesRemaining,
			Overdue:          p.Overdue,
		})
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshot.SnapshotAll(r.Context()); err != nil {
		s.logger.Error(r.Context(), "snapshot failed", "error", err.Error())
		s.writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restoreResponse struct {
	Restored int `json:"restored"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	restored := s.snapshot.RestoreAll(r.Context())
	s.writeJSON(w, http.StatusOK, restoreResponse{Restored: restored})
}

// snapshotRegistry pushes the registry table to the blob sink after a
// mutation. Failure never fails the request.
func (s *Server) snapshotRegistry(r *http.Request) {
	if err := s.snapshot.Snapshot(r.Context(), snapshot.TableRegistry); err != nil {
		s.logger.Warn(r.Context(), "registry snapshot failed", "error", err.Error())
	}
}
