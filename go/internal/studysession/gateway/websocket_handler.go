package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcdev12/studysprint/go/internal/models"
	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
	"github.com/rs/zerolog/log"
)

// TokenVerifier authenticates an HTTP request and returns the user id.
type TokenVerifier interface {
	UserFromRequest(r *http.Request) (string, error)
}

// SessionReader is the read side the gateway serves over REST.
type SessionReader interface {
	Authorizer
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.SessionSnapshot, error)
	ListSharedCards(ctx context.Context, sessionID uuid.UUID) ([]models.SharedCard, error)
}

// WebSocketHandler handles WebSocket upgrades and the session REST reads
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          TokenVerifier
	sessions          SessionReader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, verifier TokenVerifier, sessions SessionReader) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
		sessions:          sessions,
	}
}

// HandleSessionConnection upgrades an authenticated request. Rooms are
// joined afterwards with joinSession messages.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.UserFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		// The upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleGetSnapshot handles GET /api/sessions/{sessionID}/snapshot
func (h *WebSocketHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	snapshot, err := h.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to get session snapshot")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// HandleGetSharedCards handles GET /api/sessions/{sessionID}/cards
func (h *WebSocketHandler) HandleGetSharedCards(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	cards, err := h.sessions.ListSharedCards(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to list shared cards")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket and REST routes on the router
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws/sessions", h.HandleSessionConnection)
	router.HandleFunc("/ws/stats", h.HandleConnectionStats).Methods(http.MethodGet)

	api := router.PathPrefix("/api/sessions/{sessionID}").Subrouter()
	api.HandleFunc("/snapshot", h.HandleGetSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/cards", h.HandleGetSharedCards).Methods(http.MethodGet)
}

func (h *WebSocketHandler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := h.verifier.UserFromRequest(r)
	if err != nil {
		writeError(w, err)
		return uuid.Nil, false
	}
	sessionID, err := uuid.Parse(mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "invalid session id"))
		return uuid.Nil, false
	}
	if err := h.sessions.CanJoin(r.Context(), sessionID, userID); err != nil {
		writeError(w, err)
		return uuid.Nil, false
	}
	return sessionID, true
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Code: string(apperrors.CodeUnknown), Message: "internal error"}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		body = errorBody{Code: string(domainErr.Code), Message: domainErr.Message, Details: domainErr.Metadata}
	}
	status := statusFor(apperrors.KindOf(err))
	if apperrors.CodeOf(err) == apperrors.CodeUnauthenticated {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, body)
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuthorization:
		return http.StatusForbidden
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConnectivity:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
