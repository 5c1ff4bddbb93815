package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/agents"
	"telcomax.com/billing-assistant/internal/memory"
	"telcomax.com/billing-assistant/internal/orchestrator"
)

type APIHandler struct {
	orchestrator *orchestrator.Orchestrator
	memory       *memory.SessionMemory
	logger       *zap.Logger
}

func NewAPIHandler(orch *orchestrator.Orchestrator, mem *memory.SessionMemory, logger *zap.Logger) *APIHandler {
	return &APIHandler{orchestrator: orch, memory: mem, logger: logger}
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

type PostMessageResponse struct {
	SessionID string            `json:"session_id"`
	State     string            `json:"state"`
	Response  string            `json:"response"`
	Responder string            `json:"responder,omitempty"`
	Citations []agents.Citation `json:"citations,omitempty"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.HandleTurn(r.Context(), sessionID, req.Message)
	if err != nil {
		h.logger.Error("failed to handle turn", zap.String("session_id", sessionID), zap.Error(err))
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PostMessageResponse{
		SessionID: sessionID,
		State:     string(result.State),
		Response:  result.Response,
		Responder: result.Responder,
		Citations: result.Citations,
	})
}

type SessionEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type SessionTurn struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Responder string `json:"responder,omitempty"`
}

type GetSessionResponse struct {
	SessionID string          `json:"session_id"`
	Turns     []SessionTurn   `json:"turns"`
	Entities  []SessionEntity `json:"entities"`
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := h.memory.GetOrCreate(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load session", zap.String("session_id", sessionID), zap.Error(err))
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}

	resp := GetSessionResponse{
		SessionID: session.ID,
		Turns:     make([]SessionTurn, 0, len(session.Turns)),
		Entities:  make([]SessionEntity, 0, len(session.Entities)),
	}
	for _, turn := range session.Turns {
		resp.Turns = append(resp.Turns, SessionTurn{
			Role:      string(turn.Role),
			Text:      turn.Text,
			Responder: turn.Responder,
		})
	}
	for _, entity := range session.Entities {
		resp.Entities = append(resp.Entities, SessionEntity{
			Type:       string(entity.Type),
			Value:      entity.Value,
			Confidence: entity.Confidence,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
