package instruction

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	conversationModel "github.com/pitchloop/sales-trainer/internal/model/conversation"
	conversationService "github.com/pitchloop/sales-trainer/internal/service/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/reply"
	"github.com/pitchloop/sales-trainer/pkg/utils"
)

// instructionPrompt is the generic system turn of the first-generation
// flow, which predates per-session personas.
const instructionPrompt = "These are the instructions for the AI."

// Handler exposes the two legacy one-shot surfaces. They share the
// single-shot generation path but keep separate request/response shapes:
// /api/process-text speaks the envelope, /instructions/openai keeps its
// original bare format.
type Handler struct {
	conversations *conversationService.Service
	generator     *reply.Generator
}

// New creates the legacy handler.
func New(conversations *conversationService.Service, generator *reply.Generator) *Handler {
	return &Handler{conversations: conversations, generator: generator}
}

// RegisterAPIRoutes mounts the enveloped legacy route under /api.
func (h *Handler) RegisterAPIRoutes(r chi.Router) {
	r.Post("/process-text", h.handleProcessText)
}

// RegisterLegacyRoutes mounts the first-generation surface at the root.
func (h *Handler) RegisterLegacyRoutes(r chi.Router) {
	r.Post("/instructions/openai", h.handleInstructionOpenAI)
}

// handleProcessText validates the text and returns a one-shot reply.
// Validation and generation failures both map to 400 on this path.
func (h *Handler) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.conversations.ProcessInitialText(r.Context(), payload.Text)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondData(w, http.StatusOK, result)
}

// handleInstructionOpenAI accepts either a raw instruction string or a
// full message array and returns the completion without the envelope,
// exactly as the first-generation clients expect.
func (h *Handler) handleInstructionOpenAI(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text json.RawMessage `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload.Text) == 0 {
		respondBare(w, http.StatusBadRequest, map[string]string{"error": "Text required"})
		return
	}

	messages, ok := decodeInstructionText(payload.Text)
	if !ok {
		respondBare(w, http.StatusBadRequest, map[string]string{"error": "Text required"})
		return
	}

	text, err := h.generator.GenerateFromMessages(r.Context(), messages)
	if err != nil {
		respondBare(w, http.StatusInternalServerError, map[string]string{
			"error":   "OpenAI request failed",
			"details": err.Error(),
		})
		return
	}

	respondBare(w, http.StatusOK, map[string]any{
		"aiResponse": map[string]string{"text": text},
	})
}

// decodeInstructionText resolves the string-or-array request shape.
func decodeInstructionText(raw json.RawMessage) ([]conversationModel.Message, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return nil, false
		}
		return []conversationModel.Message{
			{Role: conversationModel.RoleSystem, Content: instructionPrompt},
			{Role: conversationModel.RoleUser, Content: text},
		}, true
	}

	var messages []conversationModel.Message
	if err := json.Unmarshal(raw, &messages); err == nil && len(messages) > 0 {
		return messages, true
	}
	return nil, false
}

func respondBare(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
