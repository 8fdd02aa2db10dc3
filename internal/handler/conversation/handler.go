package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	conversationModel "github.com/pitchloop/sales-trainer/internal/model/conversation"
	conversationService "github.com/pitchloop/sales-trainer/internal/service/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/reply"
	"github.com/pitchloop/sales-trainer/internal/service/session"
	"github.com/pitchloop/sales-trainer/internal/service/validation"
	"github.com/pitchloop/sales-trainer/pkg/utils"
)

// Handler exposes the practice-call session endpoints.
type Handler struct {
	conversations *conversationService.Service
	registry      *session.Registry
	generator     *reply.Generator
}

// New creates the conversation handler. registry and generator are used by
// the SSE stream path, which talks to them directly.
func New(conversations *conversationService.Service, registry *session.Registry, generator *reply.Generator) *Handler {
	return &Handler{conversations: conversations, registry: registry, generator: generator}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/conversations", h.handleStart)
	r.Post("/conversations/{sessionID}/messages", h.handleSend)
	r.Get("/conversations/{sessionID}", h.handleGet)
	r.Delete("/conversations/{sessionID}", h.handleEnd)
	r.Get("/conversations/{sessionID}/stream", h.handleStream)
}

// handleStart opens a new practice call from persona text.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		InitialText string `json:"initialText"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.conversations.Start(r.Context(), payload.InitialText)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondData(w, http.StatusOK, result)
}

// handleSend appends the seller's message and returns the buyer's reply.
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.conversations.Send(r.Context(), sessionID, payload.Message)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondData(w, http.StatusOK, result)
}

// handleGet returns the current transcript.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	msgs, err := h.conversations.Conversation(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondData(w, http.StatusOK, map[string]any{"conversation": msgs})
}

// handleEnd removes the session; the memory thread persists.
func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.conversations.End(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondData(w, http.StatusOK, map[string]string{"message": "Session ended successfully"})
}

// respondServiceError maps orchestrator failures onto the status policy.
func respondServiceError(w http.ResponseWriter, err error) {
	var verr *conversationService.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.RespondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}

// StreamResponse is one SSE frame of a streamed reply.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleStream delivers the buyer's reply incrementally over SSE. The
// accumulated text is written back to the thread once streaming completes,
// mirroring the non-streaming send path.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	if err := h.streamReply(r.Context(), w, flusher, sessionID, userMessage); err != nil {
		log.Printf("[stream] error for session=%s: %v", sessionID, err)
	}
}

func (h *Handler) streamReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID, userMessage string) error {
	v := validation.ValidateMessage(userMessage)
	if !v.OK {
		h.sendSSEError(w, flusher, (&conversationService.ValidationError{Reasons: v.Errors}).Error())
		return nil
	}

	threadRef, ok := h.registry.ThreadRef(sessionID)
	if !ok {
		h.sendSSEError(w, flusher, "Session not found")
		return nil
	}

	if _, err := h.registry.AddMessage(ctx, sessionID, conversationModel.RoleUser, v.Sanitized); err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to save message: %v", err))
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "start", SessionID: sessionID})

	persona := h.registry.GetPersona(sessionID)
	stream, err := h.generator.Stream(ctx, threadRef, persona)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("AI generation failed: %v", err))
		return err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			h.sendSSEError(w, flusher, fmt.Sprintf("AI generation failed: %v", recvErr))
			return recvErr
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.sendSSE(w, flusher, StreamResponse{Event: "delta", SessionID: sessionID, Content: chunk.Content})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("AI generation failed: %v", err))
		return err
	}

	h.generator.SaveAssistantTurn(ctx, threadRef, response.Content)

	h.sendSSE(w, flusher, StreamResponse{Event: "message", SessionID: sessionID, Content: response.Content})
	h.sendSSE(w, flusher, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})

	log.Printf("[stream] completed response for session=%s", sessionID)
	return nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{Event: "error", Error: errorMsg})
}
