package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/reply"
	"github.com/pitchloop/sales-trainer/internal/service/session"
	"github.com/pitchloop/sales-trainer/internal/service/validation"
)

// legacyInstruction is the generic system turn for the session-less
// one-shot flow, predating personas.
const legacyInstruction = "These are the instructions for the AI."

// ValidationError reports rejected caller input with every applicable
// reason, not just the first.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, ", ")
}

// Service coordinates validation, the session registry and the reply
// generator into the three conversation operations.
type Service struct {
	registry  *session.Registry
	generator *reply.Generator
}

// NewService wires the orchestrator.
func NewService(registry *session.Registry, generator *reply.Generator) *Service {
	return &Service{registry: registry, generator: generator}
}

// StartResult is the response of Start. Err carries an absorbed generation
// failure: the session was already durably created, so the caller gets it
// either way.
type StartResult struct {
	SessionID    string                 `json:"sessionId"`
	Conversation []conversation.Message `json:"conversation"`
	AIResponse   string                 `json:"aiResponse,omitempty"`
	Err          string                 `json:"error,omitempty"`
}

// SendResult is the response of Send.
type SendResult struct {
	Conversation []conversation.Message `json:"conversation"`
	AIResponse   string                 `json:"aiResponse"`
	UserMessage  string                 `json:"userMessage"`
}

// TextResult is the response of the legacy one-shot flow.
type TextResult struct {
	OriginalText string `json:"originalText"`
	AIResponse   string `json:"aiResponse"`
}

// Start validates the persona text, creates a session bound to a fresh
// thread, binds the persona and asks the buyer for an opening line. A
// generation failure is absorbed into the result rather than returned: the
// caller always gets what exists.
func (s *Service) Start(ctx context.Context, initialText string) (StartResult, error) {
	v := validation.ValidateTextInput(initialText)
	if !v.OK {
		return StartResult{}, &ValidationError{Reasons: v.Errors}
	}

	sess, _, err := s.registry.CreateSession(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to create session: %w", err)
	}
	s.registry.SetPersona(sess.ID, v.Sanitized)

	generated, genErr := s.generator.Generate(ctx, sess.ThreadRef, v.Sanitized)
	s.logWarnings(sess.ID, generated.Warnings)

	msgs, err := s.registry.GetConversation(ctx, sess.ID)
	if err != nil {
		log.Printf("[conversation] could not re-fetch conversation for session=%s: %v", sess.ID, err)
	}

	result := StartResult{SessionID: sess.ID, Conversation: msgs}
	if genErr != nil {
		log.Printf("[conversation] start generation failed for session=%s: %v", sess.ID, genErr)
		result.Err = "AI response failed: " + genErr.Error()
		return result, nil
	}

	result.AIResponse = generated.Text
	return result, nil
}

// Send validates the seller's message, appends it to the session thread
// and generates the buyer's reply with the persona bound at creation.
// Unlike Start, a generation failure here propagates to the caller.
func (s *Service) Send(ctx context.Context, sessionID, message string) (SendResult, error) {
	v := validation.ValidateMessage(message)
	if !v.OK {
		return SendResult{}, &ValidationError{Reasons: v.Errors}
	}

	if _, err := s.registry.AddMessage(ctx, sessionID, conversation.RoleUser, v.Sanitized); err != nil {
		return SendResult{}, err
	}

	threadRef, ok := s.registry.ThreadRef(sessionID)
	if !ok {
		return SendResult{}, session.ErrSessionNotFound
	}

	persona := s.registry.GetPersona(sessionID)
	generated, err := s.generator.Generate(ctx, threadRef, persona)
	if err != nil {
		return SendResult{}, fmt.Errorf("AI response failed: %w", err)
	}
	s.logWarnings(sessionID, generated.Warnings)

	msgs, err := s.registry.GetConversation(ctx, sessionID)
	if err != nil {
		return SendResult{}, err
	}

	return SendResult{Conversation: msgs, AIResponse: generated.Text, UserMessage: v.Sanitized}, nil
}

// Conversation returns the current transcript of a live session.
func (s *Service) Conversation(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	return s.registry.GetConversation(ctx, sessionID)
}

// End removes the session. The memory thread survives.
func (s *Service) End(_ context.Context, sessionID string) error {
	return s.registry.EndSession(sessionID)
}

// ProcessInitialText is the legacy session-less flow: a transient
// two-message exchange with a generic instruction, never touching the
// registry.
func (s *Service) ProcessInitialText(ctx context.Context, text string) (TextResult, error) {
	v := validation.ValidateTextInput(text)
	if !v.OK {
		return TextResult{}, &ValidationError{Reasons: v.Errors}
	}

	messages := []conversation.Message{
		{Role: conversation.RoleSystem, Content: legacyInstruction},
		{Role: conversation.RoleUser, Content: v.Sanitized},
	}

	response, err := s.generator.GenerateFromMessages(ctx, messages)
	if err != nil {
		return TextResult{}, fmt.Errorf("AI response failed: %w", err)
	}

	return TextResult{OriginalText: v.Sanitized, AIResponse: response}, nil
}

func (s *Service) logWarnings(sessionID string, warnings []string) {
	for _, w := range warnings {
		log.Printf("[conversation] session=%s: %s", sessionID, w)
	}
}
