package reply

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/memory"
)

// ErrEmptyCompletion reports a completion that produced no text on the
// legacy single-shot path, where there is no session to fall back on.
var ErrEmptyCompletion = errors.New("completion returned empty text")

// systemInstruction is rebuilt on every call; the memory thread stores
// only user/assistant turns, never the instruction or the persona.
const systemInstruction = "You are a helpful AI roleplaying as a buyer in a sales practice call. " +
	"Stay in character, respond naturally to the seller, and keep replies conversational."

// Reply carries the generated text plus any non-fatal degradations hit
// along the way, so callers see the best-effort policy instead of having
// failures swallowed silently.
type Reply struct {
	Text     string
	Warnings []string
}

// Generator produces the buyer's next utterance from the thread history.
type Generator struct {
	chatModel model.ChatModel
	memory    memory.Client
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewGenerator compiles the reply chain around the supplied chat model.
func NewGenerator(ctx context.Context, chatModel model.ChatModel, mem memory.Client) (*Generator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Generator{chatModel: chatModel, memory: mem, chain: runnable}, nil
}

// Generate fetches the full thread history, prepends a fresh system
// instruction carrying the persona, and asks the model for the next buyer
// turn. A failed history fetch degrades to an empty history; a failed
// write-back of the generated turn is logged and reported as a warning.
// Only the completion call itself fails the operation, with no retry.
func (g *Generator) Generate(ctx context.Context, threadRef, persona string) (Reply, error) {
	var warnings []string

	history, err := g.memory.ListMessages(ctx, threadRef)
	if err != nil {
		log.Printf("[reply] history fetch failed for thread=%s, continuing with empty history: %v", threadRef, err)
		warnings = append(warnings, "conversation history unavailable; reply generated without context")
		history = nil
	}

	input := map[string]any{
		"system":  buildSystemPrompt(persona),
		"history": toSchemaMessages(history),
	}

	response, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to run reply chain: %w", err)
	}

	text := ""
	if response != nil {
		text = response.Content
	}

	if err := g.memory.AppendMessage(ctx, threadRef, conversation.RoleAssistant, text); err != nil {
		log.Printf("[reply] failed to persist assistant turn for thread=%s: %v", threadRef, err)
		warnings = append(warnings, "reply could not be saved to the conversation history")
	}

	log.Printf("[reply] generated response for thread=%s, length=%d", threadRef, len(text))
	return Reply{Text: text, Warnings: warnings}, nil
}

// Stream returns the model output as a stream for the same request shape
// Generate uses. The caller owns closing the reader and persisting the
// accumulated text via SaveAssistantTurn.
func (g *Generator) Stream(ctx context.Context, threadRef, persona string) (*schema.StreamReader[*schema.Message], error) {
	history, err := g.memory.ListMessages(ctx, threadRef)
	if err != nil {
		log.Printf("[reply] history fetch failed for thread=%s, streaming with empty history: %v", threadRef, err)
		history = nil
	}

	input := map[string]any{
		"system":  buildSystemPrompt(persona),
		"history": toSchemaMessages(history),
	}

	stream, err := g.chain.Stream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to stream reply chain output: %w", err)
	}
	return stream, nil
}

// SaveAssistantTurn writes streamed text back to the thread, best effort.
func (g *Generator) SaveAssistantTurn(ctx context.Context, threadRef, text string) {
	if err := g.memory.AppendMessage(ctx, threadRef, conversation.RoleAssistant, text); err != nil {
		log.Printf("[reply] failed to persist streamed turn for thread=%s: %v", threadRef, err)
	}
}

// GenerateFromMessages is the legacy single-shot path: the caller supplies
// the complete message array, including its own system turn, and gets the
// completion text back directly. It never touches the memory client.
func (g *Generator) GenerateFromMessages(ctx context.Context, messages []conversation.Message) (string, error) {
	response, err := g.chatModel.Generate(ctx, toSchemaMessages(messages))
	if err != nil {
		return "", fmt.Errorf("failed to run completion: %w", err)
	}
	if response == nil || response.Content == "" {
		return "", ErrEmptyCompletion
	}
	return response.Content, nil
}

// buildSystemPrompt extends the base instruction with the session persona.
// The persona text is passed through verbatim.
func buildSystemPrompt(persona string) string {
	if persona == "" {
		return systemInstruction
	}
	return systemInstruction +
		"\n\nIMPORTANT: Adopt the following persona and behavior for the entire conversation:\n" +
		persona
}

func toSchemaMessages(messages []conversation.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case conversation.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case conversation.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		case conversation.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		}
	}
	return out
}
