package reply

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/memory"
)

type stubModel struct {
	lastInput []*schema.Message
	reply     string
	err       error
}

func (s *stubModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.lastInput = input
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage(s.reply, nil), nil
}

func (s *stubModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, input)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (s *stubModel) BindTools(_ []*schema.ToolInfo) error { return nil }

// flakyStore wraps the in-memory store with injectable failures.
type flakyStore struct {
	*memory.InMemory
	failList   bool
	failAppend bool
}

func (f *flakyStore) ListMessages(ctx context.Context, threadRef string) ([]conversation.Message, error) {
	if f.failList {
		return nil, errors.New("provider unavailable")
	}
	return f.InMemory.ListMessages(ctx, threadRef)
}

func (f *flakyStore) AppendMessage(ctx context.Context, threadRef, role, content string) error {
	if f.failAppend {
		return errors.New("provider unavailable")
	}
	return f.InMemory.AppendMessage(ctx, threadRef, role, content)
}

func newTestGenerator(t *testing.T, m *stubModel, store memory.Client) *Generator {
	t.Helper()
	gen, err := NewGenerator(context.Background(), m, store)
	if err != nil {
		t.Fatalf("NewGenerator err: %v", err)
	}
	return gen
}

func TestGeneratePersonaInSystemTurn(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	m := &stubModel{reply: "I'm listening, but I have budget concerns."}
	gen := newTestGenerator(t, m, store)

	ref, err := store.CreateThread(ctx)
	if err != nil {
		t.Fatalf("CreateThread err: %v", err)
	}
	if err := store.AppendMessage(ctx, ref, conversation.RoleUser, "Hi, thanks for your time"); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	persona := "You are a skeptical CFO who pushes back on pricing."
	got, err := gen.Generate(ctx, ref, persona)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if got.Text != m.reply {
		t.Fatalf("unexpected reply text %q", got.Text)
	}
	if len(got.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", got.Warnings)
	}

	if len(m.lastInput) != 2 {
		t.Fatalf("expected system + 1 history turn, got %d messages", len(m.lastInput))
	}
	sys := m.lastInput[0]
	if sys.Role != schema.System {
		t.Fatalf("first turn should be system, got %s", sys.Role)
	}
	if !strings.Contains(sys.Content, persona) {
		t.Fatal("persona missing from system turn")
	}
	if m.lastInput[1].Content != "Hi, thanks for your time" {
		t.Fatalf("history turn mismatch: %q", m.lastInput[1].Content)
	}

	// The generated turn must land back on the thread.
	msgs, err := store.ListMessages(ctx, ref)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	last := msgs[len(msgs)-1]
	if last.Role != conversation.RoleAssistant || last.Content != m.reply {
		t.Fatalf("assistant turn not persisted, last=%+v", last)
	}
}

func TestGeneratePersonaReappliedEveryCall(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	m := &stubModel{reply: "Go on."}
	gen := newTestGenerator(t, m, store)

	ref, _ := store.CreateThread(ctx)
	persona := "You are a rushed procurement manager."

	for i := 0; i < 2; i++ {
		if _, err := gen.Generate(ctx, ref, persona); err != nil {
			t.Fatalf("Generate err: %v", err)
		}
		if !strings.Contains(m.lastInput[0].Content, persona) {
			t.Fatalf("call %d: persona missing from system turn", i+1)
		}
	}

	// The persona never reaches the stored thread.
	msgs, _ := store.ListMessages(ctx, ref)
	for _, msg := range msgs {
		if strings.Contains(msg.Content, persona) {
			t.Fatal("persona leaked into stored history")
		}
	}
}

func TestGenerateDegradesOnHistoryFetchFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{InMemory: memory.NewInMemory(), failList: true}
	m := &stubModel{reply: "Hello."}
	gen := newTestGenerator(t, m, store)

	ref, _ := store.CreateThread(ctx)

	got, err := gen.Generate(ctx, ref, "")
	if err != nil {
		t.Fatalf("expected degraded success, got err %v", err)
	}
	if got.Text != "Hello." {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if len(got.Warnings) == 0 {
		t.Fatal("expected a degradation warning")
	}
	if len(m.lastInput) != 1 {
		t.Fatalf("expected system turn only, got %d messages", len(m.lastInput))
	}
}

func TestGenerateAppendFailureStillReturnsText(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{InMemory: memory.NewInMemory(), failAppend: true}
	m := &stubModel{reply: "Noted."}
	gen := newTestGenerator(t, m, store)

	ref, _ := store.CreateThread(ctx)

	got, err := gen.Generate(ctx, ref, "")
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}
	if got.Text != "Noted." {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if len(got.Warnings) == 0 {
		t.Fatal("expected a persist warning")
	}
}

func TestGenerateCompletionFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	m := &stubModel{err: errors.New("rate limited")}
	gen := newTestGenerator(t, m, store)

	ref, _ := store.CreateThread(ctx)

	if _, err := gen.Generate(ctx, ref, ""); err == nil {
		t.Fatal("expected generation failure to propagate")
	}

	// A failed generation must not add a phantom assistant turn.
	msgs, _ := store.ListMessages(ctx, ref)
	if len(msgs) != 0 {
		t.Fatalf("expected empty thread, got %d messages", len(msgs))
	}
}

func TestGenerateFromMessages(t *testing.T) {
	ctx := context.Background()
	m := &stubModel{reply: "Understood."}
	gen := newTestGenerator(t, m, memory.NewInMemory())

	messages := []conversation.Message{
		{Role: conversation.RoleSystem, Content: "These are the instructions for the AI."},
		{Role: conversation.RoleUser, Content: "Pitch me your product."},
	}

	text, err := gen.GenerateFromMessages(ctx, messages)
	if err != nil {
		t.Fatalf("GenerateFromMessages err: %v", err)
	}
	if text != "Understood." {
		t.Fatalf("unexpected text %q", text)
	}
	if len(m.lastInput) != 2 || m.lastInput[0].Role != schema.System {
		t.Fatalf("message array not passed through, got %d messages", len(m.lastInput))
	}
}

func TestGenerateFromMessagesEmptyCompletion(t *testing.T) {
	ctx := context.Background()
	m := &stubModel{reply: ""}
	gen := newTestGenerator(t, m, memory.NewInMemory())

	_, err := gen.GenerateFromMessages(ctx, []conversation.Message{
		{Role: conversation.RoleUser, Content: "Hello?"},
	})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}
