package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/memory"
)

func newTestRegistry() *Registry {
	return NewRegistry(memory.NewInMemory(), Config{})
}

func TestCreateSession(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, msgs, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.ID == "" || session.ThreadRef == "" {
		t.Fatalf("incomplete session %+v", session)
	}
	if len(msgs) != 0 {
		t.Fatalf("new session should have an empty conversation, got %d turns", len(msgs))
	}

	ref, ok := reg.ThreadRef(session.ID)
	if !ok || ref != session.ThreadRef {
		t.Fatalf("ThreadRef lookup mismatch: %q ok=%v", ref, ok)
	}
}

func TestSessionIDsNeverReused(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		session, _, err := reg.CreateSession(ctx)
		if err != nil {
			t.Fatalf("CreateSession err: %v", err)
		}
		if seen[session.ID] {
			t.Fatalf("session id %s reused", session.ID)
		}
		seen[session.ID] = true
	}
}

func TestAddMessageAndGetConversation(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	msgs, err := reg.AddMessage(ctx, session.ID, conversation.RoleUser, "Hi, thanks for your time")
	if err != nil {
		t.Fatalf("AddMessage err: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleUser {
		t.Fatalf("unexpected conversation %+v", msgs)
	}

	// Assistant turns are already on the thread via the generator; the
	// registry call must not duplicate them.
	msgs, err = reg.AddMessage(ctx, session.ID, conversation.RoleAssistant, "Tell me more.")
	if err != nil {
		t.Fatalf("AddMessage err: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("assistant no-op appended a turn: %+v", msgs)
	}

	first, err := reg.GetConversation(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}
	second, err := reg.GetConversation(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("conversation not stable across reads: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("turn %d changed between reads", i)
		}
	}
}

func TestGetConversationUnknownSession(t *testing.T) {
	reg := newTestRegistry()

	if _, err := reg.GetConversation(context.Background(), "nonexistent"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEndSession(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	reg.SetPersona(session.ID, "You are a skeptical CFO evaluating a pitch.")

	if err := reg.EndSession(session.ID); err != nil {
		t.Fatalf("EndSession err: %v", err)
	}
	if _, err := reg.GetConversation(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after end, got %v", err)
	}
	if got := reg.GetPersona(session.ID); got != "" {
		t.Fatalf("persona should be dropped with the session, got %q", got)
	}
	if err := reg.EndSession(session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on double end, got %v", err)
	}
}

func TestEndSessionKeepsThread(t *testing.T) {
	store := memory.NewInMemory()
	reg := NewRegistry(store, Config{})
	ctx := context.Background()

	session, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if _, err := reg.AddMessage(ctx, session.ID, conversation.RoleUser, "keep this"); err != nil {
		t.Fatalf("AddMessage err: %v", err)
	}
	if err := reg.EndSession(session.ID); err != nil {
		t.Fatalf("EndSession err: %v", err)
	}

	// Ending a session must not delete the external thread.
	msgs, err := store.ListMessages(ctx, session.ThreadRef)
	if err != nil {
		t.Fatalf("thread should survive session end: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("thread content lost, got %d turns", len(msgs))
	}
}

func TestPersona(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	session, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if got := reg.GetPersona(session.ID); got != "" {
		t.Fatalf("expected empty persona before set, got %q", got)
	}

	persona := "You are a rushed procurement manager."
	reg.SetPersona(session.ID, persona)
	if got := reg.GetPersona(session.ID); got != persona {
		t.Fatalf("persona mismatch: got %q", got)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	reg := NewRegistry(memory.NewInMemory(), Config{IdleTimeout: time.Minute})
	ctx := context.Background()

	idle, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	reg.SetPersona(idle.ID, "idle persona")

	active, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	// Age the idle session past the timeout.
	reg.mu.Lock()
	reg.sessions[idle.ID].LastActivityAt = time.Now().UTC().Add(-2 * time.Minute)
	reg.mu.Unlock()

	if evicted := reg.sweepOnce(time.Now().UTC()); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}

	if _, err := reg.GetConversation(ctx, idle.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("idle session should be gone, got %v", err)
	}
	if got := reg.GetPersona(idle.ID); got != "" {
		t.Fatalf("persona should be swept with the session, got %q", got)
	}
	if _, err := reg.GetConversation(ctx, active.ID); err != nil {
		t.Fatalf("active session should survive the sweep: %v", err)
	}
}

func TestActivityTouchDefersSweep(t *testing.T) {
	reg := NewRegistry(memory.NewInMemory(), Config{IdleTimeout: time.Minute})
	ctx := context.Background()

	session, _, err := reg.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	reg.mu.Lock()
	reg.sessions[session.ID].LastActivityAt = time.Now().UTC().Add(-2 * time.Minute)
	reg.mu.Unlock()

	// A read touches lastActivity and rescues the session.
	if _, err := reg.GetConversation(ctx, session.ID); err != nil {
		t.Fatalf("GetConversation err: %v", err)
	}
	if evicted := reg.sweepOnce(time.Now().UTC()); evicted != 0 {
		t.Fatalf("touched session was evicted")
	}
}

func TestStartStop(t *testing.T) {
	reg := NewRegistry(memory.NewInMemory(), Config{SweepInterval: 10 * time.Millisecond})
	reg.Start()
	reg.Stop()
	// Double stop must not panic.
	reg.Stop()
}
