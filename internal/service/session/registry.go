package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/memory"
)

// ErrSessionNotFound reports a session id unknown to the registry. Callers
// must treat it as always possible: the sweeper may evict a session between
// a lookup and a subsequent use.
var ErrSessionNotFound = errors.New("session not found")

// Config tunes idle eviction.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// Registry maps client-visible session ids to memory threads and persona
// text. The thread is the source of truth for message content; the registry
// holds only the binding. The mutex guards map integrity, not per-session
// ordering: concurrent writes to one session race last-write-wins.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*conversation.Session
	personas map[string]string

	memory        memory.Client
	idleTimeout   time.Duration
	sweepInterval time.Duration

	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistry builds a registry over the supplied memory client. Zero
// config fields fall back to 30 minutes idle / 10 minute sweeps, matching
// how long a practice call is worth keeping around.
func NewRegistry(mem memory.Client, cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}

	return &Registry{
		sessions:      make(map[string]*conversation.Session),
		personas:      make(map[string]string),
		memory:        mem,
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		done:          make(chan struct{}),
	}
}

// CreateSession allocates a fresh id, provisions a thread and returns the
// (empty) conversation fetched from it.
func (r *Registry) CreateSession(ctx context.Context) (conversation.Session, []conversation.Message, error) {
	threadRef, err := r.memory.CreateThread(ctx)
	if err != nil {
		return conversation.Session{}, nil, err
	}

	now := time.Now().UTC()
	session := &conversation.Session{
		ID:             uuid.NewString(),
		ThreadRef:      threadRef,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	msgs, err := r.memory.ListMessages(ctx, threadRef)
	if err != nil {
		return *session, nil, err
	}

	log.Printf("[session] created session=%s thread=%s", session.ID, threadRef)
	return *session, msgs, nil
}

// SetPersona binds persona text to a session. Set once at creation; it is
// never written to the thread.
func (r *Registry) SetPersona(sessionID, persona string) {
	r.mu.Lock()
	r.personas[sessionID] = persona
	r.mu.Unlock()
	log.Printf("[session] persona set for session=%s", sessionID)
}

// GetPersona returns the bound persona, or "" when none is tracked.
func (r *Registry) GetPersona(sessionID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personas[sessionID]
}

// AddMessage records a turn and returns the freshly re-fetched
// conversation. User turns are appended to the thread; assistant turns are
// a no-op here because the reply generator already wrote them — the role
// parameter exists for interface symmetry only.
func (r *Registry) AddMessage(ctx context.Context, sessionID, role, content string) ([]conversation.Message, error) {
	threadRef, ok := r.touch(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if role == conversation.RoleUser {
		if err := r.memory.AppendMessage(ctx, threadRef, role, content); err != nil {
			return nil, err
		}
	}

	return r.memory.ListMessages(ctx, threadRef)
}

// GetConversation re-fetches the conversation from the thread.
func (r *Registry) GetConversation(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	threadRef, ok := r.touch(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r.memory.ListMessages(ctx, threadRef)
}

// ThreadRef is the non-failing lookup for internal callers.
func (r *Registry) ThreadRef(sessionID string) (string, bool) {
	return r.touch(sessionID)
}

// EndSession drops the registry entry and its persona. The external memory
// thread is left in place so an accidental end loses no data.
func (r *Registry) EndSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	delete(r.sessions, sessionID)
	delete(r.personas, sessionID)
	log.Printf("[session] ended session=%s, memory thread persists: %s", sessionID, session.ThreadRef)
	return nil
}

// Start launches the idle sweeper. Stop halts it; both are expected to be
// called exactly once from the process lifecycle.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				r.sweepOnce(time.Now().UTC())
			}
		}
	}()
}

// Stop terminates the sweeper goroutine.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// sweepOnce evicts every session idle longer than the timeout and returns
// how many were dropped. This is the registry's only autonomous mutation.
func (r *Registry) sweepOnce(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, session := range r.sessions {
		if now.Sub(session.LastActivityAt) > r.idleTimeout {
			delete(r.sessions, id)
			delete(r.personas, id)
			evicted++
			log.Printf("[session] swept idle session=%s, memory thread persists: %s", id, session.ThreadRef)
		}
	}
	return evicted
}

// touch bumps lastActivity and returns the thread ref in one lock hold.
func (r *Registry) touch(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	session.LastActivityAt = time.Now().UTC()
	return session.ThreadRef, true
}
