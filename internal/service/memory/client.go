package memory

import (
	"context"
	"errors"

	"github.com/pitchloop/sales-trainer/internal/model/conversation"
)

// ErrThreadNotFound reports an unknown thread reference.
var ErrThreadNotFound = errors.New("memory thread not found")

// Client is the contract with the external conversational-memory provider.
// A thread is an append-only ordered log of turns and is the sole source of
// truth for conversation content; ListMessages returns the turns in stable
// chronological order on every call.
//
// The provider never appends assistant turns on its own: whoever generates
// a reply is responsible for writing it back to the thread.
type Client interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadRef, role, content string) error
	ListMessages(ctx context.Context, threadRef string) ([]conversation.Message, error)
}
