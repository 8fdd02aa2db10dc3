package conversation

import "time"

// Session maps a client-visible identifier to its memory thread. The thread
// holds the message content; the session entry holds only the binding.
type Session struct {
	ID             string    `json:"sessionId"`
	ThreadRef      string    `json:"threadRef"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}
