package conversation

// Message roles as stored on the memory thread. The system instruction is
// never persisted; it is rebuilt on every generation call.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
