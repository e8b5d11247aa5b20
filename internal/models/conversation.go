package models

// Role identifies who produced a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one entry of the chat transcript
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Sources holds the formatted citations of an assistant turn
	Sources string `json:"sources,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
}

// Exchange is a prior (question, answer) pair handed to the query rewriter
type Exchange struct {
	Question string
	Answer   string
}
