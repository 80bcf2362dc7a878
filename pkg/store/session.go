package store

import "time"

// Document is a single retrieval hit. It lives only for the duration of a turn
// and is never mutated after the retrieval engine creates it.
type Document struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Message is one entry of a session's append-only log.
type Message struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the durable record of one conversation.
type Session struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id"`
	Summary       string    `json:"summary"`
	IsSummarizing bool      `json:"is_summarizing"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
