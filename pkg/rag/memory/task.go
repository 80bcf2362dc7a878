package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edu-chatbot-be/pkg/events"
	"edu-chatbot-be/pkg/store"
)

const (
	TaskPersistTurn      = "persist_turn"
	TaskSummarizeSession = "summarize_session"
)

// PersistedMessage is a message on its way to the durable store. MessageKey
// makes redelivery harmless.
type PersistedMessage struct {
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	MessageKey string    `json:"message_key"`
}

type PersistTurnTask struct {
	TurnID    string             `json:"turn_id"`
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	Messages  []PersistedMessage `json:"messages"`
}

type SummarizeTask struct {
	SessionID string `json:"session_id"`
}

// MessageKey identifies one side of a turn.
func MessageKey(turnID, role string) string {
	return turnID + ":" + role
}

// AppendResult reports how many messages a durable append actually wrote
// and the session's message count afterwards.
type AppendResult struct {
	Appended int
	Total    int
}

// DurableStore is the unbounded, append-only tier.
type DurableStore interface {
	// LoadSession returns the session, creating it on first use.
	LoadSession(ctx context.Context, userID, sessionID string) (*store.Session, error)
	FindSession(ctx context.Context, sessionID string) (*store.Session, error)
	// RecentMessages returns the newest limit messages, oldest first.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
	// AppendMessages skips messages whose key is already stored and exact
	// repeats of the last message, then bumps updated_at.
	AppendMessages(ctx context.Context, userID, sessionID string, msgs []PersistedMessage) (AppendResult, error)
	TryLockSummary(ctx context.Context, sessionID string) (bool, error)
	SaveSummary(ctx context.Context, sessionID, summary string) error
	UnlockSummary(ctx context.Context, sessionID string) error
}

// TaskQueue schedules background work. Implementations must not block on
// the work itself.
type TaskQueue interface {
	Enqueue(ctx context.Context, event events.Event) error
}

func (t PersistTurnTask) Event() (events.Event, error) {
	return toEvent(TaskPersistTurn, t)
}

func (t SummarizeTask) Event() (events.Event, error) {
	return toEvent(TaskSummarizeSession, t)
}

func toEvent(kind string, v interface{}) (events.Event, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s task: %w", kind, err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encode %s task: %w", kind, err)
	}
	return events.BaseEvent{Type: kind, Data: data, OccurredAt: time.Now()}, nil
}

// DecodeTask turns an event payload back into the task struct.
func DecodeTask(payload map[string]interface{}, into interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}
