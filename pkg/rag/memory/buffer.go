package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edu-chatbot-be/pkg/store"
)

// Cache is the slice of the fast cache the buffer needs.
type Cache interface {
	ListAppend(ctx context.Context, key string, values []string, maxLen int, ttl time.Duration) error
	ListRange(ctx context.Context, key string) ([]string, error)
	ListLast(ctx context.Context, key string) (string, bool, error)
	ListReplace(ctx context.Context, key string, values []string, ttl time.Duration) error
}

const bufferTTL = time.Hour

// bufferSlack keeps the buffer a little longer than the reseed size.
const bufferSlack = 10

type bufferItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Text is accepted from older buffer entries.
	Text string `json:"text,omitempty"`
}

func BufferKey(sessionID string) string {
	return fmt.Sprintf("chat:%s:buffer", sessionID)
}

func encodeItem(role, content string) string {
	raw, _ := json.Marshal(bufferItem{Role: role, Content: content})
	return string(raw)
}

func decodeItem(raw string) (store.Message, bool) {
	var it bufferItem
	if err := json.Unmarshal([]byte(raw), &it); err != nil {
		return store.Message{}, false
	}
	if it.Content == "" {
		it.Content = it.Text
	}
	if it.Role != store.RoleUser && it.Role != store.RoleAssistant {
		return store.Message{}, false
	}
	return store.Message{Role: it.Role, Text: it.Content}, true
}

func decodeItems(raw []string) []store.Message {
	out := make([]store.Message, 0, len(raw))
	for _, r := range raw {
		if m, ok := decodeItem(r); ok {
			out = append(out, m)
		}
	}
	return out
}
