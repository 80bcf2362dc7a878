package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"edu-chatbot-be/pkg/store"
)

// UsageStore keeps background LLM usage until the next turn reports it.
type UsageStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, bool, error)
}

const usageTTL = 24 * time.Hour

func UsageKey(sessionID string) string {
	return fmt.Sprintf("bg_tokens:%s", sessionID)
}

// WithUsageStore makes the summarizer record its token usage so the next
// turn of the session can report it.
func WithUsageStore(s UsageStore) Option {
	return func(m *Manager) { m.usage = s }
}

func (m *Manager) recordBackgroundUsage(ctx context.Context, sessionID string, u store.Usage) {
	if m.usage == nil {
		return
	}
	key := UsageKey(sessionID)
	var total store.Usage
	if raw, ok, err := m.usage.Get(ctx, key); err == nil && ok {
		_ = json.Unmarshal([]byte(raw), &total)
	}
	total = total.Add(u)
	raw, _ := json.Marshal(total)
	if err := m.usage.Set(ctx, key, string(raw), usageTTL); err != nil {
		m.logger.Warn(module, "Failed to record background usage", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
}

// TakeBackgroundUsage returns and clears the usage accumulated by background
// work since the last call.
func (m *Manager) TakeBackgroundUsage(ctx context.Context, sessionID string) store.Usage {
	if m.usage == nil {
		return store.Usage{}
	}
	raw, ok, err := m.usage.Take(ctx, UsageKey(sessionID))
	if err != nil || !ok {
		return store.Usage{}
	}
	var u store.Usage
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return store.Usage{}
	}
	return u
}
