package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/store"
	"edu-chatbot-be/pkg/tokenizer"
)

const module = "MEMORY"

type Config struct {
	BufferSize       int
	TokenLimit       int
	SummaryEvery     int
	SummaryWindow    int
	RestartThreshold time.Duration
}

func (c *Config) defaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 20
	}
	if c.SummaryEvery <= 0 {
		c.SummaryEvery = 10
	}
	if c.SummaryWindow <= 0 {
		c.SummaryWindow = 20
	}
	if c.RestartThreshold <= 0 {
		c.RestartThreshold = 2 * time.Hour
	}
}

// TurnContext is what a turn needs from memory.
type TurnContext struct {
	Summary      string
	History      []store.Message
	IsRestart    bool
	MessageCount int
}

type Manager struct {
	cache    Cache
	durable  DurableStore
	queue    TaskQueue
	provider llm.LLMProvider
	counter  tokenizer.Counter
	cfg      Config
	now      func() time.Time
	usage    UsageStore
	logger   logger.ILogger
}

type Option func(*Manager)

// WithClock replaces time.Now, for restart detection.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(cache Cache, durable DurableStore, queue TaskQueue, provider llm.LLMProvider, counter tokenizer.Counter, cfg Config, logger logger.ILogger, opts ...Option) *Manager {
	cfg.defaults()
	if counter == nil {
		counter = tokenizer.ApproxCounter{}
	}
	m := &Manager{
		cache:    cache,
		durable:  durable,
		queue:    queue,
		provider: provider,
		counter:  counter,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IsRestart flags a returning user: the session has messages and has been
// idle for longer than threshold.
func IsRestart(s *store.Session, now time.Time, threshold time.Duration) bool {
	if s == nil || s.MessageCount <= 0 || s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) > threshold
}

// LoadTurnContext reads summary, restart flag and the token-trimmed history.
// Store failures degrade to an empty context instead of failing the turn.
func (m *Manager) LoadTurnContext(ctx context.Context, userID, sessionID string) TurnContext {
	var tc TurnContext

	sess, err := m.durable.LoadSession(ctx, userID, sessionID)
	if err != nil {
		m.logger.Error(module, "Durable session load failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
	} else if sess != nil {
		tc.Summary = sess.Summary
		tc.MessageCount = sess.MessageCount
		tc.IsRestart = IsRestart(sess, m.now(), m.cfg.RestartThreshold)
		if tc.IsRestart {
			m.logger.Info(module, "Session restart detected", map[string]interface{}{
				"session_id": sessionID,
				"idle":       m.now().Sub(sess.UpdatedAt).String(),
			})
		}
	}

	buffer := m.loadBuffer(ctx, sessionID, tc.MessageCount > 0)
	tc.History = Trim(buffer, m.counter, m.cfg.TokenLimit)

	m.logger.Debug(module, "Turn context loaded", map[string]interface{}{
		"session_id": sessionID,
		"buffered":   len(buffer),
		"kept":       len(tc.History),
		"tokens":     Tokens(tc.History, m.counter),
	})
	return tc
}

func (m *Manager) loadBuffer(ctx context.Context, sessionID string, hasDurable bool) []store.Message {
	key := BufferKey(sessionID)
	raw, err := m.cache.ListRange(ctx, key)
	if err != nil {
		m.logger.Warn(module, "Fast buffer unavailable, reading durable store", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return m.recent(ctx, sessionID)
	}
	if len(raw) > 0 {
		return decodeItems(raw)
	}
	if !hasDurable {
		return nil
	}

	msgs := m.recent(ctx, sessionID)
	if len(msgs) == 0 {
		return nil
	}
	items := make([]string, len(msgs))
	for i, msg := range msgs {
		items[i] = encodeItem(msg.Role, msg.Text)
	}
	if err := m.cache.ListReplace(ctx, key, items, bufferTTL); err != nil {
		m.logger.Warn(module, "Buffer reseed failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
	}
	return msgs
}

func (m *Manager) recent(ctx context.Context, sessionID string) []store.Message {
	msgs, err := m.durable.RecentMessages(ctx, sessionID, m.cfg.BufferSize)
	if err != nil {
		m.logger.Error(module, "Durable history read failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return nil
	}
	return msgs
}

// RecordTurn appends the user and assistant messages to the fast buffer, in
// that order, then schedules durable persistence without waiting for it.
func (m *Manager) RecordTurn(ctx context.Context, turnID, userID, sessionID, userText, assistantText string) {
	now := m.now().UTC()
	task := PersistTurnTask{TurnID: turnID, SessionID: sessionID, UserID: userID}
	for _, msg := range []PersistedMessage{
		{Role: store.RoleUser, Text: userText, Timestamp: now},
		{Role: store.RoleAssistant, Text: assistantText, Timestamp: now.Add(time.Millisecond)},
	} {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		msg.MessageKey = MessageKey(turnID, msg.Role)
		m.appendBuffer(ctx, sessionID, msg.Role, msg.Text)
		task.Messages = append(task.Messages, msg)
	}
	if len(task.Messages) == 0 {
		return
	}

	ev, err := task.Event()
	if err == nil {
		err = m.queue.Enqueue(ctx, ev)
	}
	if err != nil {
		m.logger.Error(module, "Failed to schedule persistence", map[string]interface{}{"session_id": sessionID, "turn_id": turnID, "error": err.Error()})
	}
}

func (m *Manager) appendBuffer(ctx context.Context, sessionID, role, text string) {
	key := BufferKey(sessionID)
	if last, ok, err := m.cache.ListLast(ctx, key); err == nil && ok {
		if prev, ok := decodeItem(last); ok && prev.Role == role && prev.Text == text {
			m.logger.Warn(module, "Duplicate buffer message skipped", map[string]interface{}{"session_id": sessionID, "role": role})
			return
		}
	}
	if err := m.cache.ListAppend(ctx, key, []string{encodeItem(role, text)}, m.cfg.BufferSize+bufferSlack, bufferTTL); err != nil {
		m.logger.Warn(module, "Skipping buffer update", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
	}
}

// PersistTurn is the durable writer for a persist task. It is safe to run
// more than once for the same task.
func (m *Manager) PersistTurn(ctx context.Context, task PersistTurnTask) error {
	res, err := m.durable.AppendMessages(ctx, task.UserID, task.SessionID, task.Messages)
	if err != nil {
		return fmt.Errorf("persist turn %s: %w", task.TurnID, err)
	}
	m.logger.Info(module, "Turn persisted", map[string]interface{}{
		"session_id": task.SessionID,
		"turn_id":    task.TurnID,
		"appended":   res.Appended,
		"total":      res.Total,
	})

	if res.Appended == 0 || !crossedBoundary(res.Total-res.Appended, res.Total, m.cfg.SummaryEvery) {
		return nil
	}
	ev, err := SummarizeTask{SessionID: task.SessionID}.Event()
	if err == nil {
		err = m.queue.Enqueue(ctx, ev)
	}
	if err != nil {
		m.logger.Warn(module, "Failed to schedule summary", map[string]interface{}{"session_id": task.SessionID, "error": err.Error()})
	}
	return nil
}

// crossedBoundary reports whether some multiple of every lies in (before, after].
func crossedBoundary(before, after, every int) bool {
	if every <= 0 || after <= before {
		return false
	}
	return after/every > before/every
}
