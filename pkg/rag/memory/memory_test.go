package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	memcache "edu-chatbot-be/internal/repository/memory"
	"edu-chatbot-be/pkg/events"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/store"
	"edu-chatbot-be/pkg/tokenizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurable mimics the idempotent append contract in memory.
type fakeDurable struct {
	mu        sync.Mutex
	sessions  map[string]*store.Session
	messages  map[string][]PersistedMessage
	keys      map[string]bool
	locked    map[string]bool
	appendErr error
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		sessions: map[string]*store.Session{},
		messages: map[string][]PersistedMessage{},
		keys:     map[string]bool{},
		locked:   map[string]bool{},
	}
}

func (f *fakeDurable) LoadSession(_ context.Context, userID, sessionID string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		now := time.Now()
		s = &store.Session{SessionID: sessionID, UserID: userID, CreatedAt: now, UpdatedAt: now}
		f.sessions[sessionID] = s
	}
	cp := *s
	return &cp, nil
}

func (f *fakeDurable) FindSession(_ context.Context, sessionID string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeDurable) RecentMessages(_ context.Context, sessionID string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.messages[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]store.Message, len(all))
	for i, m := range all {
		out[i] = store.Message{Role: m.Role, Text: m.Text, Timestamp: m.Timestamp}
	}
	return out, nil
}

func (f *fakeDurable) AppendMessages(_ context.Context, userID, sessionID string, msgs []PersistedMessage) (AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return AppendResult{}, f.appendErr
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		s = &store.Session{SessionID: sessionID, UserID: userID}
		f.sessions[sessionID] = s
	}
	res := AppendResult{}
	for _, m := range msgs {
		if f.keys[m.MessageKey] {
			continue
		}
		log := f.messages[sessionID]
		if n := len(log); n > 0 && log[n-1].Role == m.Role && log[n-1].Text == m.Text {
			continue
		}
		f.keys[m.MessageKey] = true
		f.messages[sessionID] = append(log, m)
		res.Appended++
	}
	s.MessageCount = len(f.messages[sessionID])
	s.UpdatedAt = time.Now()
	res.Total = s.MessageCount
	return res, nil
}

func (f *fakeDurable) TryLockSummary(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked[sessionID] {
		return false, nil
	}
	f.locked[sessionID] = true
	return true, nil
}

func (f *fakeDurable) SaveSummary(_ context.Context, sessionID, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionID].Summary = summary
	f.locked[sessionID] = false
	return nil
}

func (f *fakeDurable) UnlockSummary(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked[sessionID] = false
	return nil
}

type recordingQueue struct {
	mu     sync.Mutex
	events []events.Event
}

func (q *recordingQueue) Enqueue(_ context.Context, e events.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
	return nil
}

type fakeLLM struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeLLM) Chat(ctx context.Context, m []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	return f.Generate(ctx, m[len(m)-1].Content, opts...)
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (*llm.Response, error) {
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.reply, Usage: llm.Usage{InputTokens: 40, OutputTokens: 12}}, nil
}

// wordCounter counts whitespace separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }
func (wordCounter) Truncate(text string, n int) string {
	w := strings.Fields(text)
	if len(w) > n {
		w = w[:n]
	}
	return strings.Join(w, " ")
}

var _ tokenizer.Counter = wordCounter{}

func newManager(d DurableStore, q TaskQueue, p llm.LLMProvider, cfg Config, opts ...Option) *Manager {
	return NewManager(memcache.NewFastCache(), d, q, p, wordCounter{}, cfg, logger.NewNopLogger(), opts...)
}

func TestTrim(t *testing.T) {
	msgs := []store.Message{
		{Role: store.RoleUser, Text: "one two three"},
		{Role: store.RoleAssistant, Text: "four five"},
		{Role: store.RoleUser, Text: "six"},
		{Role: store.RoleAssistant, Text: "seven eight nine ten"},
	}
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"no limit keeps all", 0, 4},
		{"everything fits", 100, 4},
		{"drops oldest and leading assistant", 14, 2},
		{"ceiling below newest message", 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trim(msgs, wordCounter{}, tt.limit)
			require.Len(t, got, tt.want)
			if tt.limit > 0 {
				assert.LessOrEqual(t, Tokens(got, wordCounter{}), tt.limit)
			}
			if len(got) > 0 {
				assert.Equal(t, store.RoleUser, got[0].Role)
			}
		})
	}
}

func TestIsRestart(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	threshold := 2 * time.Hour
	tests := []struct {
		name  string
		idle  time.Duration
		count int
		want  bool
	}{
		{"119 minutes", 119 * time.Minute, 3, false},
		{"121 minutes", 121 * time.Minute, 3, true},
		{"empty session", 10 * time.Hour, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &store.Session{MessageCount: tt.count, UpdatedAt: now.Add(-tt.idle)}
			assert.Equal(t, tt.want, IsRestart(s, now, threshold))
		})
	}
	assert.False(t, IsRestart(nil, now, threshold))
}

func TestRecordTurnAndReload(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	queue := &recordingQueue{}
	m := newManager(durable, queue, &fakeLLM{}, Config{TokenLimit: 1000})

	m.RecordTurn(ctx, "t1", "u1", "s1", "What is osmosis?", "Water moving across a membrane.")
	m.RecordTurn(ctx, "t2", "u1", "s1", "What is osmosis?", "Water moving across a membrane.")

	tc := m.LoadTurnContext(ctx, "u1", "s1")
	require.Len(t, tc.History, 4)
	assert.Equal(t, store.RoleUser, tc.History[0].Role)
	require.Len(t, queue.events, 2)
	assert.Equal(t, TaskPersistTurn, queue.events[0].EventType())

	var task PersistTurnTask
	require.NoError(t, DecodeTask(queue.events[0].Payload(), &task))
	assert.Equal(t, "t1", task.TurnID)
	require.Len(t, task.Messages, 2)
	assert.Equal(t, "t1:user", task.Messages[0].MessageKey)
	assert.Equal(t, "t1:assistant", task.Messages[1].MessageKey)
}

func TestBufferSkipsConsecutiveDuplicate(t *testing.T) {
	ctx := context.Background()
	m := newManager(newFakeDurable(), &recordingQueue{}, &fakeLLM{}, Config{})

	m.appendBuffer(ctx, "s1", store.RoleUser, "hello")
	m.appendBuffer(ctx, "s1", store.RoleUser, "hello")

	raw, err := m.cache.ListRange(ctx, BufferKey("s1"))
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestPersistTurnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	m := newManager(durable, &recordingQueue{}, &fakeLLM{}, Config{})

	task := PersistTurnTask{TurnID: "t1", SessionID: "s1", UserID: "u1", Messages: []PersistedMessage{
		{Role: store.RoleUser, Text: "hi", MessageKey: "t1:user"},
		{Role: store.RoleAssistant, Text: "hello", MessageKey: "t1:assistant"},
	}}
	require.NoError(t, m.PersistTurn(ctx, task))
	require.NoError(t, m.PersistTurn(ctx, task))

	msgs, _ := durable.RecentMessages(ctx, "s1", 100)
	assert.Len(t, msgs, 2)
}

func TestPersistTurnSchedulesSummary(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	queue := &recordingQueue{}
	m := newManager(durable, queue, &fakeLLM{}, Config{SummaryEvery: 4})

	for i, id := range []string{"a", "b"} {
		err := m.PersistTurn(ctx, PersistTurnTask{TurnID: id, SessionID: "s1", UserID: "u1", Messages: []PersistedMessage{
			{Role: store.RoleUser, Text: "q" + id, MessageKey: MessageKey(id, store.RoleUser)},
			{Role: store.RoleAssistant, Text: "a" + id, MessageKey: MessageKey(id, store.RoleAssistant)},
		}})
		require.NoError(t, err)
		if i == 0 {
			assert.Empty(t, queue.events)
		}
	}
	require.Len(t, queue.events, 1)
	assert.Equal(t, TaskSummarizeSession, queue.events[0].EventType())
}

func TestPersistTurnPropagatesStoreError(t *testing.T) {
	durable := newFakeDurable()
	durable.appendErr = errors.New("db down")
	m := newManager(durable, &recordingQueue{}, &fakeLLM{}, Config{})
	assert.Error(t, m.PersistTurn(context.Background(), PersistTurnTask{TurnID: "t", SessionID: "s"}))
}

func TestLoadTurnContextReseedsBufferAndFlagsRestart(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	_, err := durable.AppendMessages(ctx, "u1", "s1", []PersistedMessage{
		{Role: store.RoleUser, Text: "old question", MessageKey: "x:user"},
		{Role: store.RoleAssistant, Text: "old answer", MessageKey: "x:assistant"},
	})
	require.NoError(t, err)

	later := func() time.Time { return time.Now().Add(3 * time.Hour) }
	m := newManager(durable, &recordingQueue{}, &fakeLLM{}, Config{TokenLimit: 1000}, WithClock(later))

	tc := m.LoadTurnContext(ctx, "u1", "s1")
	assert.True(t, tc.IsRestart)
	require.Len(t, tc.History, 2)

	raw, err := m.cache.ListRange(ctx, BufferKey("s1"))
	require.NoError(t, err)
	assert.Len(t, raw, 2)
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *fakeDurable {
		d := newFakeDurable()
		_, err := d.AppendMessages(ctx, "u1", "s1", []PersistedMessage{
			{Role: store.RoleUser, Text: "I'm studying cells", MessageKey: "k1"},
			{Role: store.RoleAssistant, Text: "Great", MessageKey: "k2"},
		})
		require.NoError(t, err)
		return d
	}

	t.Run("stores summary and releases lock", func(t *testing.T) {
		d := seed(t)
		p := &fakeLLM{reply: "Student studies cells."}
		require.NoError(t, newManager(d, &recordingQueue{}, p, Config{}).Summarize(ctx, "s1"))
		assert.Equal(t, "Student studies cells.", d.sessions["s1"].Summary)
		assert.False(t, d.locked["s1"])
		assert.Contains(t, p.prompt, "user: I'm studying cells")
	})

	t.Run("records background usage for the next turn", func(t *testing.T) {
		d := seed(t)
		m := newManager(d, &recordingQueue{}, &fakeLLM{reply: "Summary."}, Config{}, WithUsageStore(memcache.NewFastCache()))
		require.NoError(t, m.Summarize(ctx, "s1"))
		require.NoError(t, m.Summarize(ctx, "s1"))

		assert.Equal(t, store.Usage{LLMCalls: 2, InputTokens: 80, OutputTokens: 24}, m.TakeBackgroundUsage(ctx, "s1"))
		assert.Equal(t, store.Usage{}, m.TakeBackgroundUsage(ctx, "s1"))
	})

	t.Run("releases lock on failure", func(t *testing.T) {
		d := seed(t)
		err := newManager(d, &recordingQueue{}, &fakeLLM{err: errors.New("llm down")}, Config{}).Summarize(ctx, "s1")
		assert.Error(t, err)
		assert.False(t, d.locked["s1"])
	})

	t.Run("skips when another worker holds the lock", func(t *testing.T) {
		d := seed(t)
		d.locked["s1"] = true
		p := &fakeLLM{reply: "x"}
		require.NoError(t, newManager(d, &recordingQueue{}, p, Config{}).Summarize(ctx, "s1"))
		assert.Empty(t, p.prompt)
		assert.True(t, d.locked["s1"])
	})
}
