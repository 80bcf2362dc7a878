package react

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/tools"
	"edu-chatbot-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedLLM replays responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  [][]llm.Message
	toolsSeen []int
}

func (s *scriptedLLM) Chat(_ context.Context, msgs []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, append([]llm.Message(nil), msgs...))
	s.toolsSeen = append(s.toolsSeen, len(llm.ApplyOptions(opts...).Tools))
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.Response{Text: "done"}, nil
	}
	r := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return r, nil
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.Option) (*llm.Response, error) {
	return s.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

type fakeTool struct {
	name  string
	calls int32
	obs   tools.Observation
	err   error
	args  map[string]interface{}
	mu    sync.Mutex
	delay time.Duration
}

func (f *fakeTool) Name() string                       { return f.name }
func (f *fakeTool) Description() string                { return f.name }
func (f *fakeTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }

func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) (tools.Observation, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.args = args
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.obs, f.err
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestLoopAnswersWithoutTools(t *testing.T) {
	p := &scriptedLLM{responses: []*llm.Response{{Text: "The mitochondria.", Usage: llm.Usage{InputTokens: 10, OutputTokens: 3}}}}
	loop := NewLoop(p, tools.NewRegistry(), Config{MaxIterations: 5}, logger.NewNopLogger())

	res, err := loop.Run(context.Background(), Input{SystemPrompt: "sys", Query: "q", Summary: "earlier we discussed cells"})
	require.NoError(t, err)
	assert.Equal(t, "The mitochondria.", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, store.Usage{LLMCalls: 1, InputTokens: 10, OutputTokens: 3}, res.Usage)
	assert.Contains(t, p.requests[0][0].Content, "CONVERSATION SUMMARY:\nearlier we discussed cells")
}

func TestLoopExecutesToolsAndOverridesFilters(t *testing.T) {
	retrieve := &fakeTool{name: tools.RetrieveDocuments, obs: tools.Observation{
		Text:      "Source 1 [Score: 0.90]: ATP",
		Documents: []store.Document{{ID: "d1", Score: 0.9}},
	}}
	p := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("c1", tools.RetrieveDocuments, `{"query":"atp","filters":{"subject":"made-up"},"empty":""}`)}},
		{Text: "ATP is energy."},
	}}
	loop := NewLoop(p, tools.NewRegistry(retrieve), Config{}, logger.NewNopLogger())

	res, err := loop.Run(context.Background(), Input{
		Query:   "what is atp",
		Filters: map[string]interface{}{"class_id": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "ATP is energy.", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, "d1", res.Trace[0].Documents[0].ID)
	assert.Equal(t, map[string]interface{}{"query": "atp", "filters": map[string]interface{}{"class_id": 10}}, retrieve.args)

	second := p.requests[1]
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
}

func TestLoopRunsToolCallsConcurrently(t *testing.T) {
	a := &fakeTool{name: "a", obs: tools.Observation{Text: "A"}, delay: 100 * time.Millisecond}
	b := &fakeTool{name: "b", obs: tools.Observation{Text: "B"}, delay: 100 * time.Millisecond}
	p := &scriptedLLM{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{toolCall("1", "a", `{}`), toolCall("2", "b", `{}`)}},
		{Text: "ok"},
	}}
	loop := NewLoop(p, tools.NewRegistry(a, b), Config{}, logger.NewNopLogger())

	start := time.Now()
	res, err := loop.Run(context.Background(), Input{Query: "q"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
	require.Len(t, res.Trace, 2)
	assert.Equal(t, "A", res.Trace[0].Observation)
	assert.Equal(t, "B", res.Trace[1].Observation)
}

func TestLoopSequentialPolicyDefersWebSearch(t *testing.T) {
	retrieve := &fakeTool{name: tools.RetrieveDocuments, obs: tools.Observation{Text: "Source 1 [Score: 0.90]: x"}}
	web := &fakeTool{name: tools.WebSearch, obs: tools.Observation{Text: "web"}}
	batch := []llm.ToolCall{
		toolCall("1", tools.RetrieveDocuments, `{"query":"x"}`),
		toolCall("2", tools.WebSearch, `{"query":"x"}`),
	}

	tests := []struct {
		name       string
		sequential bool
		webCalls   int32
	}{
		{name: "enforced", sequential: true, webCalls: 0},
		{name: "not enforced", sequential: false, webCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			atomic.StoreInt32(&web.calls, 0)
			p := &scriptedLLM{responses: []*llm.Response{{ToolCalls: batch}, {Text: "ok"}}}
			loop := NewLoop(p, tools.NewRegistry(retrieve, web), Config{}, logger.NewNopLogger())
			res, err := loop.Run(context.Background(), Input{Query: "q", EnforceSequential: tt.sequential})
			require.NoError(t, err)
			assert.Equal(t, tt.webCalls, atomic.LoadInt32(&web.calls))
			if tt.sequential {
				assert.True(t, strings.HasPrefix(res.Trace[1].Observation, "ERROR: Web search cannot be used in parallel"))
			}
		})
	}
}

func TestLoopTerminationProperties(t *testing.T) {
	always := llm.Response{ToolCalls: []llm.ToolCall{toolCall("", "t", `{"query":"x"}`)}}

	t.Run("succeeding tool synthesizes within bound", func(t *testing.T) {
		tool := &fakeTool{name: "t", obs: tools.Observation{Text: "some fact"}}
		p := &scriptedLLM{responses: []*llm.Response{&always, &always, &always, {Text: "synthesized"}}}
		loop := NewLoop(p, tools.NewRegistry(tool), Config{MaxIterations: 3}, logger.NewNopLogger())

		res, err := loop.Run(context.Background(), Input{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Iterations)
		assert.True(t, res.Synthesized)
		assert.Equal(t, "synthesized", res.Answer)
		assert.Equal(t, 4, res.Usage.LLMCalls)
		assert.Equal(t, 0, p.toolsSeen[3])
		assert.EqualValues(t, 3, atomic.LoadInt32(&tool.calls))
	})

	t.Run("failing tool ends in fallback", func(t *testing.T) {
		tool := &fakeTool{name: "t", err: errors.New("index down")}
		p := &scriptedLLM{responses: []*llm.Response{&always}}
		loop := NewLoop(p, tools.NewRegistry(tool), Config{MaxIterations: 2}, logger.NewNopLogger())

		res, err := loop.Run(context.Background(), Input{Query: "q"})
		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.Equal(t, FallbackMessage, res.Answer)
		assert.Equal(t, 2, res.Usage.LLMCalls)
		assert.Equal(t, "Error: index down", res.Trace[0].Observation)
	})

	t.Run("unknown tool becomes observation", func(t *testing.T) {
		p := &scriptedLLM{responses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{toolCall("1", "nope", `{}`)}},
			{Text: "fine"},
		}}
		loop := NewLoop(p, tools.NewRegistry(), Config{}, logger.NewNopLogger())
		res, err := loop.Run(context.Background(), Input{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, "Error: unknown tool 'nope'", res.Trace[0].Observation)
		assert.Equal(t, "fine", res.Answer)
	})

	t.Run("malformed arguments become observation", func(t *testing.T) {
		tool := &fakeTool{name: "t"}
		p := &scriptedLLM{responses: []*llm.Response{
			{ToolCalls: []llm.ToolCall{toolCall("1", "t", `{bad`)}},
			{Text: "fine"},
		}}
		loop := NewLoop(p, tools.NewRegistry(tool), Config{}, logger.NewNopLogger())
		res, err := loop.Run(context.Background(), Input{Query: "q"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.Trace[0].Observation, "Error: invalid tool arguments"))
		assert.Zero(t, atomic.LoadInt32(&tool.calls))
	})
}

func TestLoopPropagatesLLMErrors(t *testing.T) {
	p := &scriptedLLM{err: errors.New("llm unreachable")}
	loop := NewLoop(p, tools.NewRegistry(), Config{}, logger.NewNopLogger())
	_, err := loop.Run(context.Background(), Input{Query: "q"})
	assert.ErrorContains(t, err, "llm unreachable")
}

func TestLoopSplicesPrefilledObservations(t *testing.T) {
	p := &scriptedLLM{responses: []*llm.Response{{Text: "answer"}}}
	loop := NewLoop(p, tools.NewRegistry(), Config{}, logger.NewNopLogger())

	res, err := loop.Run(context.Background(), Input{
		SystemPrompt: "sys",
		History:      []llm.Message{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "hello"}},
		Query:        "q",
		Prefilled: []Prefill{{
			Tool:        tools.RetrieveDocuments,
			Args:        map[string]interface{}{"query": "q"},
			Observation: tools.Observation{Text: "Source 1 [Score: 0.90]: x", Documents: []store.Document{{ID: "d1", Score: 0.9}}},
		}},
	})
	require.NoError(t, err)

	msgs := p.requests[0]
	require.Len(t, msgs, 6)
	assert.Equal(t, llm.RoleUser, msgs[3].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[4].Role)
	require.Len(t, msgs[4].ToolCalls, 1)
	assert.Regexp(t, `^call_[0-9a-f]{8}$`, msgs[4].ToolCalls[0].ID)
	assert.Equal(t, msgs[4].ToolCalls[0].ID, msgs[5].ToolCallID)

	require.Len(t, res.Trace, 1)
	assert.Equal(t, 0, res.Trace[0].Iteration)
	assert.Equal(t, "d1", res.Trace[0].Documents[0].ID)
}

func TestIsUsable(t *testing.T) {
	tests := map[string]bool{
		"":                               false,
		"Error: boom":                    false,
		"NO_DOCS_FOUND: nothing":         false,
		"Web search failed: x":           false,
		"Source 1 [Score: 0.9]: content": true,
		"WEB_SEARCH_OBSERVATION for 'x'": true,
	}
	for obs, want := range tests {
		assert.Equal(t, want, IsUsable(obs), obs)
	}
}
