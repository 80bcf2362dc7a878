package react

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/tools"
	"edu-chatbot-be/pkg/store"

	"golang.org/x/sync/errgroup"
)

const module = "REACT"

const (
	FallbackMessage = "I couldn't find a definitive answer in the curriculum materials. " +
		"Could you please provide more details or rephrase your question?"

	synthesisPrompt = "You reached the maximum number of thought steps. Based on the information you collected so far, " +
		"provide the most complete answer possible. If you still don't have enough info, be honest but helpful."

	deferredWebSearch = "ERROR: Web search cannot be used in parallel with 'retrieve_documents'. " +
		"Please review the results of the curriculum search below first. " +
		"If they are insufficient, you may use 'web_search' in the NEXT turn."
)

type Config struct {
	MaxIterations int
	MaxTokens     int
}

// Prefill is a tool result obtained before the loop starts.
type Prefill struct {
	Tool        string
	Args        map[string]interface{}
	Observation tools.Observation
}

type Input struct {
	SystemPrompt string
	History      []llm.Message
	Query        string
	Summary      string
	Prefilled    []Prefill
	// Filters replace whatever filters the model passes to the retrieval tool.
	Filters map[string]interface{}
	// EnforceSequential defers web_search when it shares a batch with retrieve_documents.
	EnforceSequential bool
}

// Step is one executed (or prefilled) tool call.
type Step struct {
	Iteration   int
	Tool        string
	Args        map[string]interface{}
	Observation string
	Documents   []store.Document
	Duration    time.Duration
	Err         string
}

type Result struct {
	Answer      string
	Trace       []Step
	Iterations  int
	Usage       store.Usage
	Synthesized bool
	Fallback    bool
}

type Loop struct {
	provider llm.LLMProvider
	registry *tools.Registry
	cfg      Config
	logger   logger.ILogger
}

func NewLoop(provider llm.LLMProvider, registry *tools.Registry, cfg Config, logger logger.ILogger) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	return &Loop{provider: provider, registry: registry, cfg: cfg, logger: logger}
}

// Run drives reason/act/observe until the model answers without tool calls
// or the iteration bound is hit. LLM errors propagate; tool errors become
// observations.
func (l *Loop) Run(ctx context.Context, in Input) (*Result, error) {
	res := &Result{}
	msgs := l.initialMessages(in, res)
	defs := l.registry.Definitions()

	for i := 1; i <= l.cfg.MaxIterations; i++ {
		res.Iterations = i

		opts := []llm.Option{llm.WithTools(defs)}
		if l.cfg.MaxTokens > 0 {
			opts = append(opts, llm.WithMaxTokens(l.cfg.MaxTokens))
		}
		resp, err := l.provider.Chat(ctx, msgs, opts...)
		if err != nil {
			return res, fmt.Errorf("reasoning step %d: %w", i, err)
		}
		res.Usage = res.Usage.Add(usageOf(resp))

		if len(resp.ToolCalls) == 0 {
			res.Answer = strings.TrimSpace(resp.Text)
			if res.Answer == "" {
				res.Answer = FallbackMessage
				res.Fallback = true
			}
			l.logger.Info(module, "Final answer", map[string]interface{}{"iterations": i, "steps": len(res.Trace)})
			return res, nil
		}

		calls := withIDs(resp.ToolCalls)
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Text, ToolCalls: calls})

		steps := l.executeBatch(ctx, i, calls, in)
		for j, s := range steps {
			res.Trace = append(res.Trace, s)
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: s.Observation, ToolCallID: calls[j].ID})
		}
	}

	if !hasUsableObservation(res.Trace) {
		l.logger.Warn(module, "Iteration limit reached with nothing usable", map[string]interface{}{"iterations": res.Iterations})
		res.Answer = FallbackMessage
		res.Fallback = true
		return res, nil
	}

	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: synthesisPrompt})
	opts := []llm.Option{}
	if l.cfg.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(l.cfg.MaxTokens))
	}
	resp, err := l.provider.Chat(ctx, msgs, opts...)
	if err != nil {
		return res, fmt.Errorf("synthesis: %w", err)
	}
	res.Usage = res.Usage.Add(usageOf(resp))
	res.Synthesized = true
	res.Answer = strings.TrimSpace(resp.Text)
	if res.Answer == "" {
		res.Answer = FallbackMessage
		res.Fallback = true
	}
	l.logger.Info(module, "Synthesized answer after iteration limit", map[string]interface{}{"steps": len(res.Trace)})
	return res, nil
}

func (l *Loop) initialMessages(in Input, res *Result) []llm.Message {
	system := in.SystemPrompt
	if strings.TrimSpace(in.Summary) != "" {
		system += "\n\nCONVERSATION SUMMARY:\n" + in.Summary
	}

	msgs := make([]llm.Message, 0, len(in.History)+4)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	msgs = append(msgs, in.History...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: in.Query})

	if len(in.Prefilled) == 0 {
		return msgs
	}

	calls := make([]llm.ToolCall, len(in.Prefilled))
	for i, p := range in.Prefilled {
		args, _ := json.Marshal(p.Args)
		calls[i] = llm.ToolCall{ID: newCallID(), Name: p.Tool, Arguments: string(args)}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
	for i, p := range in.Prefilled {
		msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: p.Observation.Text, ToolCallID: calls[i].ID})
		res.Trace = append(res.Trace, Step{
			Iteration:   0,
			Tool:        p.Tool,
			Args:        p.Args,
			Observation: p.Observation.Text,
			Documents:   p.Observation.Documents,
		})
	}
	return msgs
}

func (l *Loop) executeBatch(ctx context.Context, iteration int, calls []llm.ToolCall, in Input) []Step {
	steps := make([]Step, len(calls))

	deferWeb := false
	if in.EnforceSequential {
		var hasRetrieve, hasWeb bool
		for _, c := range calls {
			hasRetrieve = hasRetrieve || c.Name == tools.RetrieveDocuments
			hasWeb = hasWeb || c.Name == tools.WebSearch
		}
		deferWeb = hasRetrieve && hasWeb
	}

	var g errgroup.Group
	for i, call := range calls {
		i, call := i, call
		args, parseErr := parseArgs(call.Arguments)
		if call.Name == tools.RetrieveDocuments {
			if len(in.Filters) > 0 {
				args["filters"] = in.Filters
			} else {
				delete(args, "filters")
			}
		}
		steps[i] = Step{Iteration: iteration, Tool: call.Name, Args: args}

		if parseErr != nil {
			steps[i].Err = parseErr.Error()
			steps[i].Observation = "Error: " + parseErr.Error()
			continue
		}
		if deferWeb && call.Name == tools.WebSearch {
			steps[i].Observation = deferredWebSearch
			continue
		}

		g.Go(func() error {
			steps[i] = l.execute(ctx, steps[i])
			return nil
		})
	}
	_ = g.Wait()
	return steps
}

func (l *Loop) execute(ctx context.Context, s Step) (out Step) {
	start := time.Now()
	out = s
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Sprint(r)
			out.Observation = "Error: " + out.Err
		}
		out.Duration = time.Since(start)
	}()

	tool, ok := l.registry.Get(s.Tool)
	if !ok {
		out.Err = fmt.Sprintf("unknown tool '%s'", s.Tool)
		out.Observation = "Error: " + out.Err
		return out
	}

	obs, err := tool.Execute(ctx, s.Args)
	if err != nil {
		l.logger.Warn(module, "Tool execution failed", map[string]interface{}{"tool": s.Tool, "error": err.Error()})
		out.Err = err.Error()
		out.Observation = "Error: " + err.Error()
		return out
	}
	out.Observation = obs.Text
	out.Documents = obs.Documents
	return out
}

func parseArgs(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{}, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return tools.SanitizeArgs(args), nil
}

func withIDs(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = newCallID()
		}
		out[i] = c
	}
	return out
}

func newCallID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "call_" + hex.EncodeToString(b)
}

func usageOf(r *llm.Response) store.Usage {
	return store.Usage{LLMCalls: 1, InputTokens: r.Usage.InputTokens, OutputTokens: r.Usage.OutputTokens}
}

// IsUsable reports whether an observation carries information worth
// synthesizing from.
func IsUsable(observation string) bool {
	o := strings.TrimSpace(observation)
	switch {
	case o == "":
		return false
	case strings.HasPrefix(o, "Error:"), strings.HasPrefix(o, "ERROR:"):
		return false
	case strings.HasPrefix(o, tools.NoDocsPrefix):
		return false
	case strings.HasPrefix(o, "Web search failed"):
		return false
	}
	return true
}

func hasUsableObservation(trace []Step) bool {
	for _, s := range trace {
		if IsUsable(s.Observation) {
			return true
		}
	}
	return false
}
