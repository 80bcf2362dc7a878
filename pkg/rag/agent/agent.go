package agent

import (
	"context"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/citation"
	"edu-chatbot-be/pkg/rag/language"
	"edu-chatbot-be/pkg/rag/persona"
	"edu-chatbot-be/pkg/rag/react"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/rag/tools"
	"edu-chatbot-be/pkg/store"
)

const module = "AGENT"

// DefaultMinCitationScore is the lowest score a cited document may have.
const DefaultMinCitationScore = 0.4

type Config struct {
	MaxIterations int
	MaxTokens     int
	MinScore      float64
}

type Request struct {
	Role  string
	Mode  string
	Grade string
	// Query is the English (translated) query.
	Query           string
	TargetLanguage  string
	History         []store.Message
	Summary         string
	SessionMetadata map[string]string
	Subjects        []string
	Intent          retrieval.Intent
	Quality         retrieval.Quality
	Filters         map[string]interface{}
	Prefilled       []react.Prefill
	// Correction is validator feedback for a second attempt.
	Correction string
}

type Response struct {
	Answer     string
	Citations  []store.Citation
	Trace      []react.Step
	Iterations int
	Usage      store.Usage
	Persona    string
	Fallback   bool
}

// Agent is the single educational agent. Role, interaction mode and grade
// only change the persona it resolves, never the code path.
type Agent struct {
	provider  llm.LLMProvider
	catalog   *persona.Catalog
	builder   *persona.Builder
	retriever tools.Retriever
	extra     *tools.Registry
	cfg       Config
	logger    logger.ILogger
}

// NewAgent builds the agent. extra holds every non-retrieval tool the
// deployment offers; each persona picks its own subset.
func NewAgent(provider llm.LLMProvider, catalog *persona.Catalog, retriever tools.Retriever, extra *tools.Registry, cfg Config, logger logger.ILogger) *Agent {
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinCitationScore
	}
	if extra == nil {
		extra = tools.NewRegistry()
	}
	return &Agent{
		provider:  provider,
		catalog:   catalog,
		builder:   persona.NewBuilder(),
		retriever: retriever,
		extra:     extra,
		cfg:       cfg,
		logger:    logger,
	}
}

func (a *Agent) registryFor(p persona.Persona, intent retrieval.Intent) *tools.Registry {
	all := tools.NewRegistry(tools.NewRetrievalTool(a.retriever, a.cfg.MinScore, intent))
	for _, t := range a.extra.Tools() {
		all.Register(t)
	}
	return all.Subset(p.Tools...)
}

func (a *Agent) Answer(ctx context.Context, req Request) Response {
	p := a.catalog.Resolve(req.Role, req.Mode, req.Grade)
	registry := a.registryFor(p, req.Intent)

	target := req.TargetLanguage
	if target == "" {
		target = language.English
	}
	system := a.builder.SystemPrompt(p, persona.PromptContext{
		Subjects:        req.Subjects,
		TargetLanguage:  language.Name(target),
		Quality:         string(req.Quality),
		SessionMetadata: req.SessionMetadata,
		Correction:      req.Correction,
	})

	var prefilled []react.Prefill
	for _, pf := range req.Prefilled {
		if _, ok := registry.Get(pf.Tool); ok {
			prefilled = append(prefilled, pf)
		}
	}

	a.logger.Info(module, "Running agent", map[string]interface{}{
		"persona":    p.Name,
		"role":       p.Role,
		"mode":       p.Mode,
		"grade":      p.Grade,
		"tools":      registry.Names(),
		"prefilled":  len(prefilled),
		"correction": req.Correction != "",
	})

	loop := react.NewLoop(a.provider, registry, react.Config{MaxIterations: a.cfg.MaxIterations, MaxTokens: a.cfg.MaxTokens}, a.logger)
	res, err := loop.Run(ctx, react.Input{
		SystemPrompt:      system,
		History:           ToLLMHistory(req.History),
		Query:             req.Query,
		Summary:           req.Summary,
		Prefilled:         prefilled,
		Filters:           req.Filters,
		EnforceSequential: p.EnforceSequential,
	})
	if err != nil {
		a.logger.Error(module, "Agent execution failed", map[string]interface{}{"persona": p.Name, "error": err.Error()})
		return Response{Answer: react.FallbackMessage, Persona: p.Name, Fallback: true}
	}

	out := Response{
		Answer:     res.Answer,
		Trace:      res.Trace,
		Iterations: res.Iterations,
		Usage:      res.Usage,
		Persona:    p.Name,
		Fallback:   res.Fallback,
	}
	if !res.Fallback {
		out.Citations = citation.Reconcile(Evidence(res.Trace), a.cfg.MinScore)
	}
	a.logger.Info(module, "Agent finished", map[string]interface{}{
		"iterations": res.Iterations,
		"citations":  len(out.Citations),
		"llm_calls":  res.Usage.LLMCalls,
	})
	return out
}

// Evidence converts a reasoning trace into citation evidence, step by step.
func Evidence(trace []react.Step) []citation.Evidence {
	out := make([]citation.Evidence, 0, len(trace))
	for _, s := range trace {
		out = append(out, citation.Evidence{Tool: s.Tool, Observation: s.Observation, Documents: s.Documents})
	}
	return out
}

func ToLLMHistory(history []store.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == store.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Text})
	}
	return out
}
