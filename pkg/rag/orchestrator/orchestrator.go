package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/rag/agent"
	"edu-chatbot-be/pkg/rag/intent"
	"edu-chatbot-be/pkg/rag/language"
	"edu-chatbot-be/pkg/rag/memory"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/rag/validation"
	"edu-chatbot-be/pkg/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const module = "ORCHESTRATOR"

const tracerName = "edu-chatbot-be/orchestrator"

type Memory interface {
	LoadTurnContext(ctx context.Context, userID, sessionID string) memory.TurnContext
	RecordTurn(ctx context.Context, turnID, userID, sessionID, userText, assistantText string)
}

type Classifier interface {
	Classify(ctx context.Context, query string, history []store.Message) intent.Classification
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, filters map[string]interface{}, intent retrieval.Intent) []store.Document
}

// WebSearcher returns a formatted observation and never fails.
type WebSearcher interface {
	Search(ctx context.Context, query string) string
}

type EducationalAgent interface {
	Answer(ctx context.Context, req agent.Request) agent.Response
}

type ConversationalAgent interface {
	Reply(ctx context.Context, req agent.ConversationalRequest) (string, store.Usage)
}

type Validator interface {
	Validate(ctx context.Context, req validation.Request) validation.Verdict
}

type Translator interface {
	Translate(ctx context.Context, text, target string) (string, store.Usage)
}

type LanguageDetector interface {
	Detect(text string) string
}

type Config struct {
	ParallelFetch    bool
	WebSearchEnabled bool
	MinScore         float64
	Thresholds       retrieval.Thresholds
	// TurnBudget is the outer turn timeout. Reactive web search is skipped
	// once retrieval alone used more than ReactiveWebSearchBudget of it.
	TurnBudget              time.Duration
	ReactiveWebSearchBudget float64
	WebSearchTimeout        time.Duration
	RetrievalTimeout        time.Duration
}

func (c *Config) defaults() {
	if c.MinScore <= 0 {
		c.MinScore = agent.DefaultMinCitationScore
	}
	if c.Thresholds.High <= 0 {
		c.Thresholds.High = 0.85
	}
	if c.Thresholds.Medium <= 0 {
		c.Thresholds.Medium = 0.7
	}
	if c.TurnBudget <= 0 {
		c.TurnBudget = 60 * time.Second
	}
	if c.ReactiveWebSearchBudget <= 0 {
		c.ReactiveWebSearchBudget = 0.25
	}
	if c.WebSearchTimeout <= 0 {
		c.WebSearchTimeout = 15 * time.Second
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = 10 * time.Second
	}
}

type Dependencies struct {
	Memory         Memory
	Classifier     Classifier
	Retriever      Retriever
	WebSearch      WebSearcher
	Educational    EducationalAgent
	Conversational ConversationalAgent
	Validator      Validator
	Translator     Translator
	Detector       LanguageDetector
}

type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	logger logger.ILogger
}

func NewOrchestrator(deps Dependencies, cfg Config, logger logger.ILogger) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}
}

type stepFunc func(ctx context.Context, s TurnState) Patch

// step runs one state inside a span, records its duration and merges its
// patch.
func (o *Orchestrator) step(ctx context.Context, s TurnState, name, timingKey string, fn stepFunc) TurnState {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator."+name)
	span.SetAttributes(
		attribute.String("session_id", s.SessionID),
		attribute.String("turn_id", s.TurnID),
	)
	defer span.End()

	start := time.Now()
	p := fn(ctx, s)
	if p.Timings == nil {
		p.Timings = map[string]time.Duration{}
	}
	p.Timings[timingKey] = time.Since(start)

	next := Merge(s, p)
	next.Path = append(next.Path, name)

	span.SetAttributes(
		attribute.Int("llm_calls", p.Usage.LLMCalls),
		attribute.Int("tokens", p.Usage.Total()),
	)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return next
}

func initialState(req Request, detector LanguageDetector) TurnState {
	s := TurnState{
		Request:         req,
		Language:        strings.ToLower(strings.TrimSpace(req.Language)),
		TranslatedQuery: req.Query,
		SessionMetadata: map[string]string{},
		Timings:         map[string]time.Duration{},
	}
	if s.Language == "" {
		s.Language = language.English
		if detector != nil {
			s.Language = detector.Detect(req.Query)
		}
	}
	for _, key := range []string{"class_id", "class_name", "class_level", "subject", "subject_id", "topics", "chapter", "lecture_id", "teacher_id"} {
		if v, ok := req.Filters[key]; ok {
			if str := scalarString(v); str != "" {
				s.SessionMetadata[key] = str
			}
		}
	}
	return s
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case int, int32, int64:
		return fmt.Sprintf("%d", t)
	}
	return ""
}

// Run drives one turn through the state machine. It only fails when ctx is
// done; every other failure degrades inside a step.
func (o *Orchestrator) Run(ctx context.Context, req Request) (TurnState, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.turn")
	defer span.End()

	s := initialState(req, o.deps.Detector)
	o.logger.Info(module, "Turn started", map[string]interface{}{
		"session_id": req.SessionID,
		"turn_id":    req.TurnID,
		"role":       req.Role,
		"language":   s.Language,
	})

	s = o.step(ctx, s, StateLoadMemory, StateLoadMemory, o.loadMemory)
	if err := ctx.Err(); err != nil {
		return s, err
	}

	s = o.step(ctx, s, StateClassify, StateClassify, o.classify)
	if err := ctx.Err(); err != nil {
		return s, err
	}

	if s.IsConversational() {
		s = o.step(ctx, s, StateConversational, StateConversational, o.conversational)
	} else {
		s = o.step(ctx, s, StatePrepareEducational, StatePrepareEducational, o.prepareEducational)
		s = o.step(ctx, s, StateRetrieve, StateRetrieve, o.retrieve)
		s = o.step(ctx, s, StateRouteByRole, StateRouteByRole, o.routeByRole)
		s = o.step(ctx, s, StateEducationalAgent, StateEducationalAgent, o.educational)
	}
	if err := ctx.Err(); err != nil {
		return s, err
	}

	s = o.step(ctx, s, StateTranslate, StateTranslate, o.translate)
	s = o.step(ctx, s, StateValidate, StateValidate, o.validate)

	if o.needsCorrection(s) {
		o.logger.Warn(module, "Validation failed, retrying once with feedback", map[string]interface{}{
			"session_id": req.SessionID,
			"feedback":   s.Correction,
		})
		s = o.step(ctx, s, StateRouteByRole, StateRouteByRole+"_correction", o.routeByRole)
		s = o.step(ctx, s, StateEducationalAgent, StateEducationalAgent+"_correction", o.educational)
		s = o.step(ctx, s, StateTranslate, StateTranslate+"_correction", o.translate)
		s = o.step(ctx, s, StateValidate, StateValidate+"_correction", o.validate)
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return s, err
	}

	s = o.step(ctx, s, StatePersist, StatePersist, o.persist)
	s.Path = append(s.Path, StateDone)

	span.SetAttributes(
		attribute.String("query_type", string(s.QueryType)),
		attribute.Int("llm_calls", s.Usage.LLMCalls),
		attribute.Int("citations", len(s.Citations)),
	)
	o.logger.Info(module, "Turn completed", map[string]interface{}{
		"session_id": req.SessionID,
		"turn_id":    req.TurnID,
		"path":       strings.Join(s.Path, ">"),
		"llm_calls":  s.Usage.LLMCalls,
		"tokens":     s.Usage.Total(),
		"citations":  len(s.Citations),
	})
	return s, nil
}

// needsCorrection is true for a failed first educational attempt only.
func (o *Orchestrator) needsCorrection(s TurnState) bool {
	return s.Correction != "" && !s.IsCorrection && !s.IsConversational()
}
