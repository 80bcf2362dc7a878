package orchestrator

import (
	"context"
	"strings"
	"time"

	"edu-chatbot-be/pkg/rag/agent"
	"edu-chatbot-be/pkg/rag/intent"
	"edu-chatbot-be/pkg/rag/persona"
	"edu-chatbot-be/pkg/rag/react"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/rag/tools"
	"edu-chatbot-be/pkg/rag/validation"
	"edu-chatbot-be/pkg/store"

	"golang.org/x/sync/errgroup"
)

// speculativeIntent is the intent a speculative retrieval runs with before
// classification is known.
const speculativeIntent = retrieval.IntentConceptExplanation

func (o *Orchestrator) loadMemory(ctx context.Context, s TurnState) Patch {
	if o.deps.Memory == nil {
		return Patch{}
	}
	tc := o.deps.Memory.LoadTurnContext(ctx, s.UserID, s.SessionID)
	return Patch{
		History:   ptr(tc.History),
		Summary:   ptr(tc.Summary),
		IsRestart: ptr(tc.IsRestart),
	}
}

func (o *Orchestrator) classify(ctx context.Context, s TurnState) Patch {
	var (
		c    intent.Classification
		spec *speculation
	)

	_, conversational := intent.Heuristic(s.Query)
	if o.cfg.ParallelFetch && !conversational && o.deps.Retriever != nil {
		spec = &speculation{Query: s.Query, Intent: speculativeIntent}
		var g errgroup.Group
		g.Go(func() error {
			c = o.deps.Classifier.Classify(ctx, s.Query, s.History)
			return nil
		})
		g.Go(func() error {
			spec.Docs = o.retrieveWithTimeout(ctx, s.Query, s.Filters, speculativeIntent)
			return nil
		})
		_ = g.Wait()
	} else {
		c = o.deps.Classifier.Classify(ctx, s.Query, s.History)
	}

	translated := strings.TrimSpace(c.TranslatedQuery)
	if translated == "" {
		translated = s.Query
	}
	if c.Intent == "" {
		c.Intent = retrieval.IntentConceptExplanation
	}

	o.logger.Debug(module, "Query classified", map[string]interface{}{
		"session_id":  s.SessionID,
		"query_type":  c.QueryType,
		"intent":      c.Intent,
		"confidence":  c.Confidence,
		"speculative": spec != nil,
	})

	return Patch{
		QueryType:       ptr(c.QueryType),
		Intent:          ptr(c.Intent),
		TranslatedQuery: ptr(translated),
		Subjects:        ptr(c.Subjects),
		SessionMetadata: c.MergeMetadata(s.SessionMetadata),
		Usage:           c.Usage,
		speculative:     spec,
	}
}

func (o *Orchestrator) conversational(ctx context.Context, s TurnState) Patch {
	reply, usage := o.deps.Conversational.Reply(ctx, agent.ConversationalRequest{
		Query:          s.Query,
		TargetLanguage: s.Language,
		History:        s.History,
		Summary:        s.Summary,
		IsRestart:      s.IsRestart,
	})
	return Patch{
		Response: ptr(reply),
		Fallback: ptr(false),
		Usage:    usage,
	}
}

func (o *Orchestrator) prepareEducational(_ context.Context, s TurnState) Patch {
	subjects := s.Subjects
	if len(subjects) == 0 {
		if subject := s.SessionMetadata["subject"]; subject != "" {
			subjects = []string{subject}
		}
	}
	return Patch{Subjects: ptr(subjects)}
}

// retrieve runs (or reuses) proactive retrieval and turns it into prefilled
// observations, adding web search when retrieval looks weak or the query
// asks for recent information.
func (o *Orchestrator) retrieve(ctx context.Context, s TurnState) Patch {
	start := time.Now()
	timings := map[string]time.Duration{}
	query := s.TranslatedQuery
	webEnabled := o.cfg.WebSearchEnabled && o.deps.WebSearch != nil

	var (
		docs     []store.Document
		webObs   string
		searched bool
	)

	if sp := s.speculative; sp != nil && sameQuery(sp.Query, query) && sp.Intent == s.Intent {
		docs = sp.Docs
		o.logger.Debug(module, "Reusing speculative retrieval", map[string]interface{}{
			"session_id": s.SessionID,
			"documents":  len(docs),
		})
	} else {
		if s.speculative != nil {
			o.logger.Debug(module, "Discarding speculative retrieval", map[string]interface{}{
				"session_id": s.SessionID,
				"query":      query,
			})
		}
		anticipate := webEnabled && retrieval.HasRecencyKeyword(s.Query)
		var g errgroup.Group
		g.Go(func() error {
			docs = o.retrieveWithTimeout(ctx, query, s.Filters, s.Intent)
			return nil
		})
		if anticipate {
			searched = true
			g.Go(func() error {
				webObs = o.webSearch(ctx, query)
				return nil
			})
		}
		_ = g.Wait()
	}
	timings["retrieval"] = time.Since(start)

	if !searched && webEnabled && retrieval.HasRecencyKeyword(s.Query) {
		searched = true
		webObs = o.webSearch(ctx, query)
	}

	visible := retrieval.Visible(docs, o.cfg.MinScore)
	quality := retrieval.Assess(docs, o.cfg.Thresholds)

	if !searched && webEnabled && retrieval.NeedsWebSearch(s.Query, quality) {
		elapsed := time.Since(start)
		budget := time.Duration(float64(o.cfg.TurnBudget) * o.cfg.ReactiveWebSearchBudget)
		if elapsed > budget {
			o.logger.Warn(module, "Skipping reactive web search, retrieval used the budget", map[string]interface{}{
				"session_id": s.SessionID,
				"elapsed":    elapsed.String(),
				"budget":     budget.String(),
			})
		} else {
			webStart := time.Now()
			webObs = o.webSearch(ctx, query)
			timings["web_search"] = time.Since(webStart)
		}
	}

	prefilled := []react.Prefill{{
		Tool:        tools.RetrieveDocuments,
		Args:        map[string]interface{}{"query": query},
		Observation: tools.RetrievalObservation(query, visible),
	}}
	if react.IsUsable(webObs) {
		prefilled = append(prefilled, react.Prefill{
			Tool:        tools.WebSearch,
			Args:        map[string]interface{}{"query": query},
			Observation: tools.Observation{Text: webObs},
		})
	}

	o.logger.Info(module, "Retrieval finished", map[string]interface{}{
		"session_id": s.SessionID,
		"documents":  len(docs),
		"visible":    len(visible),
		"quality":    quality,
		"web":        len(prefilled) > 1,
	})

	return Patch{
		Documents: ptr(visible),
		Quality:   ptr(quality),
		Prefilled: ptr(prefilled),
		Timings:   timings,
	}
}

func (o *Orchestrator) retrieveWithTimeout(ctx context.Context, query string, filters map[string]interface{}, in retrieval.Intent) []store.Document {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RetrievalTimeout)
	defer cancel()
	return o.deps.Retriever.Retrieve(ctx, query, filters, in)
}

func (o *Orchestrator) webSearch(ctx context.Context, query string) string {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.WebSearchTimeout)
	defer cancel()
	return o.deps.WebSearch.Search(ctx, query)
}

func (o *Orchestrator) routeByRole(_ context.Context, s TurnState) Patch {
	route := RouteStudent
	switch {
	case strings.EqualFold(s.Role, persona.RoleTeacher):
		route = RouteTeacher
	case strings.EqualFold(s.Mode, persona.ModeInteractive):
		route = RouteInteractive
	}
	return Patch{Route: ptr(route)}
}

func (o *Orchestrator) educational(ctx context.Context, s TurnState) Patch {
	role, mode := persona.RoleStudent, persona.ModeStandard
	switch s.Route {
	case RouteTeacher:
		role = persona.RoleTeacher
	case RouteInteractive:
		mode = persona.ModeInteractive
	}

	correction := s.Correction != ""
	res := o.deps.Educational.Answer(ctx, agent.Request{
		Role:            role,
		Mode:            mode,
		Grade:           s.Grade,
		Query:           s.TranslatedQuery,
		TargetLanguage:  s.Language,
		History:         s.History,
		Summary:         s.Summary,
		SessionMetadata: s.SessionMetadata,
		Subjects:        s.Subjects,
		Intent:          s.Intent,
		Quality:         s.Quality,
		Filters:         s.Filters,
		Prefilled:       s.Prefilled,
		Correction:      s.Correction,
	})

	return Patch{
		Response:         ptr(res.Answer),
		Citations:        res.Citations,
		ReplaceCitations: correction,
		Persona:          ptr(res.Persona),
		Iterations:       ptr(res.Iterations),
		Fallback:         ptr(res.Fallback),
		IsCorrection:     ptr(correction),
		Usage:            res.Usage,
	}
}

func (o *Orchestrator) translate(ctx context.Context, s TurnState) Patch {
	if o.deps.Translator == nil || strings.TrimSpace(s.Response) == "" {
		return Patch{}
	}
	text, usage := o.deps.Translator.Translate(ctx, s.Response, s.Language)
	return Patch{Response: ptr(text), Usage: usage}
}

func (o *Orchestrator) validate(ctx context.Context, s TurnState) Patch {
	if o.deps.Validator == nil {
		return Patch{}
	}
	v := o.deps.Validator.Validate(ctx, validation.Request{
		Query:          s.Query,
		Response:       s.Response,
		TargetLanguage: s.Language,
		Subjects:       s.Subjects,
		Documents:      s.Documents,
		Conversational: s.IsConversational(),
		Correction:     s.IsCorrection,
		Fallback:       s.Fallback,
	})

	p := Patch{Verdict: &v, Usage: v.Usage}
	switch {
	case v.NeedsClarification && strings.TrimSpace(v.ClarificationQuestion) != "":
		p.Response = ptr(v.ClarificationQuestion)
		p.Fallback = ptr(true)
		p.ReplaceCitations = true
	case v.Checked && !v.IsValid && !s.IsCorrection && !s.IsConversational():
		p.Correction = ptr(v.Feedback)
	}
	return p
}

func (o *Orchestrator) persist(ctx context.Context, s TurnState) Patch {
	if o.deps.Memory == nil || strings.TrimSpace(s.Response) == "" {
		return Patch{}
	}
	o.deps.Memory.RecordTurn(ctx, s.TurnID, s.UserID, s.SessionID, s.Query, s.Response)
	return Patch{}
}

func sameQuery(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
