package orchestrator

import (
	"time"

	"edu-chatbot-be/pkg/rag/citation"
	"edu-chatbot-be/pkg/rag/intent"
	"edu-chatbot-be/pkg/rag/react"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/rag/validation"
	"edu-chatbot-be/pkg/store"
)

// State names double as timing keys and span names.
const (
	StateLoadMemory         = "load_memory"
	StateClassify           = "classify"
	StateConversational     = "conversational_agent"
	StatePrepareEducational = "prepare_educational"
	StateRetrieve           = "retrieve"
	StateRouteByRole        = "route_by_role"
	StateEducationalAgent   = "educational_agent"
	StateTranslate          = "translate"
	StateValidate           = "validate"
	StatePersist            = "persist"
	StateDone               = "done"
)

const (
	RouteStudent     = "student"
	RouteInteractive = "interactive"
	RouteTeacher     = "teacher"
)

type Request struct {
	TurnID    string
	SessionID string
	UserID    string
	Role      string
	Query     string
	Language  string
	Mode      string
	Grade     string
	Filters   map[string]interface{}
}

// speculation is a retrieval started before classification finished.
type speculation struct {
	Query  string
	Intent retrieval.Intent
	Docs   []store.Document
}

// TurnState is the working record of one turn. Steps read it and return a
// Patch; only Merge writes it.
type TurnState struct {
	Request

	Language        string
	TranslatedQuery string
	QueryType       intent.QueryType
	Intent          retrieval.Intent
	Subjects        []string
	Route           string

	History         []store.Message
	Summary         string
	IsRestart       bool
	SessionMetadata map[string]string

	Quality   retrieval.Quality
	Documents []store.Document
	Prefilled []react.Prefill

	Response     string
	Citations    []store.Citation
	Persona      string
	Iterations   int
	Fallback     bool
	Verdict      *validation.Verdict
	Correction   string
	IsCorrection bool

	Usage   store.Usage
	Timings map[string]time.Duration
	Path    []string

	speculative *speculation
}

func (s TurnState) IsConversational() bool {
	return s.QueryType == intent.Conversational
}

// Patch holds the fields a step changed. Nil pointers and nil maps mean
// "unchanged".
type Patch struct {
	Language        *string
	TranslatedQuery *string
	QueryType       *intent.QueryType
	Intent          *retrieval.Intent
	Subjects        *[]string
	Route           *string

	History   *[]store.Message
	Summary   *string
	IsRestart *bool

	Quality   *retrieval.Quality
	Documents *[]store.Document
	Prefilled *[]react.Prefill

	Response     *string
	Persona      *string
	Iterations   *int
	Fallback     *bool
	Verdict      *validation.Verdict
	Correction   *string
	IsCorrection *bool

	// Citations are unioned by document id unless ReplaceCitations is set.
	Citations        []store.Citation
	ReplaceCitations bool

	// SessionMetadata and Timings shallow-merge, last writer wins per key.
	SessionMetadata map[string]string
	Timings         map[string]time.Duration

	// Usage is added to the running counters.
	Usage store.Usage

	speculative *speculation
}

func ptr[T any](v T) *T {
	return &v
}

// Merge applies patches in order and returns the new state. The input state
// is not modified.
func Merge(s TurnState, patches ...Patch) TurnState {
	out := s
	out.SessionMetadata = copyMap(s.SessionMetadata)
	out.Timings = copyTimings(s.Timings)
	out.Citations = append([]store.Citation(nil), s.Citations...)
	out.Path = append([]string(nil), s.Path...)

	for _, p := range patches {
		set(&out.Language, p.Language)
		set(&out.TranslatedQuery, p.TranslatedQuery)
		set(&out.QueryType, p.QueryType)
		set(&out.Intent, p.Intent)
		set(&out.Subjects, p.Subjects)
		set(&out.Route, p.Route)
		set(&out.History, p.History)
		set(&out.Summary, p.Summary)
		set(&out.IsRestart, p.IsRestart)
		set(&out.Quality, p.Quality)
		set(&out.Documents, p.Documents)
		set(&out.Prefilled, p.Prefilled)
		set(&out.Response, p.Response)
		set(&out.Persona, p.Persona)
		set(&out.Iterations, p.Iterations)
		set(&out.Fallback, p.Fallback)
		set(&out.Correction, p.Correction)
		set(&out.IsCorrection, p.IsCorrection)
		if p.Verdict != nil {
			v := *p.Verdict
			out.Verdict = &v
		}
		if p.speculative != nil {
			out.speculative = p.speculative
		}

		if p.ReplaceCitations {
			out.Citations = append([]store.Citation(nil), p.Citations...)
			citation.SortByScore(out.Citations)
		} else if len(p.Citations) > 0 {
			out.Citations = citation.Union(out.Citations, p.Citations)
		}

		for k, v := range p.SessionMetadata {
			out.SessionMetadata[k] = v
		}
		for k, v := range p.Timings {
			out.Timings[k] = v
		}
		out.Usage = out.Usage.Add(p.Usage)
	}
	return out
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyTimings(m map[string]time.Duration) map[string]time.Duration {
	out := make(map[string]time.Duration, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
