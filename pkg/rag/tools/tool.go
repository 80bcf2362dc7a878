package tools

import (
	"context"
	"sync"

	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/store"
)

const (
	RetrieveDocuments = "retrieve_documents"
	WebSearch         = "web_search"
)

// Observation is what a tool hands back to the reasoning loop. Documents is
// the exact ordered list Text was formatted from, if any.
type Observation struct {
	Text      string
	Documents []store.Document
}

type Tool interface {
	Name() string
	Description() string
	// Parameters is a JSON schema object for the tool arguments.
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (Observation, error)
}

// Registry keeps tools in registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.byName[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Subset returns a registry with only the named tools that exist here.
func (r *Registry) Subset(names ...string) *Registry {
	sub := NewRegistry()
	for _, n := range names {
		if t, ok := r.Get(n); ok {
			sub.Register(t)
		}
	}
	return sub
}

func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.Tools()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// SanitizeArgs drops null and empty-string arguments, recursively.
func SanitizeArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t == "" {
				continue
			}
		case map[string]interface{}:
			t = SanitizeArgs(t)
			if len(t) == 0 {
				continue
			}
			v = t
		case []interface{}:
			if len(t) == 0 {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func stringArg(args map[string]interface{}, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}
