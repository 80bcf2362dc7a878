package llm

import (
	"context"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role       string // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // assistant messages only
	ToolCallID string     // tool messages only
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// ToolDefinition declares a callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature *float64
	MaxTokens   int
	Model       string // Override default model
	Tools       []ToolDefinition
	JSONMode    bool
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = &temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithTools(tools []ToolDefinition) Option {
	return func(o *Options) {
		o.Tools = tools
	}
}

// WithJSONMode asks the provider to constrain output to a JSON object.
func WithJSONMode() Option {
	return func(o *Options) {
		o.JSONMode = true
	}
}

func ApplyOptions(opts ...Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (*Response, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (*Response, error)
}
