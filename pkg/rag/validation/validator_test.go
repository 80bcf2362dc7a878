package validation

import (
	"context"
	"errors"
	"testing"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/language"
	"edu-chatbot-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Chat(ctx context.Context, m []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	return f.Generate(ctx, "", opts...)
}

func (f *fakeLLM) Generate(context.Context, string, ...llm.Option) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.reply, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

var docs = []store.Document{{ID: "d1", Score: 0.9, Text: "Mitochondria produce ATP.", Metadata: map[string]interface{}{"subject": "Biology"}}}

func newValidator(p llm.LLMProvider, mode Mode) *Validator {
	return NewValidator(p, language.NewDetector(), Config{Mode: mode, MaxTokens: 300}, logger.NewNopLogger())
}

func TestValidateSkips(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		req  Request
	}{
		{"disabled", ModeDisabled, Request{Response: "x", Documents: docs}},
		{"fast conversational", ModeFast, Request{Response: "hello!", Conversational: true, Documents: docs}},
		{"empty response", ModeStrict, Request{Documents: docs}},
		{"correction", ModeStrict, Request{Response: "x", Correction: true, Documents: docs}},
		{"fallback", ModeStrict, Request{Response: "x", Fallback: true, Documents: docs}},
		{"no documents", ModeStrict, Request{Response: "Mitochondria make energy."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeLLM{reply: `{"is_valid": false}`}
			v := newValidator(p, tt.mode).Validate(context.Background(), tt.req)
			assert.True(t, v.IsValid)
			assert.False(t, v.Checked)
			assert.Zero(t, p.calls)
		})
	}
}

func TestValidateGroundedness(t *testing.T) {
	ctx := context.Background()
	req := Request{Query: "powerhouse of the cell", Response: "The mitochondria [Source 1].", Documents: docs, Subjects: []string{"Biology"}}

	t.Run("valid", func(t *testing.T) {
		v := newValidator(&fakeLLM{reply: `{"is_valid": true, "reasoning": "supported"}`}, ModeFast).Validate(ctx, req)
		assert.True(t, v.Checked)
		assert.True(t, v.IsValid)
		assert.Equal(t, 1, v.Usage.LLMCalls)
	})

	t.Run("invalid carries feedback", func(t *testing.T) {
		v := newValidator(&fakeLLM{reply: `{"is_valid": false, "feedback": "stick to biology"}`}, ModeFast).Validate(ctx, req)
		assert.False(t, v.IsValid)
		assert.Equal(t, "stick to biology", v.Feedback)
	})

	t.Run("clarification passes", func(t *testing.T) {
		v := newValidator(&fakeLLM{reply: `{"is_valid": false, "needs_clarification": true, "clarification_question": "Which cell?"}`}, ModeFast).Validate(ctx, req)
		assert.True(t, v.IsValid)
		assert.True(t, v.NeedsClarification)
		assert.Equal(t, "Which cell?", v.ClarificationQuestion)
	})

	t.Run("llm error passes", func(t *testing.T) {
		v := newValidator(&fakeLLM{err: errors.New("boom")}, ModeFast).Validate(ctx, req)
		assert.True(t, v.IsValid)
	})

	t.Run("garbage passes", func(t *testing.T) {
		v := newValidator(&fakeLLM{reply: "yes"}, ModeFast).Validate(ctx, req)
		assert.True(t, v.IsValid)
		assert.Equal(t, 1, v.Usage.LLMCalls)
	})
}

func TestValidateLinksAndLanguage(t *testing.T) {
	ctx := context.Background()

	t.Run("external links fail without llm", func(t *testing.T) {
		p := &fakeLLM{reply: `{"is_valid": true}`}
		v := newValidator(p, ModeFast).Validate(ctx, Request{Response: "Watch https://youtube.com/watch?v=1", Documents: docs})
		assert.False(t, v.IsValid)
		assert.NotEmpty(t, v.Feedback)
		assert.Zero(t, p.calls)
	})

	t.Run("language mismatch", func(t *testing.T) {
		p := &fakeLLM{reply: `{"is_valid": true}`}
		v := newValidator(p, ModeFast).Validate(ctx, Request{
			Response:       "The mitochondria is the organelle that produces most of the energy used by the cell.",
			TargetLanguage: "es",
			Documents:      docs,
		})
		assert.False(t, v.IsValid)
		assert.Equal(t, "Respond in Spanish", v.Feedback)
	})
}
