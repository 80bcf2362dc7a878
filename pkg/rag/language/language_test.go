package language

import (
	"context"
	"errors"
	"testing"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"

	"github.com/stretchr/testify/assert"
)

type fakeLLM struct {
	calls int
	text  string
	err   error
}

func (f *fakeLLM) Chat(ctx context.Context, m []llm.Message, opts ...llm.Option) (*llm.Response, error) {
	return f.Generate(ctx, m[len(m)-1].Content, opts...)
}

func (f *fakeLLM) Generate(context.Context, string, ...llm.Option) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, Usage: llm.Usage{InputTokens: 5, OutputTokens: 7}}, nil
}

func TestDetect(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "", "en"},
		{"english", "The mitochondria is the powerhouse of the cell and produces energy.", "en"},
		{"spanish", "La mitocondria es la central energética de la célula y produce energía para el cuerpo.", "es"},
		{"hindi", "माइटोकॉन्ड्रिया कोशिका का पावरहाउस है और ऊर्जा का उत्पादन करता है।", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.text))
		})
	}
}

func TestTranslate(t *testing.T) {
	ctx := context.Background()
	english := "The mitochondria is the powerhouse of the cell and produces energy."

	t.Run("english target is a no-op", func(t *testing.T) {
		p := &fakeLLM{text: "x"}
		out, usage := NewTranslator(p, NewDetector(), logger.NewNopLogger()).Translate(ctx, english, "en")
		assert.Equal(t, english, out)
		assert.Zero(t, usage.LLMCalls)
		assert.Zero(t, p.calls)
	})

	t.Run("already in target language", func(t *testing.T) {
		p := &fakeLLM{text: "x"}
		spanish := "La mitocondria es la central energética de la célula y produce energía para el cuerpo."
		out, _ := NewTranslator(p, NewDetector(), logger.NewNopLogger()).Translate(ctx, spanish, "es")
		assert.Equal(t, spanish, out)
		assert.Zero(t, p.calls)
	})

	t.Run("translates and counts usage", func(t *testing.T) {
		p := &fakeLLM{text: " La mitocondria... "}
		out, usage := NewTranslator(p, NewDetector(), logger.NewNopLogger()).Translate(ctx, english, "es")
		assert.Equal(t, "La mitocondria...", out)
		assert.Equal(t, 1, usage.LLMCalls)
		assert.Equal(t, 12, usage.Total())
	})

	t.Run("failure keeps original", func(t *testing.T) {
		p := &fakeLLM{err: errors.New("down")}
		out, usage := NewTranslator(p, NewDetector(), logger.NewNopLogger()).Translate(ctx, english, "hi")
		assert.Equal(t, english, out)
		assert.Zero(t, usage.LLMCalls)
	})
}

func TestName(t *testing.T) {
	assert.Equal(t, "Hindi", Name("HI"))
	assert.Equal(t, "xx", Name("xx"))
}
