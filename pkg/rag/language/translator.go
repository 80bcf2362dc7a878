package language

import (
	"context"
	"fmt"
	"strings"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/store"
)

const module = "LANGUAGE"

type Translator struct {
	provider llm.LLMProvider
	detector *Detector
	logger   logger.ILogger
}

func NewTranslator(provider llm.LLMProvider, detector *Detector, logger logger.ILogger) *Translator {
	return &Translator{provider: provider, detector: detector, logger: logger}
}

// Translate renders text in the target language. It is a no-op for English
// targets and for text already in the target language; on failure the
// original text is returned.
func (t *Translator) Translate(ctx context.Context, text, target string) (string, store.Usage) {
	target = strings.ToLower(strings.TrimSpace(target))
	if strings.TrimSpace(text) == "" || target == "" || target == English {
		return text, store.Usage{}
	}
	if t.detector.Reliable(text) && t.detector.Detect(text) == target {
		return text, store.Usage{}
	}

	prompt := fmt.Sprintf(
		"Translate the following English educational explanation into %s. "+
			"Preserve technical accuracy, citation labels such as [Source 1], and formatting. "+
			"Respond with only the translated text.\n\nText: %s", Name(target), text)

	res, err := t.provider.Generate(ctx, prompt, llm.WithTemperature(0))
	if err != nil {
		t.logger.Warn(module, "Translation failed, keeping original", map[string]interface{}{"target": target, "error": err.Error()})
		return text, store.Usage{}
	}
	usage := store.Usage{LLMCalls: 1, InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}
	out := strings.TrimSpace(res.Text)
	if out == "" {
		return text, usage
	}
	return out, usage
}

// ToEnglish translates a query into English for retrieval.
func (t *Translator) ToEnglish(ctx context.Context, text, source string) (string, store.Usage) {
	source = strings.ToLower(strings.TrimSpace(source))
	if strings.TrimSpace(text) == "" || source == "" || source == English {
		return text, store.Usage{}
	}
	prompt := fmt.Sprintf(
		"Translate the following %s educational text into clear English. "+
			"Respond with only the translated text.\n\nText: %s", Name(source), text)

	res, err := t.provider.Generate(ctx, prompt, llm.WithTemperature(0))
	if err != nil {
		t.logger.Warn(module, "Translation to English failed", map[string]interface{}{"source": source, "error": err.Error()})
		return text, store.Usage{}
	}
	usage := store.Usage{LLMCalls: 1, InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}
	if out := strings.TrimSpace(res.Text); out != "" {
		return out, usage
	}
	return text, usage
}
