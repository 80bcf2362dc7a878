package tokenizer

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures and truncates text in model tokens.
type Counter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// TiktokenCounter uses the model's own BPE. Encoders are not documented as
// goroutine-safe, so access is serialized.
type TiktokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// New resolves the encoding for model, falling back to cl100k_base for
// models tiktoken does not know about.
func New(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer for %s: %w", model, err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.enc.Decode(tokens[:maxTokens])
}

// ApproxCounter estimates four characters per token. It is used only when the
// BPE ranks cannot be loaded (offline hosts).
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

func (ApproxCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxTokens*4 {
		return text
	}
	return string(runes[:maxTokens*4])
}

// NewOrApprox never fails; the returned bool reports whether the exact tokenizer loaded.
func NewOrApprox(model string) (Counter, bool) {
	c, err := New(model)
	if err != nil {
		return ApproxCounter{}, false
	}
	return c, true
}
