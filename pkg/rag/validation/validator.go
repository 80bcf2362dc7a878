package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/language"
	"edu-chatbot-be/pkg/store"

	"github.com/tidwall/gjson"
)

const module = "VALIDATION"

type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeFast     Mode = "fast"
	ModeStrict   Mode = "strict"
)

// maxContextDocs bounds how many documents are shown to the groundedness check.
const maxContextDocs = 5

var linkPattern = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+\.\w+`)

type Config struct {
	Mode      Mode
	MaxTokens int
}

type Request struct {
	Query          string
	Response       string
	TargetLanguage string
	Subjects       []string
	// Documents must be the visible (score filtered) documents the agent saw.
	Documents      []store.Document
	Conversational bool
	Correction     bool
	// Fallback marks responses that are the fixed fallback or a clarification.
	Fallback bool
}

type Verdict struct {
	Checked               bool
	IsValid               bool
	NeedsClarification    bool
	Reasoning             string
	Feedback              string
	ClarificationQuestion string
	Usage                 store.Usage
}

func pass(reason string) Verdict {
	return Verdict{IsValid: true, Reasoning: reason}
}

type Validator struct {
	provider llm.LLMProvider
	detector *language.Detector
	cfg      Config
	logger   logger.ILogger
}

func NewValidator(provider llm.LLMProvider, detector *language.Detector, cfg Config, logger logger.ILogger) *Validator {
	if cfg.Mode == "" {
		cfg.Mode = ModeFast
	}
	return &Validator{provider: provider, detector: detector, cfg: cfg, logger: logger}
}

func (v *Validator) Mode() Mode {
	return v.cfg.Mode
}

// Validate never returns an error. Technical failures count as a pass so a
// broken validator cannot block answers.
func (v *Validator) Validate(ctx context.Context, req Request) Verdict {
	switch {
	case v.cfg.Mode == ModeDisabled:
		return pass("validation disabled")
	case v.cfg.Mode == ModeFast && req.Conversational:
		return pass("conversational turn")
	case strings.TrimSpace(req.Response) == "":
		return pass("no response")
	case req.Correction:
		return pass("correction attempt is final")
	case req.Fallback:
		return pass("fallback or clarification")
	}

	if verdict, failed := v.checkLanguage(req); failed {
		return verdict
	}

	if linkPattern.MatchString(req.Response) {
		v.logger.Warn(module, "Response contains external links", nil)
		return Verdict{
			Checked:   true,
			Reasoning: "response links to external websites",
			Feedback:  "Remove all links to external websites and explain the content directly.",
		}
	}

	if len(req.Documents) == 0 {
		return pass("no documents to validate against")
	}
	return v.checkGroundedness(ctx, req)
}

func (v *Validator) checkLanguage(req Request) (Verdict, bool) {
	target := strings.ToLower(strings.TrimSpace(req.TargetLanguage))
	if target == "" || target == language.English || !v.detector.Reliable(req.Response) {
		return Verdict{}, false
	}
	got := v.detector.Detect(req.Response)
	if got == target {
		return Verdict{}, false
	}
	v.logger.Warn(module, "Response language mismatch", map[string]interface{}{"expected": target, "detected": got})
	return Verdict{
		Checked:   true,
		Reasoning: fmt.Sprintf("response is in %s, expected %s", language.Name(got), language.Name(target)),
		Feedback:  "Respond in " + language.Name(target),
	}, true
}

func (v *Validator) checkGroundedness(ctx context.Context, req Request) Verdict {
	opts := []llm.Option{llm.WithJSONMode(), llm.WithTemperature(0)}
	if v.cfg.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(v.cfg.MaxTokens))
	}
	res, err := v.provider.Generate(ctx, buildPrompt(req), opts...)
	if err != nil {
		v.logger.Error(module, "Groundedness check failed", map[string]interface{}{"error": err.Error()})
		return pass("validation error: " + err.Error())
	}
	usage := store.Usage{LLMCalls: 1, InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}

	raw := strings.TrimSpace(res.Text)
	raw = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(raw, "```json"), "```"), "```")
	if !gjson.Valid(raw) {
		v.logger.Warn(module, "Unparseable validation output", map[string]interface{}{"output": res.Text})
		out := pass("unparseable validation output")
		out.Usage = usage
		return out
	}
	r := gjson.Parse(raw)

	out := Verdict{
		Checked:               true,
		IsValid:               true,
		Reasoning:             r.Get("reasoning").String(),
		Feedback:              r.Get("feedback").String(),
		ClarificationQuestion: strings.TrimSpace(r.Get("clarification_question").String()),
		Usage:                 usage,
	}
	if f := r.Get("is_valid"); f.Exists() {
		out.IsValid = f.Bool()
	}
	out.NeedsClarification = r.Get("needs_clarification").Bool() && out.ClarificationQuestion != ""

	// A clarification replaces the answer, so it never triggers a retry.
	if out.NeedsClarification {
		out.IsValid = true
	}
	if !out.IsValid && out.Feedback == "" {
		out.Feedback = "Answer strictly from the provided documents and the detected subject."
	}

	v.logger.Info(module, "Validation result", map[string]interface{}{
		"valid":         out.IsValid,
		"clarification": out.NeedsClarification,
		"reasoning":     out.Reasoning,
	})
	return out
}

func buildPrompt(req Request) string {
	docs := req.Documents
	if len(docs) > maxContextDocs {
		docs = docs[:maxContextDocs]
	}
	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		subject, _ := d.Metadata["subject"].(string)
		if subject == "" {
			subject = "N/A"
		}
		parts = append(parts, fmt.Sprintf("Doc %d (Subject: %s):\n%s", i+1, subject, d.Text))
	}

	primary := "General"
	if len(req.Subjects) > 0 {
		primary = req.Subjects[0]
	}

	var b strings.Builder
	b.WriteString("You are a strict EDUCATIONAL GUARDIAN. Verify whether an AI tutor's response is CORRECT and ALIGNED with the user's intent.\n\n")
	fmt.Fprintf(&b, "User Query: %s\nDetected Intent Subjects: %s\n\n", req.Query, strings.Join(req.Subjects, ", "))
	fmt.Fprintf(&b, "Retrieved Documents:\n%s\n\n", strings.Join(parts, "\n\n"))
	fmt.Fprintf(&b, "Tutor's Response:\n%s\n\n", req.Response)
	b.WriteString("VERIFICATION TASKS:\n")
	b.WriteString("1. Groundedness: is the answer supported by the provided documents?\n")
	fmt.Fprintf(&b, "2. Intent alignment: if the documents cover several subjects, did the tutor pick the one matching '%s'?\n", primary)
	b.WriteString("3. Ambiguity: if the documents show several distinct valid interpretations and the tutor guessed, set needs_clarification to true ")
	b.WriteString("and write a short clarification_question naming the interpretations.\n")
	b.WriteString("4. External links are not allowed.\n\n")
	b.WriteString("If the response is invalid and no clarification is needed, give corrective feedback.\n")
	b.WriteString("Respond with a JSON object with keys: is_valid (bool), needs_clarification (bool), reasoning, feedback, clarification_question.")
	return b.String()
}
