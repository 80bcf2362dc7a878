package persona

import (
	"fmt"
	"strings"
)

// PromptContext carries the per-turn facts the system prompt depends on.
type PromptContext struct {
	Subjects        []string
	TargetLanguage  string
	Quality         string
	SessionMetadata map[string]string
	// Correction is validator feedback from a rejected first attempt.
	Correction string
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) SystemPrompt(p Persona, pc PromptContext) string {
	var sb strings.Builder

	sb.WriteString(p.Intro)
	sb.WriteString("\n")
	if p.Focus != "" {
		fmt.Fprintf(&sb, "Focus: %s\n", p.Focus)
	}

	if len(p.GradeRules) > 0 {
		sb.WriteString("\n### YOUR IDENTITY RULES:\n")
		writeList(&sb, p.GradeRules, "- ")
	}

	sb.WriteString("\n### CORE RULES:\n")
	for i, r := range p.ModeRules {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	fmt.Fprintf(&sb, "%d. TARGET LANGUAGE [STRICT]: respond only in %s.\n", len(p.ModeRules)+1, pc.TargetLanguage)

	b.writeContext(&sb, pc)

	if pc.Quality == "high" && p.HighQualityHint != "" {
		fmt.Fprintf(&sb, "\nEFFICIENCY: %s\n", p.HighQualityHint)
	}

	if pc.Correction != "" {
		fmt.Fprintf(&sb, "\n> [!IMPORTANT]\n> CORRECTION NEEDED: %s\n", pc.Correction)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func (b *Builder) writeContext(sb *strings.Builder, pc PromptContext) {
	var lines []string
	if len(pc.Subjects) > 0 {
		lines = append(lines, "Detected Subjects: "+strings.Join(pc.Subjects, ", "))
	}
	for _, k := range []struct{ key, label string }{
		{"class_name", "Class"},
		{"subject", "Subject"},
		{"topics", "Topic"},
		{"chapter", "Chapter"},
	} {
		if v := pc.SessionMetadata[k.key]; v != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", k.label, v))
		}
	}
	if len(lines) == 0 {
		return
	}
	sb.WriteString("\n### CONTEXT:\n")
	writeList(sb, lines, "- ")
}

func writeList(sb *strings.Builder, items []string, bullet string) {
	for _, it := range items {
		sb.WriteString(bullet)
		sb.WriteString(it)
		sb.WriteString("\n")
	}
}
