package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name, role, mode, grade string
		wantRole, wantMode      string
		wantGrade, wantName     string
		wantTools               []string
		wantSequential          bool
	}{
		{"student default", "student", "", "", RoleStudent, ModeStandard, "B", "The Structured Scholar", []string{"retrieve_documents", "web_search"}, true},
		{"student grade A", "Student", "standard", "a", RoleStudent, ModeStandard, "A", "The Analytic Architect", []string{"retrieve_documents", "web_search"}, true},
		{"interactive", "student", "interactive", "C", RoleStudent, ModeInteractive, "C", "The Patient Guide", []string{"retrieve_documents", "web_search"}, false},
		{"teacher ignores grade", "teacher", "interactive", "D", RoleTeacher, ModeStandard, "B", "The Scholarly Colleague", []string{"retrieve_documents"}, false},
		{"unknown role", "admin", "", "Z", RoleStudent, ModeStandard, "B", "The Structured Scholar", []string{"retrieve_documents", "web_search"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := c.Resolve(tt.role, tt.mode, tt.grade)
			assert.Equal(t, tt.wantRole, p.Role)
			assert.Equal(t, tt.wantMode, p.Mode)
			assert.Equal(t, tt.wantGrade, p.Grade)
			assert.Equal(t, tt.wantName, p.Name)
			assert.Equal(t, tt.wantTools, p.Tools)
			assert.Equal(t, tt.wantSequential, p.EnforceSequential)
		})
	}
}

func TestLoadRejectsIncompleteCatalog(t *testing.T) {
	_, err := Load([]byte("assistant_name: X\nroles: {}\n"))
	assert.Error(t, err)

	_, err = Load([]byte("roles: [not, a, map]"))
	assert.Error(t, err)
}

func TestSystemPrompt(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	p := c.Resolve("student", "standard", "D")

	prompt := NewBuilder().SystemPrompt(p, PromptContext{
		Subjects:        []string{"Biology"},
		TargetLanguage:  "Hindi",
		Quality:         "high",
		SessionMetadata: map[string]string{"subject": "Biology", "topics": "Cells"},
		Correction:      "Respond in Hindi",
	})

	assert.Contains(t, prompt, "You are 'Vidya', acting as **The Foundational Coach** for a student with Grade D.")
	assert.Contains(t, prompt, "- Start and end with 'You've got this!'")
	assert.Contains(t, prompt, "respond only in Hindi")
	assert.Contains(t, prompt, "- Subject: Biology")
	assert.Contains(t, prompt, "- Topic: Cells")
	assert.Contains(t, prompt, "EFFICIENCY: Highly relevant curriculum documents")
	assert.Contains(t, prompt, "CORRECTION NEEDED: Respond in Hindi")

	plain := NewBuilder().SystemPrompt(p, PromptContext{TargetLanguage: "English", Quality: "low"})
	assert.NotContains(t, plain, "EFFICIENCY")
	assert.NotContains(t, plain, "CORRECTION NEEDED")
	assert.NotContains(t, plain, "### CONTEXT")
}
