package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"edu-chatbot-be/pkg/store"
)

type SendChatRequest struct {
	UserSessionID string  `json:"user_session_id" validate:"required,max=128"`
	UserID        string  `json:"user_id" validate:"required,max=128"`
	UserType      string  `json:"user_type" validate:"required,oneof=student teacher"`
	Query         string  `json:"query" validate:"required,max=8000"`
	Language      string  `json:"language" validate:"omitempty,min=2,max=8"`
	Filters       Filters `json:"filters,omitempty"`
	AgentMode     string  `json:"agent_mode" validate:"omitempty,oneof=standard interactive"`
	StudentGrade  string  `json:"student_grade" validate:"omitempty,oneof=A B C D"`
}

// Filters accepts either a JSON object or a string holding one. Empty
// strings and "{}" decode to no filters.
type Filters map[string]interface{}

func (f *Filters) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == "{}" {
			*f = nil
			return nil
		}
		data = []byte(raw)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("filters must be a JSON object: %w", err)
	}
	if len(m) == 0 {
		m = nil
	}
	*f = m
	return nil
}

type SendChatResponse struct {
	UserSessionID    string             `json:"user_session_id"`
	Message          string             `json:"message"`
	Intent           string             `json:"intent"`
	Language         string             `json:"language"`
	Citations        []store.Citation   `json:"citations"`
	LLMCalls         int                `json:"llm_calls"`
	InputTokens      int                `json:"input_tokens"`
	OutputTokens     int                `json:"output_tokens"`
	TotalTokens      int                `json:"total_tokens"`
	BackgroundTokens int                `json:"background_tokens"`
	Timings          map[string]float64 `json:"timings,omitempty"` // milliseconds
}

type HealthResponse struct {
	Status   string `json:"status"`
	Cache    string `json:"cache"`
	Database string `json:"database"`
}
