package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

type chatRequest struct {
	UserSessionID string                 `json:"user_session_id"`
	UserID        string                 `json:"user_id"`
	UserType      string                 `json:"user_type"`
	Query         string                 `json:"query"`
	Language      string                 `json:"language,omitempty"`
	AgentMode     string                 `json:"agent_mode,omitempty"`
	Filters       map[string]interface{} `json:"filters,omitempty"`
}

type citation struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type chatResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Message     string             `json:"message"`
		Intent      string             `json:"intent"`
		Language    string             `json:"language"`
		Citations   []citation         `json:"citations"`
		LLMCalls    int                `json:"llm_calls"`
		TotalTokens int                `json:"total_tokens"`
		Timings     map[string]float64 `json:"timings"`
	} `json:"data"`
}

type turn struct {
	label string
	req   chatRequest
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	baseURL := getEnv("SIM_BASE_URL", "http://localhost:3000/api/chat/v1")
	token := os.Getenv("SIM_TOKEN")
	userID := getEnv("SIM_USER_ID", "sim-student-1")
	sessionID := uuid.NewString()
	filters := map[string]interface{}{"class_id": getEnv("SIM_CLASS_ID", "10"), "subject": "biology"}

	color.Cyan("🚀 Tutor conversation simulation")
	color.Cyan("Session %s as %s\n", sessionID, userID)

	script := []turn{
		{"greeting", chatRequest{Query: "hi there!"}},
		{"concept", chatRequest{Query: "What is photosynthesis?", Filters: filters}},
		{"follow-up", chatRequest{Query: "why do plants need sunlight for it?", Filters: filters}},
		{"interactive", chatRequest{Query: "quiz me on the light reactions", AgentMode: "interactive", Filters: filters}},
		{"recency", chatRequest{Query: "what is the latest research on artificial photosynthesis?"}},
		{"indonesian", chatRequest{Query: "apa itu klorofil?", Language: "id", Filters: filters}},
	}

	client := &http.Client{Timeout: 90 * time.Second}
	for i, t := range script {
		t.req.UserSessionID = sessionID
		t.req.UserID = userID
		t.req.UserType = "student"

		color.Yellow("\n[%d] %s", i+1, t.label)
		fmt.Printf("USER: %s\n", t.req.Query)

		start := time.Now()
		res, err := send(client, baseURL+"/send", token, t.req)
		if err != nil {
			color.Red("Failed: %v", err)
			continue
		}
		color.Green("TUTOR (%s, %v): %s", res.Data.Intent, time.Since(start).Round(time.Millisecond), res.Data.Message)

		ids := make([]string, 0, len(res.Data.Citations))
		for _, c := range res.Data.Citations {
			ids = append(ids, fmt.Sprintf("%s(%.2f)", c.ID, c.Score))
		}
		color.HiBlack("citations=[%s] llm_calls=%d tokens=%d", strings.Join(ids, ", "), res.Data.LLMCalls, res.Data.TotalTokens)
	}
}

func send(client *http.Client, url, token string, payload chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API Error %d: %s", resp.StatusCode, string(raw))
	}
	var res chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}
