package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const duckDuckGoURL = "https://api.duckduckgo.com/"

// DuckDuckGoSearcher uses the instant-answer API; it needs no credentials.
type DuckDuckGoSearcher struct {
	BaseURL string
	Client  *http.Client
}

func NewDuckDuckGoSearcher() *DuckDuckGoSearcher {
	return &DuckDuckGoSearcher{
		BaseURL: duckDuckGoURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading        string     `json:"Heading"`
	AbstractText   string     `json:"AbstractText"`
	AbstractSource string     `json:"AbstractSource"`
	AbstractURL    string     `json:"AbstractURL"`
	Answer         string     `json:"Answer"`
	RelatedTopics  []ddgTopic `json:"RelatedTopics"`
}

func (s *DuckDuckGoSearcher) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	var out string
	err := withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+params.Encode(), nil)
		if err != nil {
			return err
		}
		resp, err := s.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("duckduckgo status %d", resp.StatusCode)
		}

		var parsed ddgResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode duckduckgo response: %w", err)
		}
		out = formatDDG(parsed)
		return nil
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("no web results for %q", query)
	}
	return out, nil
}

func formatDDG(r ddgResponse) string {
	var b strings.Builder
	if r.Answer != "" {
		b.WriteString(r.Answer)
		b.WriteString("\n")
	}
	if r.AbstractText != "" {
		fmt.Fprintf(&b, "%s (%s: %s)\n", r.AbstractText, r.AbstractSource, r.AbstractURL)
	}

	var flat []ddgTopic
	for _, t := range r.RelatedTopics {
		if len(t.Topics) > 0 {
			flat = append(flat, t.Topics...)
			continue
		}
		flat = append(flat, t)
	}
	for i, t := range flat {
		if i == 5 {
			break
		}
		if t.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", t.Text, t.FirstURL)
	}
	return strings.TrimSpace(b.String())
}
