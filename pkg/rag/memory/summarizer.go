package memory

import (
	"context"
	"fmt"
	"strings"

	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/store"
)

// Summarize folds the latest messages into the session summary. Only one
// worker may summarize a session at a time; the flag is cleared whether or
// not the LLM call succeeds.
func (m *Manager) Summarize(ctx context.Context, sessionID string) (err error) {
	locked, err := m.durable.TryLockSummary(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("acquire summary lock: %w", err)
	}
	if !locked {
		m.logger.Info(module, "Summary already in progress", map[string]interface{}{"session_id": sessionID})
		return nil
	}

	saved := false
	defer func() {
		if saved {
			return
		}
		if uerr := m.durable.UnlockSummary(context.WithoutCancel(ctx), sessionID); uerr != nil {
			m.logger.Error(module, "Failed to release summary lock", map[string]interface{}{"session_id": sessionID, "error": uerr.Error()})
		}
	}()

	sess, err := m.durable.FindSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	msgs, err := m.durable.RecentMessages(ctx, sessionID, m.cfg.SummaryWindow)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if sess == nil || len(msgs) == 0 {
		return nil
	}

	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", msg.Role, msg.Text)
	}
	prompt := summaryPrompt(sess.Summary, strings.Join(lines, "\n"), len(msgs))

	res, err := m.provider.Generate(ctx, prompt, llm.WithTemperature(0.2))
	if res != nil {
		m.recordBackgroundUsage(ctx, sessionID, store.Usage{
			LLMCalls:     1,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		})
	}
	if err != nil {
		m.logger.Error(module, "Summary generation failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return fmt.Errorf("generate summary: %w", err)
	}
	summary := strings.TrimSpace(res.Text)
	if summary == "" {
		return fmt.Errorf("generate summary: empty output")
	}

	if err := m.durable.SaveSummary(ctx, sessionID, summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	saved = true
	m.logger.Info(module, "Summary updated", map[string]interface{}{
		"session_id":    sessionID,
		"input_tokens":  res.Usage.InputTokens,
		"output_tokens": res.Usage.OutputTokens,
	})
	return nil
}

func summaryPrompt(previous, transcript string, n int) string {
	if strings.TrimSpace(previous) == "" {
		return "Summarize the following conversation in 3-5 sentences, capturing key topics and user preferences.\n\n" + transcript
	}
	return fmt.Sprintf("Here is a summary of the conversation so far:\n%s\n\n"+
		"Here are the latest %d messages:\n%s\n\n"+
		"Update the summary to include the new information, keeping it concise (3-5 sentences). "+
		"Focus on key topics and user preferences.", previous, n, transcript)
}
