package agent

import (
	"context"
	"fmt"
	"strings"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/language"
	"edu-chatbot-be/pkg/store"
)

const (
	restartPrefix      = "Welcome back! "
	conversationWindow = 12

	thanksReply  = "I'm glad I could help! Feel free to ask if you have more questions."
	goodbyeReply = "Goodbye! Happy learning! 📚"
	gotItReply   = "Great! I'm here whenever you need help with your studies. Is there anything else you'd like to know?"
	greetReply   = "Hello! I'm Vidya, your study companion. What would you like to learn today?"
)

var templates = []struct {
	words []string
	reply string
}{
	{[]string{"thanks", "thank you", "thx"}, thanksReply},
	{[]string{"bye", "goodbye", "see you"}, goodbyeReply},
	{[]string{"solved", "clear now", "got it", "understood"}, gotItReply},
}

type ConversationalRequest struct {
	Query          string
	TargetLanguage string
	History        []store.Message
	Summary        string
	IsRestart      bool
}

// Conversational answers small talk: templates for the common cases, one
// LLM call otherwise.
type Conversational struct {
	provider llm.LLMProvider
	logger   logger.ILogger
}

func NewConversational(provider llm.LLMProvider, logger logger.ILogger) *Conversational {
	return &Conversational{provider: provider, logger: logger}
}

func (c *Conversational) Reply(ctx context.Context, req ConversationalRequest) (string, store.Usage) {
	prefix := ""
	if req.IsRestart {
		prefix = restartPrefix
	}

	q := strings.ToLower(req.Query)
	for _, t := range templates {
		for _, w := range t.words {
			if strings.Contains(q, w) {
				c.logger.Info(module, "Template conversational reply", map[string]interface{}{"restart": req.IsRestart})
				return prefix + t.reply, store.Usage{}
			}
		}
	}

	res, err := c.provider.Generate(ctx, conversationalPrompt(req), llm.WithMaxTokens(150))
	if err != nil {
		c.logger.Warn(module, "Conversational LLM failed, using greeting", map[string]interface{}{"error": err.Error()})
		return prefix + greetReply, store.Usage{}
	}
	usage := store.Usage{LLMCalls: 1, InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}
	reply := strings.TrimSpace(res.Text)
	if reply == "" {
		reply = prefix + greetReply
	}
	return reply, usage
}

func conversationalPrompt(req ConversationalRequest) string {
	target := req.TargetLanguage
	if target == "" {
		target = language.English
	}
	lang := language.Name(target)

	history := req.History
	if len(history) > conversationWindow {
		history = history[len(history)-conversationWindow:]
	}
	var h strings.Builder
	for _, m := range history {
		speaker := "STUDENT"
		if m.Role == store.RoleAssistant {
			speaker = "VIDYA"
		}
		fmt.Fprintf(&h, "%s: %s\n", speaker, m.Text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are Vidya, a friendly and helpful educational assistant. Respond naturally to the student's message in **%s**. ", lang)
	b.WriteString("Use the history below to see if the student shared their name and use it.\n")
	if req.IsRestart {
		b.WriteString("NOTICE: This is a returning student after some time away. Welcome them back warmly.\n")
	}
	fmt.Fprintf(&b, "\nConversation Summary: %s\n", req.Summary)
	fmt.Fprintf(&b, "Recent Interaction History:\n%s\n", h.String())
	fmt.Fprintf(&b, "Latest Message from Student: %s\n\n", req.Query)
	b.WriteString("Response Guidelines:\n")
	b.WriteString("- Be warm and personalized.\n")
	fmt.Fprintf(&b, "- Your response MUST be in **%s**.\n", lang)
	if len(req.History) > 0 {
		b.WriteString("- This is mid-conversation. Do not greet with Hello or Hi, just respond naturally.\n")
	} else {
		b.WriteString("- This is the first message. Greet warmly and ask how you can help.\n")
	}
	b.WriteString("- Keep the response brief and encouraging (under 100 tokens).")
	return b.String()
}
