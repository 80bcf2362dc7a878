package memory

import (
	"edu-chatbot-be/pkg/store"
	"edu-chatbot-be/pkg/tokenizer"
)

// messageOverhead approximates the role and separator tokens of one message.
const messageOverhead = 4

// Trim keeps the newest messages whose total token count stays within limit
// and drops leading messages until the window starts on a user message.
// A non-positive limit disables trimming.
func Trim(msgs []store.Message, counter tokenizer.Counter, limit int) []store.Message {
	if limit <= 0 {
		return msgs
	}

	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		n := counter.Count(msgs[i].Text) + messageOverhead
		if total+n > limit {
			break
		}
		total += n
		start = i
	}

	for start < len(msgs) && msgs[start].Role != store.RoleUser {
		start++
	}
	return append([]store.Message(nil), msgs[start:]...)
}

// Tokens counts a history the way Trim does.
func Tokens(msgs []store.Message, counter tokenizer.Counter) int {
	total := 0
	for _, m := range msgs {
		total += counter.Count(m.Text) + messageOverhead
	}
	return total
}
