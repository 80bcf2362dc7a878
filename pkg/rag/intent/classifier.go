package intent

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/store"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
)

const module = "CLASSIFIER"

type QueryType string

const (
	Conversational     QueryType = "conversational"
	CurriculumSpecific QueryType = "curriculum_specific"
)

// longQueryChars is the length above which a query is condensed before
// classification.
const longQueryChars = 2000

type Classification struct {
	QueryType        QueryType
	Intent           retrieval.Intent
	TranslatedQuery  string
	Confidence       float64
	Reasoning        string
	Subjects         []string
	ClassLevel       string
	ExtractedSubject string
	Chapter          string
	LectureID        string
	Usage            store.Usage
}

func (c Classification) IsConversational() bool {
	return c.QueryType == Conversational
}

// MergeMetadata fills session metadata keys that are still empty with the
// values the classifier extracted. Existing values always win.
func (c Classification) MergeMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+4)
	for k, v := range meta {
		out[k] = v
	}
	if c.IsConversational() {
		return out
	}
	for _, kv := range []struct{ key, val string }{
		{"class_level", c.ClassLevel},
		{"subject", c.ExtractedSubject},
		{"topics", c.Chapter},
		{"lecture_id", c.LectureID},
	} {
		if out[kv.key] == "" && kv.val != "" {
			out[kv.key] = kv.val
		}
	}
	return out
}

var conversationalKeywords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "greetings": true,
	"thanks": true, "thank you": true, "thx": true, "cool": true, "ok": true, "okay": true, "got it": true,
	"bye": true, "goodbye": true, "see ya": true, "nice": true, "great": true, "awesome": true,
	"yep": true, "yes": true, "no": true,
	"alright": true, "sure": true, "fine": true, "k": true,
}

var helpPatterns = []string{"i need help", "can you help", "i need some help", "what can you do", "help me"}

// Heuristic classifies obvious small talk without an LLM call.
func Heuristic(query string) (Classification, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if conversationalKeywords[q] || conversationalKeywords[strings.TrimRight(q, "!?. ")] {
		return Classification{
			QueryType:       Conversational,
			TranslatedQuery: query,
			Confidence:      1.0,
			Reasoning:       "Matched short conversational keyword heuristic.",
			Subjects:        []string{"General"},
		}, true
	}
	if len(strings.Fields(q)) < 10 {
		for _, p := range helpPatterns {
			if strings.Contains(q, p) {
				return Classification{
					QueryType:       Conversational,
					TranslatedQuery: query,
					Confidence:      0.9,
					Reasoning:       "Matched meta-help request heuristic.",
					Subjects:        []string{"General"},
				}, true
			}
		}
	}
	return Classification{}, false
}

type Config struct {
	CacheEnabled bool
	CacheSize    int
	MaxTokens    int
}

type Classifier struct {
	provider llm.LLMProvider
	cfg      Config
	cache    *gocache.Cache
	mu       sync.Mutex
	logger   logger.ILogger
}

func NewClassifier(provider llm.LLMProvider, cfg Config, logger logger.ILogger) *Classifier {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	return &Classifier{
		provider: provider,
		cfg:      cfg,
		cache:    gocache.New(gocache.NoExpiration, 10*time.Minute),
		logger:   logger,
	}
}

// Classify never fails: an LLM or parse error yields a curriculum-specific
// classification of the untranslated query.
func (c *Classifier) Classify(ctx context.Context, query string, history []store.Message) Classification {
	key := cacheKey(query, history)
	if c.cfg.CacheEnabled {
		if v, ok := c.cache.Get(key); ok {
			c.logger.Debug(module, "Classification cache hit", nil)
			cached := v.(Classification)
			cached.Usage = store.Usage{}
			return cached
		}
	}

	if h, ok := Heuristic(query); ok {
		c.logger.Info(module, "Heuristic classification", map[string]interface{}{"reasoning": h.Reasoning})
		return h
	}

	var usage store.Usage
	analyzed := query
	if len(query) > longQueryChars {
		if short, u, err := c.condense(ctx, query); err == nil {
			analyzed = short
			usage = usage.Add(u)
		} else {
			c.logger.Warn(module, "Query condensation failed", map[string]interface{}{"error": err.Error()})
		}
	}

	opts := []llm.Option{llm.WithJSONMode(), llm.WithTemperature(0)}
	if c.cfg.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(c.cfg.MaxTokens))
	}
	res, err := c.provider.Generate(ctx, buildPrompt(analyzed, history), opts...)
	if err != nil {
		c.logger.Warn(module, "Classification failed, defaulting to curriculum", map[string]interface{}{"error": err.Error()})
		return fallback(analyzed, usage, err)
	}
	usage = usage.Add(store.Usage{LLMCalls: 1, InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens})

	out, err := parse(res.Text, analyzed)
	if err != nil {
		c.logger.Warn(module, "Classification unparseable, defaulting to curriculum", map[string]interface{}{"error": err.Error()})
		return fallback(analyzed, usage, err)
	}
	out.Usage = usage

	c.logger.Info(module, "Query analyzed", map[string]interface{}{
		"type":       out.QueryType,
		"intent":     out.Intent,
		"translated": out.TranslatedQuery,
	})

	if c.cfg.CacheEnabled {
		c.store(key, out)
	}
	return out
}

func (c *Classifier) condense(ctx context.Context, query string) (string, store.Usage, error) {
	prompt := "Summarize the following user request into a concise search query, " +
		"preserving all technical constraints and educational context:\n\n" + query
	res, err := c.provider.Generate(ctx, prompt)
	if err != nil {
		return "", store.Usage{}, err
	}
	u := store.Usage{LLMCalls: 1, InputTokens: res.Usage.InputTokens, OutputTokens: res.Usage.OutputTokens}
	short := strings.TrimSpace(res.Text)
	if short == "" {
		return "", u, fmt.Errorf("empty condensed query")
	}
	return short, u, nil
}

// store evicts half the entries once the cache is full.
func (c *Classifier) store(key string, v Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache.ItemCount() >= c.cfg.CacheSize {
		n := 0
		for k := range c.cache.Items() {
			if n >= c.cfg.CacheSize/2 {
				break
			}
			c.cache.Delete(k)
			n++
		}
	}
	c.cache.SetDefault(key, v)
}

func cacheKey(query string, history []store.Message) string {
	sum := md5.Sum([]byte(query + "||" + formatHistory(history, 2)))
	return hex.EncodeToString(sum[:])
}

func fallback(query string, usage store.Usage, err error) Classification {
	return Classification{
		QueryType:       CurriculumSpecific,
		Intent:          retrieval.IntentConceptExplanation,
		TranslatedQuery: query,
		Reasoning:       "Fallback due to error: " + err.Error(),
		Usage:           usage,
	}
}

var knownIntents = map[string]retrieval.Intent{
	string(retrieval.IntentConceptExplanation): retrieval.IntentConceptExplanation,
	string(retrieval.IntentHomeworkHelp):       retrieval.IntentHomeworkHelp,
	string(retrieval.IntentExamPrep):           retrieval.IntentExamPrep,
	string(retrieval.IntentDoubtResolution):    retrieval.IntentDoubtResolution,
	string(retrieval.IntentOffTopic):           retrieval.IntentOffTopic,
}

func parse(raw, query string) (Classification, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if !gjson.Valid(raw) {
		return Classification{}, fmt.Errorf("invalid JSON classification")
	}
	r := gjson.Parse(raw)

	out := Classification{
		QueryType:        CurriculumSpecific,
		Intent:           retrieval.IntentConceptExplanation,
		TranslatedQuery:  strings.TrimSpace(r.Get("translated_query").String()),
		Confidence:       r.Get("confidence").Float(),
		Reasoning:        r.Get("reasoning").String(),
		ClassLevel:       r.Get("class_level").String(),
		ExtractedSubject: r.Get("extracted_subject").String(),
		Chapter:          r.Get("chapter").String(),
		LectureID:        r.Get("lecture_id").String(),
	}
	if QueryType(r.Get("query_type").String()) == Conversational {
		out.QueryType = Conversational
	}
	if it, ok := knownIntents[r.Get("intent").String()]; ok {
		out.Intent = it
	}
	if out.TranslatedQuery == "" {
		out.TranslatedQuery = query
	}
	for _, s := range r.Get("subjects").Array() {
		if v := strings.TrimSpace(s.String()); v != "" {
			out.Subjects = append(out.Subjects, v)
		}
	}
	if len(out.Subjects) == 0 {
		out.Subjects = []string{"General"}
	}
	return out, nil
}

func formatHistory(history []store.Message, limit int) string {
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Text))
	}
	return strings.Join(lines, "\n")
}

func buildPrompt(query string, history []store.Message) string {
	var b strings.Builder
	b.WriteString("Analyze this student query.\n\n")
	b.WriteString("Tasks:\n")
	b.WriteString("1. If the latest query is a follow-up that relies on the conversation, rewrite it as a standalone English query.\n")
	b.WriteString("2. Translate the query to clear English if it is not already English.\n")
	b.WriteString("3. Classify it as \"conversational\" or \"curriculum_specific\".\n")
	b.WriteString("4. For curriculum queries choose an intent: concept_explanation, homework_help, exam_prep, doubt_resolution or off_topic.\n")
	b.WriteString("5. Detect subjects from [Math, Science, History, Geography, General].\n")
	b.WriteString("6. Extract class_level, extracted_subject, chapter and lecture_id when mentioned in the query or history.\n\n")

	b.WriteString("Conversation history:\n")
	b.WriteString(formatHistory(history, 10))
	b.WriteString("\n\nLatest query: ")
	b.WriteString(query)
	b.WriteString("\n\n")

	b.WriteString("\"conversational\" covers greetings, small talk, general help requests, thanks and meta questions about the chat itself. ")
	b.WriteString("Choose \"curriculum_specific\" only for questions about a specific educational topic.\n\n")
	b.WriteString("Respond with a JSON object with keys: query_type, intent, translated_query, confidence, reasoning, ")
	b.WriteString("subjects (array), class_level, extracted_subject, chapter, lecture_id. Use null for unknown values.")
	return b.String()
}
