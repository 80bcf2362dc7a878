package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/internal/dto"
	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/internal/repository/contract"
	"edu-chatbot-be/pkg/events"
	"edu-chatbot-be/pkg/rag/orchestrator"
	"edu-chatbot-be/pkg/store"

	"github.com/google/uuid"
)

const chatModule = "CHATBOT"

// IChatbotService defines the chatbot service interface
type IChatbotService interface {
	SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error)
	Health(ctx context.Context) *dto.HealthResponse
}

type TurnRunner interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.TurnState, error)
}

// BackgroundUsage reports summarization tokens spent since the last turn.
type BackgroundUsage interface {
	TakeBackgroundUsage(ctx context.Context, sessionID string) store.Usage
}

type PingFunc func(ctx context.Context) error

type ChatbotConfig struct {
	TurnTimeout time.Duration
	LockTTL     time.Duration
}

type chatbotService struct {
	runner   TurnRunner
	cache    contract.FastCache
	usage    BackgroundUsage
	events   EventPublisher
	dbPing   PingFunc
	cfg      ChatbotConfig
	logger   logger.ILogger
	newToken func() string
}

// NewChatbotService builds the turn entry point. cache, usage, eventPublisher
// and dbPing may be nil; without a cache turns run unlocked.
func NewChatbotService(
	runner TurnRunner,
	cache contract.FastCache,
	usage BackgroundUsage,
	eventPublisher EventPublisher,
	dbPing PingFunc,
	cfg ChatbotConfig,
	logger logger.ILogger,
) IChatbotService {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 60 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 300 * time.Second
	}
	return &chatbotService{
		runner:   runner,
		cache:    cache,
		usage:    usage,
		events:   eventPublisher,
		dbPing:   dbPing,
		cfg:      cfg,
		logger:   logger,
		newToken: uuid.NewString,
	}
}

func LockKey(sessionID string) string {
	return "lock:chat:" + sessionID
}

// SendChat processes one turn. At most one turn per session runs at a time;
// a concurrent request fails fast with ErrSessionBusy.
func (cs *chatbotService) SendChat(ctx context.Context, request *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	sessionID := request.UserSessionID

	release, err := cs.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	turnID := cs.newToken()
	turnCtx, cancel := context.WithTimeout(ctx, cs.cfg.TurnTimeout)
	defer cancel()

	start := time.Now()
	state, err := cs.runner.Run(turnCtx, orchestrator.Request{
		TurnID:    turnID,
		SessionID: sessionID,
		UserID:    request.UserID,
		Role:      request.UserType,
		Query:     request.Query,
		Language:  request.Language,
		Mode:      request.AgentMode,
		Grade:     request.StudentGrade,
		Filters:   request.Filters,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			cs.logger.Warn(chatModule, "Turn timed out", map[string]interface{}{
				"session_id": sessionID,
				"turn_id":    turnID,
				"timeout":    cs.cfg.TurnTimeout.String(),
				"path":       strings.Join(state.Path, ">"),
			})
			return nil, ErrTurnTimeout
		}
		return nil, fmt.Errorf("run turn: %w", err)
	}

	var background store.Usage
	if cs.usage != nil {
		background = cs.usage.TakeBackgroundUsage(ctx, sessionID)
	}

	res := toResponse(sessionID, state, background)
	cs.publishTurnCompleted(ctx, turnID, request, state, background, time.Since(start))
	return res, nil
}

// lock takes the session lock. When the cache is unavailable the turn runs
// unlocked rather than failing.
func (cs *chatbotService) lock(ctx context.Context, sessionID string) (func(), error) {
	noop := func() {}
	if cs.cache == nil {
		return noop, nil
	}

	key := LockKey(sessionID)
	token := cs.newToken()
	ok, err := cs.cache.AcquireLock(ctx, key, token, cs.cfg.LockTTL)
	if err != nil {
		cs.logger.Warn(chatModule, "Session lock unavailable, continuing without it", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return noop, nil
	}
	if !ok {
		cs.logger.Info(chatModule, "Rejected concurrent turn", map[string]interface{}{"session_id": sessionID})
		return nil, ErrSessionBusy
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := cs.cache.ReleaseLock(rctx, key, token); err != nil {
			cs.logger.Error(chatModule, "Failed to release session lock", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}, nil
}

func intentLabel(s orchestrator.TurnState) string {
	if s.IsConversational() {
		return string(s.QueryType)
	}
	return string(s.Intent)
}

func toResponse(sessionID string, s orchestrator.TurnState, background store.Usage) *dto.SendChatResponse {
	timings := make(map[string]float64, len(s.Timings))
	for k, d := range s.Timings {
		timings[k] = float64(d.Microseconds()) / 1000
	}
	citations := s.Citations
	if citations == nil {
		citations = []store.Citation{}
	}
	return &dto.SendChatResponse{
		UserSessionID:    sessionID,
		Message:          s.Response,
		Intent:           intentLabel(s),
		Language:         s.Language,
		Citations:        citations,
		LLMCalls:         s.Usage.LLMCalls,
		InputTokens:      s.Usage.InputTokens,
		OutputTokens:     s.Usage.OutputTokens,
		TotalTokens:      s.Usage.Total(),
		BackgroundTokens: background.Total(),
		Timings:          timings,
	}
}

func (cs *chatbotService) publishTurnCompleted(ctx context.Context, turnID string, req *dto.SendChatRequest, s orchestrator.TurnState, background store.Usage, elapsed time.Duration) {
	if cs.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	evt := events.New(events.TurnCompleted, map[string]interface{}{
		"turn_id":           turnID,
		"session_id":        req.UserSessionID,
		"user_id":           req.UserID,
		"user_type":         req.UserType,
		"intent":            intentLabel(s),
		"language":          s.Language,
		"llm_calls":         s.Usage.LLMCalls,
		"input_tokens":      s.Usage.InputTokens,
		"output_tokens":     s.Usage.OutputTokens,
		"background_tokens": background.Total(),
		"citations":         len(s.Citations),
		"correction":        s.IsCorrection,
		"fallback":          s.Fallback,
		"path":              s.Path,
		"elapsed_ms":        elapsed.Milliseconds(),
	})
	if err := cs.events.Publish(pctx, evt); err != nil {
		cs.logger.Warn(chatModule, "Failed to publish turn_completed", map[string]interface{}{
			"turn_id": turnID,
			"error":   err.Error(),
		})
	}
}

func (cs *chatbotService) Health(ctx context.Context) *dto.HealthResponse {
	res := &dto.HealthResponse{Status: "ok", Cache: "disabled", Database: "disabled"}

	if cs.cache != nil {
		res.Cache = "ok"
		if err := cs.cache.Ping(ctx); err != nil {
			res.Cache = "unreachable"
			res.Status = "degraded"
		}
	}
	if cs.dbPing != nil {
		res.Database = "ok"
		if err := cs.dbPing(ctx); err != nil {
			res.Database = "unreachable"
			res.Status = "degraded"
		}
	}
	return res
}
