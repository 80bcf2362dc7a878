package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/events"
	pktNats "edu-chatbot-be/pkg/nats"
	"edu-chatbot-be/pkg/rag/memory"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "TASKS"

// maxDeliveries bounds in-process redelivery of a failing task.
const maxDeliveries = 5

// errMalformed marks tasks that can never succeed and must not be retried.
var errMalformed = errors.New("malformed task")

// TaskHandler is the durable writer side of the memory subsystem.
type TaskHandler interface {
	PersistTurn(ctx context.Context, task memory.PersistTurnTask) error
	Summarize(ctx context.Context, sessionID string) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

func dispatch(ctx context.Context, handler TaskHandler, event events.Event) error {
	switch event.EventType() {
	case memory.TaskPersistTurn:
		var task memory.PersistTurnTask
		if err := memory.DecodeTask(event.Payload(), &task); err != nil || task.SessionID == "" {
			return fmt.Errorf("%w: persist_turn payload", errMalformed)
		}
		return handler.PersistTurn(ctx, task)
	case memory.TaskSummarizeSession:
		var task memory.SummarizeTask
		if err := memory.DecodeTask(event.Payload(), &task); err != nil || task.SessionID == "" {
			return fmt.Errorf("%w: summarize_session payload", errMalformed)
		}
		return handler.Summarize(ctx, task.SessionID)
	default:
		return fmt.Errorf("%w: unknown type %q", errMalformed, event.EventType())
	}
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	handler    TaskHandler
	logger     logger.ILogger
	retryDelay time.Duration
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	handler TaskHandler,
	logger logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		handler:    handler,
		logger:     logger,
		retryDelay: 200 * time.Millisecond,
	}
}

// Consume starts the worker. It returns once subscribed; the worker stops
// when ctx is cancelled or the subscriber is closed.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		attempts := make(map[string]int)
		for msg := range messages {
			cs.processMessage(ctx, msg, attempts)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message, attempts map[string]int) {
	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error(consumerModule, "Dropping undecodable task", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack()
		return
	}

	err = dispatch(ctx, cs.handler, event)
	switch {
	case err == nil:
		delete(attempts, msg.UUID)
		msg.Ack()
	case errors.Is(err, errMalformed):
		cs.logger.Error(consumerModule, "Dropping malformed task", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack()
	default:
		attempts[msg.UUID]++
		n := attempts[msg.UUID]
		if n >= maxDeliveries || ctx.Err() != nil {
			cs.logger.Error(consumerModule, "Giving up on task", map[string]interface{}{
				"message_id": msg.UUID,
				"type":       event.EventType(),
				"attempts":   n,
				"error":      err.Error(),
			})
			delete(attempts, msg.UUID)
			msg.Ack()
			return
		}
		cs.logger.Warn(consumerModule, "Task failed, redelivering", map[string]interface{}{
			"message_id": msg.UUID,
			"type":       event.EventType(),
			"attempt":    n,
			"error":      err.Error(),
		})
		select {
		case <-ctx.Done():
		case <-time.After(cs.retryDelay * time.Duration(n)):
		}
		msg.Nack()
	}
}

// NatsSubscriber is what the JetStream subscriber offers.
type NatsSubscriber interface {
	Subscribe(ctx context.Context, durableName string, handler pktNats.EventHandler, eventTypes ...string) error
}

type natsConsumerService struct {
	subscriber  NatsSubscriber
	durableName string
	handler     TaskHandler
	logger      logger.ILogger
}

// NewNatsConsumerService consumes tasks from JetStream. Redelivery is left
// to the consumer's MaxDeliver.
func NewNatsConsumerService(subscriber NatsSubscriber, durableName string, handler TaskHandler, logger logger.ILogger) IConsumerService {
	return &natsConsumerService{
		subscriber:  subscriber,
		durableName: durableName,
		handler:     handler,
		logger:      logger,
	}
}

func (cs *natsConsumerService) Consume(ctx context.Context) error {
	return cs.subscriber.Subscribe(ctx, cs.durableName, func(ctx context.Context, event events.Event) error {
		err := dispatch(ctx, cs.handler, event)
		if errors.Is(err, errMalformed) {
			cs.logger.Error(consumerModule, "Dropping malformed task", map[string]interface{}{"error": err.Error()})
			return nil
		}
		return err
	}, memory.TaskPersistTurn, memory.TaskSummarizeSession)
}
