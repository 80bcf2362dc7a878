package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EventHandler is a function that processes an event.
type EventHandler func(ctx context.Context, event events.Event) error

// Subscriber handles listening for events from NATS.
type Subscriber struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	logger   logger.ILogger
	consumes []jetstream.ConsumeContext
}

func NewSubscriber(url string, logger logger.ILogger) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, logger: logger}, nil
}

// Subscribe registers a durable consumer over the given event types. Handler
// errors Nak the message for redelivery; undecodable messages are acked and
// dropped.
func (s *Subscriber) Subscribe(ctx context.Context, durableName string, handler EventHandler, eventTypes ...string) error {
	subjects := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		subjects[i] = Subject(t)
	}

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:        durableName,
		FilterSubjects: subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		MaxDeliver:     5,
		AckWait:        time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		event, err := events.Decode(msg.Data())
		if err != nil {
			s.logger.Error(module, "Dropping undecodable event", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Ack()
			return
		}
		if event.Type == "" {
			event.Type = strings.TrimPrefix(msg.Subject(), subjectPrefix)
		}

		if err := handler(ctx, event); err != nil {
			s.logger.Warn(module, "Handler failed, message will be redelivered", map[string]interface{}{
				"subject": msg.Subject(),
				"error":   err.Error(),
			})
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	s.consumes = append(s.consumes, cc)

	s.logger.Info(module, "Subscribed", map[string]interface{}{
		"subjects": subjects,
		"durable":  durableName,
	})
	return nil
}

func (s *Subscriber) Close() error {
	for _, cc := range s.consumes {
		cc.Stop()
	}
	if s.nc != nil {
		return s.nc.Drain()
	}
	return nil
}
