package service

import (
	"context"
	"fmt"

	"edu-chatbot-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// IPublisherService puts background tasks on the queue. Enqueue is the same
// operation under the name the memory subsystem expects.
type IPublisherService interface {
	Publish(ctx context.Context, event events.Event) error
	Enqueue(ctx context.Context, event events.Event) error
}

type publisherService struct {
	topicName string
	publisher message.Publisher
}

// NewPublisherService publishes onto a watermill topic (the in-process
// gochannel by default).
func NewPublisherService(topicName string, publisher message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
	}
}

func (p *publisherService) Publish(ctx context.Context, event events.Event) error {
	payload, err := events.Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.EventType())
	if err := p.publisher.Publish(p.topicName, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}
	return nil
}

func (p *publisherService) Enqueue(ctx context.Context, event events.Event) error {
	return p.Publish(ctx, event)
}

// EventPublisher is what the NATS publisher offers.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type natsPublisherService struct {
	publisher EventPublisher
}

// NewNatsPublisherService sends tasks through JetStream so they survive a
// process restart.
func NewNatsPublisherService(publisher EventPublisher) IPublisherService {
	return &natsPublisherService{publisher: publisher}
}

func (p *natsPublisherService) Publish(ctx context.Context, event events.Event) error {
	return p.publisher.Publish(ctx, event)
}

func (p *natsPublisherService) Enqueue(ctx context.Context, event events.Event) error {
	return p.publisher.Publish(ctx, event)
}
