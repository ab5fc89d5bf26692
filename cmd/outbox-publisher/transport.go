package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/outbox/registry"
	"github.com/angelmondragon/library-backend/pkg/rabbitmq"
)

const defaultPublishTimeout = 15 * time.Second

// transport ships one resolved outbox row to the broker.
type transport interface {
	Name() string
	Ping(context.Context) error
	Send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error
}

func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type pubSubTransport struct {
	client  pubSubClient
	factory publisherFactory
}

func newPubSubTransport(client pubSubClient, factory publisherFactory) *pubSubTransport {
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(client.Publisher(topic))
		}
	}
	return &pubSubTransport{client: client, factory: factory}
}

func (t *pubSubTransport) Name() string { return "pubsub" }

func (t *pubSubTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *pubSubTransport) Send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := t.factory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

type rabbitPublisher interface {
	Ping(context.Context) error
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// rabbitTransport publishes to the topic exchange using the descriptor's
// routing key. Attributes travel as AMQP headers.
type rabbitTransport struct {
	client rabbitPublisher
}

func newRabbitTransport(client rabbitPublisher) *rabbitTransport {
	return &rabbitTransport{client: client}
}

func (t *rabbitTransport) Name() string { return "rabbitmq" }

func (t *rabbitTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx)
}

func (t *rabbitTransport) Send(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	routingKey := resolved.Descriptor.RoutingKey
	if routingKey == "" {
		return registry.NewNonRetryableError(fmt.Errorf("routing key missing for %s", event.EventType))
	}
	headers := map[string]any{}
	for k, v := range messageAttributes(event, resolved) {
		headers[k] = v
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return t.client.Publish(publishCtx, rabbitmq.Message{
		ID:         resolved.Envelope.EventID,
		RoutingKey: routingKey,
		Body:       event.Payload,
		Headers:    headers,
		Timestamp:  event.CreatedAt,
	})
}
