package notifications

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/library-backend/pkg/logger"
)

// AttributeEventType carries the event type on Pub/Sub messages and AMQP headers.
const AttributeEventType = "event_type"

// Consumer receives loan events from the notification subscription.
type Consumer struct {
	handler      *Handler
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer builds a Pub/Sub loan notification consumer.
func NewConsumer(handler *Handler, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("notification handler required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		handler:      handler,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logg.Info(ctx, "pubsub notification consumer started")
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		switch c.handler.Handle(ctx, msg.ID, msg.Attributes[AttributeEventType], msg.Data) {
		case OutcomeRetry:
			msg.Nack()
		default:
			msg.Ack()
		}
	})
}
