package notifications

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/library-backend/pkg/logger"
)

const amqpConsumerTag = "notification-worker"

type deliverySource interface {
	ConsumeLoanQueue(consumer string) (<-chan amqp.Delivery, error)
}

// AMQPConsumer receives loan events from the RabbitMQ loan queue.
type AMQPConsumer struct {
	handler *Handler
	source  deliverySource
	logg    *logger.Logger
}

func NewAMQPConsumer(handler *Handler, source deliverySource, logg *logger.Logger) (*AMQPConsumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("notification handler required")
	}
	if source == nil {
		return nil, fmt.Errorf("rabbitmq client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &AMQPConsumer{handler: handler, source: source, logg: logg}, nil
}

// Run consumes until ctx is canceled or the channel closes.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	deliveries, err := c.source.ConsumeLoanQueue(amqpConsumerTag)
	if err != nil {
		return fmt.Errorf("consume loan queue: %w", err)
	}
	c.logg.Info(ctx, "rabbitmq notification consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *AMQPConsumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var settleErr error
	switch c.handler.Handle(ctx, d.MessageId, eventTypeOf(d), d.Body) {
	case OutcomeRetry:
		settleErr = d.Nack(false, true)
	default:
		settleErr = d.Ack(false)
	}
	if settleErr != nil {
		c.logg.Error(c.logg.WithField(ctx, "message_id", d.MessageId), "failed to settle delivery", settleErr)
	}
}

// eventTypeOf prefers the event_type header and falls back to the routing key.
func eventTypeOf(d amqp.Delivery) string {
	if v, ok := d.Headers[AttributeEventType].(string); ok && v != "" {
		return v
	}
	return strings.TrimPrefix(d.RoutingKey, "loan.")
}
