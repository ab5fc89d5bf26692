package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// LoanBindingKey routes every loan lifecycle event to the notification queue.
const LoanBindingKey = "loan.#"

// Message is what the outbox publisher ships to the exchange.
type Message struct {
	ID         string
	RoutingKey string
	Body       []byte
	Headers    map[string]any
	Timestamp  time.Time
}

// Client owns one connection and one channel bound to the events exchange.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	cfg  config.RabbitMQConfig
	mu   sync.Mutex
}

// New dials the broker and declares the durable topic exchange, the loan
// notification queue and its binding.
func New(ctx context.Context, cfg config.RabbitMQConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	c := &Client{conn: conn, ch: ch, cfg: cfg}
	if err := c.declareTopology(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "rabbitmq client initialized")
	}
	return c, nil
}

func (c *Client) declareTopology() error {
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange %q: %w", c.cfg.Exchange, err)
	}
	if _, err := c.ch.QueueDeclare(c.cfg.LoanQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %q: %w", c.cfg.LoanQueue, err)
	}
	if err := c.ch.QueueBind(c.cfg.LoanQueue, LoanBindingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %q: %w", c.cfg.LoanQueue, err)
	}
	return nil
}

// Publish sends a persistent JSON message to the events exchange.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	if c == nil || c.ch == nil {
		return errors.New("rabbitmq client not initialized")
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, c.cfg.Exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    ts,
		Headers:      amqp.Table(msg.Headers),
		Body:         msg.Body,
	})
}

// ConsumeLoanQueue starts a manual-ack consumer on the loan notification queue.
func (c *Client) ConsumeLoanQueue(consumer string) (<-chan amqp.Delivery, error) {
	if c == nil || c.ch == nil {
		return nil, errors.New("rabbitmq client not initialized")
	}
	prefetch := c.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("setting qos: %w", err)
	}
	return c.ch.Consume(c.cfg.LoanQueue, consumer, false, false, false, false, nil)
}

// Ping reports whether the connection is still open.
func (c *Client) Ping(context.Context) error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.ch != nil {
		if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
