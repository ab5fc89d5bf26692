package notifications

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type recordingAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (r *recordingAcknowledger) Ack(uint64, bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks++
	return nil
}

func (r *recordingAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nacks++
	r.requeue = requeue
	return nil
}

func (r *recordingAcknowledger) Reject(uint64, bool) error { return nil }

type channelSource struct {
	ch chan amqp.Delivery
}

func (c channelSource) ConsumeLoanQueue(string) (<-chan amqp.Delivery, error) {
	return c.ch, nil
}

func TestAMQPConsumerAcksHandledDeliveries(t *testing.T) {
	f := newHandlerFixture(t)
	source := channelSource{ch: make(chan amqp.Delivery, 2)}
	consumer, err := NewAMQPConsumer(f.handler, source, logger.Nop())
	require.NoError(t, err)

	ack := &recordingAcknowledger{}
	userID := uuid.New()
	source.ch <- amqp.Delivery{
		Acknowledger: ack,
		MessageId:    "m-1",
		RoutingKey:   "loan.reservation_cancelled",
		Body:         envelopeFor(t, uuid.New(), sampleLoanEvent(userID)),
	}
	source.ch <- amqp.Delivery{
		Acknowledger: ack,
		MessageId:    "m-2",
		Headers:      amqp.Table{AttributeEventType: "unknown_event"},
		Body:         []byte(`{}`),
	}
	close(source.ch)

	err = consumer.Run(context.Background())
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Equal(t, 2, ack.acks)
	assert.Zero(t, ack.nacks)

	rows, _, err := f.repo.List(context.Background(), listNotificationsParams{UserID: userID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeReservationCancelled, rows[0].Type)
}

func TestAMQPConsumerRequeuesOnFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.handler.repo = &failingInbox{err: assert.AnError}
	source := channelSource{ch: make(chan amqp.Delivery, 1)}
	consumer, err := NewAMQPConsumer(f.handler, source, logger.Nop())
	require.NoError(t, err)

	ack := &recordingAcknowledger{}
	source.ch <- amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   "loan.return_confirmed",
		Body:         envelopeFor(t, uuid.New(), sampleLoanEvent(uuid.New())),
	}
	close(source.ch)

	_ = consumer.Run(context.Background())
	assert.Equal(t, 1, ack.nacks)
	assert.True(t, ack.requeue)
}

func TestEventTypeOf(t *testing.T) {
	assert.Equal(t, "return_requested", eventTypeOf(amqp.Delivery{RoutingKey: "loan.return_requested"}))
	assert.Equal(t, "reservation_created", eventTypeOf(amqp.Delivery{
		RoutingKey: "loan.other",
		Headers:    amqp.Table{AttributeEventType: "reservation_created"},
	}))
}
