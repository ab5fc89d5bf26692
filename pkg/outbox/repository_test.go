package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

func TestFetchUnpublishedForPublishOrdersAndFilters(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	now := time.Now().UTC()

	newer := seedEvent(t, client.DB(), now, 0)
	older := seedEvent(t, client.DB(), now.Add(-time.Minute), 2)
	seedEvent(t, client.DB(), now.Add(-2*time.Minute), 5)
	published := seedEvent(t, client.DB(), now.Add(-3*time.Minute), 0)
	require.NoError(t, repo.MarkPublishedTx(client.DB(), published.ID))

	rows, err := repo.FetchUnpublishedForPublish(client.DB(), 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, older.ID, rows[0].ID)
	assert.Equal(t, newer.ID, rows[1].ID)

	rows, err = repo.FetchUnpublishedForPublish(client.DB(), 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMarkFailedAndTerminal(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	row := seedEvent(t, client.DB(), time.Now().UTC(), 0)

	require.NoError(t, repo.MarkFailedTx(client.DB(), row.ID, errors.New("broker down")))
	var got models.OutboxEvent
	require.NoError(t, client.DB().First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "broker down", *got.LastError)
	assert.Nil(t, got.PublishedAt)

	require.NoError(t, repo.MarkTerminalTx(client.DB(), row.ID, errors.New("bad payload")))
	require.NoError(t, client.DB().First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, 2, got.AttemptCount)
	assert.NotNil(t, got.PublishedAt)
}

func TestDeletePublishedBefore(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())

	old := seedEvent(t, client.DB(), time.Now().UTC(), 0)
	pending := seedEvent(t, client.DB(), time.Now().UTC(), 0)
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).
		Where("id = ?", old.ID).
		Update("published_at", time.Now().UTC().Add(-48*time.Hour)).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, client.DB().Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending.ID, remaining[0].ID)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewDLQRepository(client.DB())
	row := seedEvent(t, client.DB(), time.Now().UTC(), 0)

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	require.NoError(t, repo.InsertTx(client.DB(), models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := repo.FindByEventID(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)

	missing, err := repo.FindByEventID(context.Background(), models.OutboxEvent{}.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := repo.List(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = repo.List(context.Background(), enums.OutboxDLQReasonNonRetryable, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func deadLetter(t *testing.T, client *gorm.DB, event models.OutboxEvent) {
	t.Helper()
	dlq := NewDLQRepository(client)
	require.NoError(t, NewRepository(client).MarkTerminalTx(client, event.ID, errors.New("no route")))
	require.NoError(t, dlq.InsertTx(client, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		AttemptCount:  1,
		FailedAt:      time.Now().UTC(),
	}))
}

func TestDLQRequeueResetsOutboxRow(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	dlq := NewDLQRepository(client.DB())
	event := seedEvent(t, client.DB(), time.Now().UTC(), 3)
	deadLetter(t, client.DB(), event)

	requeued, err := dlq.Requeue(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, requeued.ID)
	assert.Nil(t, requeued.PublishedAt)
	assert.Zero(t, requeued.AttemptCount)

	pending, err := repo.FetchUnpublishedForPublish(client.DB(), 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	gone, err := dlq.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDLQRequeueRebuildsPrunedRow(t *testing.T) {
	client := dbtest.NewClient(t)
	dlq := NewDLQRepository(client.DB())
	event := seedEvent(t, client.DB(), time.Now().UTC(), 0)
	deadLetter(t, client.DB(), event)
	require.NoError(t, client.DB().Delete(&models.OutboxEvent{}, "id = ?", event.ID).Error)

	requeued, err := dlq.Requeue(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.EventType, requeued.EventType)
	assert.JSONEq(t, string(event.Payload), string(requeued.Payload))
}

func TestDLQRequeueUnknownEvent(t *testing.T) {
	client := dbtest.NewClient(t)
	_, err := NewDLQRepository(client.DB()).Requeue(context.Background(), seedEvent(t, client.DB(), time.Now().UTC(), 0).ID)
	assert.ErrorIs(t, err, ErrNotDeadLettered)
}
