package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/library-backend/pkg/outbox/registry"
)

type memoryIdempotencyStore struct {
	keys map[string]bool
}

func (m *memoryIdempotencyStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "lib:idempotency:" + scope + ":" + id
}

func (m *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

type recordingMailer struct {
	sent []Mail
	err  error
}

func (r *recordingMailer) Send(_ context.Context, mail Mail) error {
	r.sent = append(r.sent, mail)
	return r.err
}

type handlerFixture struct {
	handler *Handler
	repo    Repository
	mailer  *recordingMailer
	store   *memoryIdempotencyStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	client := dbtest.NewClient(t)
	reg, err := registry.NewEventRegistry(config.PubSubConfig{LoanEventsTopic: "library-loan-events"})
	require.NoError(t, err)
	store := &memoryIdempotencyStore{keys: map[string]bool{}}
	manager, err := idempotency.NewManager(store, ConsumerName, time.Hour)
	require.NoError(t, err)
	repo := NewRepository(client.DB())
	mailer := &recordingMailer{}
	handler, err := NewHandler(HandlerParams{
		Registry:    reg,
		Repository:  repo,
		Mailer:      mailer,
		Idempotency: manager,
		Logger:      logger.Nop(),
	})
	require.NoError(t, err)
	return &handlerFixture{handler: handler, repo: repo, mailer: mailer, store: store}
}

func envelopeFor(t *testing.T, eventID uuid.UUID, ev payloads.LoanEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return body
}

func sampleLoanEvent(userID uuid.UUID) payloads.LoanEvent {
	expiry := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	return payloads.LoanEvent{
		LoanID:            uuid.New(),
		Status:            enums.LoanStatusReserved,
		BookID:            uuid.New(),
		BookTitle:         "The Dispossessed",
		UserID:            userID,
		Username:          "shevek",
		Email:             "shevek@example.com",
		ReservationExpiry: &expiry,
	}
}
