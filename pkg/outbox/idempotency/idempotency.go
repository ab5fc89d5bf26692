package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/redis"
)

// Manager claims event ids on behalf of one consumer so redelivered events
// are handled at most once within the TTL.
type Manager struct {
	store    redis.IdempotencyStore
	consumer string
	ttl      time.Duration
}

func NewManager(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, consumer: consumer, ttl: ttl}, nil
}

// Claim is the result of trying to take ownership of an event.
type Claim struct {
	key       string
	store     redis.IdempotencyStore
	Duplicate bool
}

// Claim marks eventID as taken. Duplicate is set when another delivery got
// there first; the caller should ack without doing the work.
func (m *Manager) Claim(ctx context.Context, eventID uuid.UUID) (*Claim, error) {
	if eventID == uuid.Nil {
		return nil, errors.New("event id is required")
	}
	key := m.store.IdempotencyKey("evt:"+m.consumer, eventID.String())
	won, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return nil, err
	}
	return &Claim{key: key, store: m.store, Duplicate: !won}, nil
}

// Release gives the event back so the next delivery can retry it. Releasing a
// duplicate claim is a no-op.
func (c *Claim) Release(ctx context.Context) error {
	if c == nil || c.Duplicate {
		return nil
	}
	return c.store.Del(ctx, c.key)
}
