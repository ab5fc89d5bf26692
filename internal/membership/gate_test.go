package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

type fakeLapser struct {
	calls []uuid.UUID
	err   error
}

func (f *fakeLapser) MarkMembershipLapsed(_ context.Context, id uuid.UUID) (bool, error) {
	f.calls = append(f.calls, id)
	return f.err == nil, f.err
}

func newTestGate(lapser Lapser, now time.Time) *Gate {
	g := NewGate(lapser, nil)
	g.now = func() time.Time { return now }
	return g
}

func TestCheckAllowsApprovedMember(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(24 * time.Hour)
	lapser := &fakeLapser{}
	gate := newTestGate(lapser, now)

	require.NoError(t, gate.Check(context.Background(), &models.User{
		ID:               uuid.New(),
		MembershipStatus: enums.MembershipStatusApproved,
	}))
	require.NoError(t, gate.Check(context.Background(), &models.User{
		ID:                   uuid.New(),
		MembershipStatus:     enums.MembershipStatusApproved,
		MembershipExpiryDate: &expiry,
	}))
	assert.Empty(t, lapser.calls)
}

func TestCheckDeniesInactiveMember(t *testing.T) {
	lapser := &fakeLapser{}
	gate := newTestGate(lapser, time.Now())

	for _, status := range []enums.MembershipStatus{enums.MembershipStatusPending, enums.MembershipStatusSuspended} {
		err := gate.Check(context.Background(), &models.User{ID: uuid.New(), MembershipStatus: status})
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
	}
	assert.Empty(t, lapser.calls)
}

func TestCheckExpiredMembershipIsCorrected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(-time.Minute)
	lapser := &fakeLapser{}
	gate := newTestGate(lapser, now)
	user := &models.User{
		ID:                   uuid.New(),
		MembershipStatus:     enums.MembershipStatusApproved,
		MembershipExpiryDate: &expiry,
	}

	err := gate.Check(context.Background(), user)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
	assert.Equal(t, []uuid.UUID{user.ID}, lapser.calls)
}

func TestCheckCorrectiveWriteFailureStillDenies(t *testing.T) {
	now := time.Now().UTC()
	expiry := now.Add(-time.Hour)
	gate := newTestGate(&fakeLapser{err: errors.New("db down")}, now)

	err := gate.Check(context.Background(), &models.User{
		ID:                   uuid.New(),
		MembershipStatus:     enums.MembershipStatusApproved,
		MembershipExpiryDate: &expiry,
	})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))
}

func TestCheckNilUser(t *testing.T) {
	gate := newTestGate(nil, time.Now())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(gate.Check(context.Background(), nil)))
}
