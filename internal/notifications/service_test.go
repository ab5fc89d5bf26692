package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

func seedNotifications(t *testing.T, repo Repository, userID uuid.UUID, n int, base time.Time) []models.Notification {
	t.Helper()
	out := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		row := &models.Notification{
			UserID:    userID,
			Type:      enums.NotificationTypeReservationCreated,
			Title:     "Reservation confirmed",
			Message:   "held",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		created, err := repo.Create(context.Background(), row)
		require.NoError(t, err)
		require.True(t, created)
		out = append(out, *row)
	}
	return out
}

func TestListPagesNewestFirst(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	require.NoError(t, err)
	userID := uuid.New()
	seedNotifications(t, repo, userID, 5, time.Now().UTC().Add(-time.Hour))
	seedNotifications(t, repo, uuid.New(), 2, time.Now().UTC().Add(-time.Hour))

	ctx := context.Background()
	first, err := svc.List(ctx, ListParams{UserID: userID, Limit: 3})
	require.NoError(t, err)
	require.Len(t, first.Items, 3)
	require.NotEmpty(t, first.Cursor)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt))

	second, err := svc.List(ctx, ListParams{UserID: userID, Limit: 3, Cursor: first.Cursor})
	require.NoError(t, err)
	assert.Len(t, second.Items, 2)
	assert.Empty(t, second.Cursor)

	seen := map[uuid.UUID]bool{}
	for _, n := range append(first.Items, second.Items...) {
		assert.False(t, seen[n.ID])
		seen[n.ID] = true
	}

	_, err = svc.List(ctx, ListParams{UserID: userID, Cursor: "!!"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestMarkReadScopedToOwner(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	require.NoError(t, err)
	owner := uuid.New()
	rows := seedNotifications(t, repo, owner, 2, time.Now().UTC())
	ctx := context.Background()

	err = svc.MarkRead(ctx, uuid.New(), rows[0].ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	require.NoError(t, svc.MarkRead(ctx, owner, rows[0].ID))
	// marking twice is fine
	require.NoError(t, svc.MarkRead(ctx, owner, rows[0].ID))

	unread, err := svc.List(ctx, ListParams{UserID: owner, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	assert.Equal(t, rows[1].ID, unread.Items[0].ID)

	count, err := svc.MarkAllRead(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = svc.MarkAllRead(ctx, uuid.Nil)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

func TestPruneKeepsUnreadLonger(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	now := time.Now().UTC()
	userID := uuid.New()

	oldRows := seedNotifications(t, repo, userID, 2, now.AddDate(0, 0, -40))
	seedNotifications(t, repo, userID, 1, now)
	_, err := repo.MarkRead(ctx, userID, oldRows[0].ID, now)
	require.NoError(t, err)

	deleted, err := repo.Prune(ctx, now.AddDate(0, 0, -30), now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = repo.Prune(ctx, now.AddDate(0, 0, -30), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestCreateDuplicateEventID(t *testing.T) {
	client := dbtest.NewClient(t)
	repo := NewRepository(client.DB())
	eventID := uuid.New()
	build := func() *models.Notification {
		id := eventID
		return &models.Notification{
			UserID:  uuid.New(),
			Type:    enums.NotificationTypeReturnConfirmed,
			Title:   "Return confirmed",
			Message: "thanks",
			EventID: &id,
		}
	}

	created, err := repo.Create(context.Background(), build())
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.Create(context.Background(), build())
	require.NoError(t, err)
	assert.False(t, created)
}
