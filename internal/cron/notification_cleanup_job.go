package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/library-backend/pkg/logger"
)

const (
	defaultReadRetention   = 30 * 24 * time.Hour
	defaultUnreadRetention = 90 * 24 * time.Hour
)

type NotificationCleanupJobParams struct {
	Logger          *logger.Logger
	Repository      inboxPruner
	ReadRetention   time.Duration
	UnreadRetention time.Duration
}

type inboxPruner interface {
	Prune(ctx context.Context, readBefore, unreadBefore time.Time) (int64, error)
}

// NewNotificationCleanupJob prunes member inboxes. Unread retention is never
// shorter than read retention.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	read := params.ReadRetention
	if read <= 0 {
		read = defaultReadRetention
	}
	unread := params.UnreadRetention
	if unread <= 0 {
		unread = defaultUnreadRetention
	}
	if unread < read {
		unread = read
	}
	return &notificationCleanupJob{
		logg:   params.Logger,
		inbox:  params.Repository,
		read:   read,
		unread: unread,
		now:    time.Now,
	}, nil
}

type notificationCleanupJob struct {
	logg   *logger.Logger
	inbox  inboxPruner
	read   time.Duration
	unread time.Duration
	now    func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	readBefore, unreadBefore := now.Add(-j.read), now.Add(-j.unread)
	pruned, err := j.inbox.Prune(ctx, readBefore, unreadBefore)
	if err != nil {
		return fmt.Errorf("prune notifications: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"read_before":   readBefore,
		"unread_before": unreadBefore,
		"rows_deleted":  pruned,
	}), "notification inbox pruned")
	return nil
}
