package notifications

import (
	"context"

	"github.com/angelmondragon/library-backend/pkg/logger"
)

// Mail is one outgoing member email.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers member emails. Delivery itself lives outside this service.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer writes mails to the structured log instead of sending them.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, mail Mail) error {
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"mail_to":      mail.To,
		"mail_subject": mail.Subject,
	})
	m.logg.Info(logCtx, "mail queued for delivery")
	return nil
}
