package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/library-backend/pkg/outbox/registry"
)

// ConsumerName scopes idempotency claims for the loan notification consumer.
const ConsumerName = "loan-notifications"

type eventDecoder interface {
	Decode(eventType string, body []byte) (*registry.ResolvedEvent, error)
}

type inboxWriter interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

// Outcome tells the transport what to do with a delivery.
type Outcome int

const (
	// OutcomeAck settles the delivery, including poison messages.
	OutcomeAck Outcome = iota
	// OutcomeRetry asks the broker to redeliver.
	OutcomeRetry
)

// HandlerParams wires the shared event handler. Idempotency is optional:
// without it duplicates are still absorbed by the event_id unique index.
type HandlerParams struct {
	Registry    eventDecoder
	Repository  inboxWriter
	Mailer      Mailer
	Idempotency *idempotency.Manager
	Logger      *logger.Logger
}

// Handler turns loan events into inbox rows and member emails. It is shared
// by the Pub/Sub and RabbitMQ consumers.
type Handler struct {
	registry    eventDecoder
	repo        inboxWriter
	mailer      Mailer
	idempotency *idempotency.Manager
	logg        *logger.Logger
}

func NewHandler(params HandlerParams) (*Handler, error) {
	if params.Registry == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	mailer := params.Mailer
	if mailer == nil {
		mailer = NewLogMailer(params.Logger)
	}
	return &Handler{
		registry:    params.Registry,
		repo:        params.Repository,
		mailer:      mailer,
		idempotency: params.Idempotency,
		logg:        params.Logger,
	}, nil
}

// Handle processes one delivered message body.
func (h *Handler) Handle(ctx context.Context, messageID, eventType string, body []byte) Outcome {
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	resolved, err := h.registry.Decode(eventType, body)
	if err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			h.logg.Warn(h.logg.WithField(logCtx, "reason", err.Error()), "dropping undecodable event")
			return OutcomeAck
		}
		h.logg.Error(logCtx, "failed to decode event", err)
		return OutcomeRetry
	}

	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		h.logg.Error(logCtx, "invalid event id", err)
		return OutcomeAck
	}
	payload, ok := resolved.Payload.(*payloads.LoanEvent)
	if !ok {
		h.logg.Warn(logCtx, "unexpected payload type")
		return OutcomeAck
	}
	logCtx = h.logg.WithFields(logCtx, map[string]any{
		"event_id": eventID.String(),
		"loan_id":  payload.LoanID.String(),
		"user_id":  payload.UserID.String(),
	})

	var claim *idempotency.Claim
	if h.idempotency != nil {
		claim, err = h.idempotency.Claim(ctx, eventID)
		if err != nil {
			h.logg.Error(logCtx, "idempotency check failed", err)
			return OutcomeRetry
		}
		if claim.Duplicate {
			h.logg.Info(logCtx, "event already processed")
			return OutcomeAck
		}
	}

	if err := h.notify(ctx, resolved.Descriptor.EventType, eventID, payload, logCtx); err != nil {
		h.logg.Error(logCtx, "notification handling failed", err)
		if err := claim.Release(ctx); err != nil {
			h.logg.Error(logCtx, "failed to release idempotency claim", err)
		}
		return OutcomeRetry
	}
	return OutcomeAck
}

func (h *Handler) notify(ctx context.Context, eventType enums.OutboxEventType, eventID uuid.UUID, ev *payloads.LoanEvent, logCtx context.Context) error {
	text, ok := render(eventType, *ev)
	notificationType, typed := eventType.NotificationType()
	if !ok || !typed {
		h.logg.Info(logCtx, "event does not notify members")
		return nil
	}
	if ev.UserID == uuid.Nil {
		return fmt.Errorf("user id missing")
	}

	loanID := ev.LoanID
	notification := &models.Notification{
		UserID:  ev.UserID,
		Type:    notificationType,
		Title:   text.Title,
		Message: text.Message,
		LoanID:  &loanID,
		EventID: &eventID,
	}
	created, err := h.repo.Create(ctx, notification)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if !created {
		h.logg.Info(logCtx, "notification already stored for event")
		return nil
	}

	if ev.Email == "" {
		h.logg.Warn(logCtx, "member has no email; inbox only")
		return nil
	}
	// mail failures are logged only; the inbox row is already stored
	if err := h.mailer.Send(ctx, Mail{To: ev.Email, Subject: text.Title, Body: text.Message}); err != nil {
		h.logg.Error(logCtx, "failed to send notification mail", err)
	}
	h.logg.Info(logCtx, "member notified")
	return nil
}
