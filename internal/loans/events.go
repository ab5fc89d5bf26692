package loans

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

const outboxSavepoint = "loan_event"

func loanEvent(loan *models.Loan, book *models.Book, user *models.User) payloads.LoanEvent {
	ev := payloads.LoanEvent{
		LoanID:            loan.ID,
		Status:            loan.Status,
		BookID:            loan.BookID,
		UserID:            loan.UserID,
		ReservationExpiry: loan.ReservationExpiry,
		DueDate:           loan.DueDate,
		ReturnDate:        loan.ReturnDate,
	}
	if book == nil {
		book = loan.Book
	}
	if book != nil {
		ev.BookTitle = book.Title
	}
	if user == nil {
		user = loan.User
	}
	if user != nil {
		ev.Username = user.Username
		ev.Email = user.Email
	}
	return ev
}

func actorOf(p *Principal) *outbox.ActorRef {
	if p == nil {
		return nil
	}
	return &outbox.ActorRef{UserID: p.UserID, Role: string(p.Role)}
}

// emit queues the event in tx behind a savepoint. A failed insert is rolled
// back to the savepoint and logged so the transition still commits.
func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor *Principal, data payloads.LoanEvent) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"loan_id":    data.LoanID.String(),
		"event_type": eventType,
	})
	if err := tx.SavePoint(outboxSavepoint).Error; err != nil {
		s.logg.Error(logCtx, "outbox savepoint failed; event dropped", err)
		return
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateLoan,
		AggregateID:   data.LoanID,
		Actor:         actorOf(actor),
		Data:          data,
	})
	if err == nil {
		return
	}
	if rbErr := tx.RollbackTo(outboxSavepoint).Error; rbErr != nil {
		s.logg.Error(logCtx, "outbox savepoint rollback failed", rbErr)
	}
	s.logg.Error(logCtx, "failed to queue loan event", err)
}
