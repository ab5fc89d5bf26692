package loans

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// checkEligibility runs inside the borrow transaction, right before the
// copy is taken. The first failing rule wins.
func (s *service) checkEligibility(ctx context.Context, repo Repository, userID, bookID uuid.UUID, now time.Time) error {
	overdue, err := repo.HasOverdueLoans(ctx, userID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check overdue loans")
	}
	if overdue {
		return pkgerrors.New(pkgerrors.CodeForbidden, "outstanding overdue loans must be returned first")
	}

	held, err := repo.CountByStatuses(ctx, userID, enums.CopyHoldingLoanStatuses)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active loans")
	}
	if held >= int64(s.cfg.BorrowLimit) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "borrowing limit exceeded").
			WithDetails(map[string]any{"active_loans": held, "limit": s.cfg.BorrowLimit})
	}

	duplicate, err := repo.HasActiveReservation(ctx, userID, bookID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reservations")
	}
	if duplicate {
		return pkgerrors.New(pkgerrors.CodeConflict, "an active reservation for this book already exists")
	}
	return nil
}
