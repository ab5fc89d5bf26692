package loans

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

func buildBorrowingStatus(userID uuid.UUID, held []models.Loan, limit int, now time.Time) *BorrowingStatus {
	status := &BorrowingStatus{
		UserID:          userID,
		MaxBooksAllowed: limit,
		BorrowedBooks:   []LoanSummary{},
		ReservedBooks:   []LoanSummary{},
		OverdueBooks:    []LoanSummary{},
	}
	for i := range held {
		loan := &held[i]
		if !loan.Status.IsCopyHolding() {
			continue
		}
		status.ActiveLoans++
		summary := summarize(loan, now)

		switch loan.Status {
		case enums.LoanStatusReserved:
			status.TotalReserved++
			status.ReservedBooks = append(status.ReservedBooks, summary)
			continue
		case enums.LoanStatusReturnRequested:
			status.ReturnRequested++
			continue
		}

		status.TotalBorrowed++
		if loan.IsOverdueAt(now) {
			status.OverdueCount++
			status.OverdueBooks = append(status.OverdueBooks, summary)
		} else {
			status.BorrowedBooks = append(status.BorrowedBooks, summary)
		}
	}

	status.BooksRemaining = limit - status.ActiveLoans
	if status.BooksRemaining < 0 {
		status.BooksRemaining = 0
	}
	status.HasOverdueBooks = status.OverdueCount > 0
	status.CanBorrowMore = status.BooksRemaining > 0 && !status.HasOverdueBooks
	return status
}
