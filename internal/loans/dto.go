package loans

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// Principal is the authenticated caller of a loan operation.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (p Principal) IsAdmin() bool {
	return p.Role.IsAdmin()
}

func (p Principal) owns(loan *models.Loan) bool {
	return loan != nil && loan.UserID == p.UserID
}

// ListFilter narrows ListLoans. UserID is ignored for non-admin callers.
type ListFilter struct {
	Statuses []enums.LoanStatus
	BookID   *uuid.UUID
	UserID   *uuid.UUID
	Limit    int
}

// ReturnResult is what ConfirmReturn hands back to the desk.
type ReturnResult struct {
	Loan       *models.Loan
	Book       *models.Book
	WasOverdue bool
}

// SweepResult counts what one maintenance run changed.
type SweepResult struct {
	OverduePromoted     int `json:"overdue_promoted"`
	ReservationsExpired int `json:"reservations_expired"`
}

// BorrowingStatus summarises a member's copy-holding loans. Overdue is judged
// against due_date at call time, not only the stored status.
type BorrowingStatus struct {
	UserID          uuid.UUID     `json:"user_id"`
	TotalBorrowed   int           `json:"total_borrowed"`
	TotalReserved   int           `json:"total_reserved"`
	OverdueCount    int           `json:"overdue_count"`
	ReturnRequested int           `json:"return_requested"`
	ActiveLoans     int           `json:"active_loans"`
	MaxBooksAllowed int           `json:"max_books_allowed"`
	BooksRemaining  int           `json:"books_remaining"`
	CanBorrowMore   bool          `json:"can_borrow_more"`
	HasOverdueBooks bool          `json:"has_overdue_books"`
	BorrowedBooks   []LoanSummary `json:"borrowed_books"`
	ReservedBooks   []LoanSummary `json:"reserved_books"`
	OverdueBooks    []LoanSummary `json:"overdue_books"`
}

// LoanSummary is the per-loan line of a borrowing status.
type LoanSummary struct {
	LoanID            uuid.UUID        `json:"loan_id"`
	BookID            uuid.UUID        `json:"book_id"`
	Title             string           `json:"title"`
	Author            string           `json:"author"`
	Status            enums.LoanStatus `json:"status"`
	ReservationExpiry *time.Time       `json:"reservation_expiry,omitempty"`
	BorrowDate        *time.Time       `json:"borrow_date,omitempty"`
	DueDate           *time.Time       `json:"due_date,omitempty"`
	DaysOverdue       int              `json:"days_overdue,omitempty"`
}

// LoanDTO is the API shape of a loan.
type LoanDTO struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"user_id"`
	BookID            uuid.UUID        `json:"book_id"`
	Status            enums.LoanStatus `json:"status"`
	ReservationExpiry *time.Time       `json:"reservation_expiry,omitempty"`
	BorrowDate        *time.Time       `json:"borrow_date,omitempty"`
	DueDate           *time.Time       `json:"due_date,omitempty"`
	ReturnDate        *time.Time       `json:"return_date,omitempty"`
	CollectedByAdmin  *uuid.UUID       `json:"collected_by_admin,omitempty"`
	CollectedAt       *time.Time       `json:"collected_at,omitempty"`
	ReturnRequestedAt *time.Time       `json:"return_requested_at,omitempty"`
	CancelledAt       *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Book              *books.BookDTO   `json:"book,omitempty"`
}

// ReturnResultDTO is the API shape of ReturnResult.
type ReturnResultDTO struct {
	Loan       *LoanDTO       `json:"loan"`
	Book       *books.BookDTO `json:"book"`
	WasOverdue bool           `json:"was_overdue"`
}

func FromModel(l *models.Loan) *LoanDTO {
	if l == nil {
		return nil
	}
	return &LoanDTO{
		ID:                l.ID,
		UserID:            l.UserID,
		BookID:            l.BookID,
		Status:            l.Status,
		ReservationExpiry: l.ReservationExpiry,
		BorrowDate:        l.BorrowDate,
		DueDate:           l.DueDate,
		ReturnDate:        l.ReturnDate,
		CollectedByAdmin:  l.CollectedByAdmin,
		CollectedAt:       l.CollectedAt,
		ReturnRequestedAt: l.ReturnRequestedAt,
		CancelledAt:       l.CancelledAt,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
		Book:              books.FromModel(l.Book),
	}
}

func FromModels(rows []models.Loan) []LoanDTO {
	out := make([]LoanDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

func FromReturnResult(r *ReturnResult) *ReturnResultDTO {
	if r == nil {
		return nil
	}
	return &ReturnResultDTO{
		Loan:       FromModel(r.Loan),
		Book:       books.FromModel(r.Book),
		WasOverdue: r.WasOverdue,
	}
}

func summarize(l *models.Loan, now time.Time) LoanSummary {
	s := LoanSummary{
		LoanID:            l.ID,
		BookID:            l.BookID,
		Status:            l.Status,
		ReservationExpiry: l.ReservationExpiry,
		BorrowDate:        l.BorrowDate,
		DueDate:           l.DueDate,
	}
	if l.Book != nil {
		s.Title = l.Book.Title
		s.Author = l.Book.Author
	}
	if l.IsOverdueAt(now) {
		s.DaysOverdue = int(now.Sub(*l.DueDate).Hours() / 24)
	}
	return s
}
