package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/enums"
)

// LoanEvent is the data carried by every loan lifecycle event. It snapshots
// the book and borrower so consumers can render a notification without
// reading the lending tables.
type LoanEvent struct {
	LoanID            uuid.UUID        `json:"loan_id"`
	Status            enums.LoanStatus `json:"status"`
	BookID            uuid.UUID        `json:"book_id"`
	BookTitle         string           `json:"book_title"`
	UserID            uuid.UUID        `json:"user_id"`
	Username          string           `json:"username"`
	Email             string           `json:"email"`
	ReservationExpiry *time.Time       `json:"reservation_expiry,omitempty"`
	DueDate           *time.Time       `json:"due_date,omitempty"`
	ReturnDate        *time.Time       `json:"return_date,omitempty"`
	WasOverdue        bool             `json:"was_overdue,omitempty"`
}
