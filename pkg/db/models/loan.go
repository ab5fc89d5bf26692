package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/enums"
)

// Loan is one copy-holding claim of a user against a book.
type Loan struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index:idx_loans_user_status,priority:1"`
	BookID            uuid.UUID        `gorm:"column:book_id;type:uuid;not null;index"`
	Status            enums.LoanStatus `gorm:"column:status;type:loan_status;not null;index:idx_loans_user_status,priority:2"`
	ReservationExpiry *time.Time       `gorm:"column:reservation_expiry"`
	BorrowDate        *time.Time       `gorm:"column:borrow_date"`
	DueDate           *time.Time       `gorm:"column:due_date"`
	ReturnDate        *time.Time       `gorm:"column:return_date"`
	CollectedByAdmin  *uuid.UUID       `gorm:"column:collected_by_admin;type:uuid"`
	CollectedAt       *time.Time       `gorm:"column:collected_at"`
	ReturnRequestedAt *time.Time       `gorm:"column:return_requested_at"`
	CancelledAt       *time.Time       `gorm:"column:cancelled_at"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Book *Book `gorm:"foreignKey:BookID;references:ID"`
	User *User `gorm:"foreignKey:UserID;references:ID"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// IsOverdueAt reports whether a collected loan is past its due date at now,
// whether or not the sweep has flipped its status yet.
func (l Loan) IsOverdueAt(now time.Time) bool {
	if l.Status != enums.LoanStatusBorrowed && l.Status != enums.LoanStatusOverdue {
		return false
	}
	return l.DueDate != nil && l.DueDate.Before(now)
}

// ReservationExpiredAt reports whether a reservation can no longer be collected.
func (l Loan) ReservationExpiredAt(now time.Time) bool {
	return l.Status == enums.LoanStatusReserved && l.ReservationExpiry != nil && l.ReservationExpiry.Before(now)
}
