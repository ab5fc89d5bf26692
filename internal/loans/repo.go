package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// Repository defines persistence operations for the loans table. Status
// writes are compare-and-swap on the current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, loan *models.Loan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	FindBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.LoanStatus, fields map[string]any) (bool, error)
	ExpireReservation(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	CountByStatuses(ctx context.Context, userID uuid.UUID, statuses []enums.LoanStatus) (int64, error)
	HasOverdueLoans(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error)
	HasActiveReservation(ctx context.Context, userID, bookID uuid.UUID, now time.Time) (bool, error)
	ListHeldByUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error)
	List(ctx context.Context, filter ListFilter) ([]models.Loan, error)
	ListPendingReservations(ctx context.Context, now time.Time, limit int) ([]models.Loan, error)
	PromoteOverdue(ctx context.Context, now time.Time) (int64, error)
	FindExpiredReservations(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]models.Loan, error)
	LockUser(ctx context.Context, userID uuid.UUID) error
	FindLapsedReservation(ctx context.Context, userID, bookID uuid.UUID, now time.Time) (*models.Loan, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(loan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Book").
		Preload("User").
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *repository) FindBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.LoanStatus, fields map[string]any) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ExpireReservation(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND status = ? AND reservation_expiry < ?", id, enums.LoanStatusReserved, now).
		Update("status", enums.LoanStatusExpired)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) CountByStatuses(ctx context.Context, userID uuid.UUID, statuses []enums.LoanStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND status IN ?", userID, statuses).
		Count(&count).Error
	return count, err
}

func (r *repository) HasOverdueLoans(ctx context.Context, userID uuid.UUID, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND status IN ? AND due_date < ?",
			userID, []enums.LoanStatus{enums.LoanStatusBorrowed, enums.LoanStatusOverdue}, now).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) HasActiveReservation(ctx context.Context, userID, bookID uuid.UUID, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND book_id = ? AND status = ? AND reservation_expiry >= ?",
			userID, bookID, enums.LoanStatusReserved, now).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListHeldByUser(ctx context.Context, userID uuid.UUID) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Preload("Book").
		Where("user_id = ? AND status IN ?", userID, enums.CopyHoldingLoanStatuses).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Loan, error) {
	q := r.db.WithContext(ctx).Preload("Book")
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.BookID != nil {
		q = q.Where("book_id = ?", *filter.BookID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	var rows []models.Loan
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPendingReservations(ctx context.Context, now time.Time, limit int) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Preload("Book").
		Preload("User").
		Where("status = ? AND reservation_expiry >= ?", enums.LoanStatusReserved, now).
		Order("reservation_expiry ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) PromoteOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status = ? AND due_date < ?", enums.LoanStatusBorrowed, now).
		Update("status", enums.LoanStatusOverdue)
	return res.RowsAffected, res.Error
}

// FindExpiredReservations pages through lapsed reservations by id, starting
// after the given id.
func (r *repository) FindExpiredReservations(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("status = ? AND reservation_expiry < ? AND id > ?", enums.LoanStatusReserved, now, after).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// LockUser takes a row lock on the user for the rest of the transaction so
// borrow requests from one member run one after another. sqlite has no row
// locks and relies on its single writer instead.
func (r *repository) LockUser(ctx context.Context, userID uuid.UUID) error {
	q := r.db.WithContext(ctx)
	if q.Dialector != nil && q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user models.User
	return q.Select("id").First(&user, "id = ?", userID).Error
}

// FindLapsedReservation returns the member's reservation for the book that
// has passed its expiry but not been reclaimed yet, or nil.
func (r *repository) FindLapsedReservation(ctx context.Context, userID, bookID uuid.UUID, now time.Time) (*models.Loan, error) {
	var rows []models.Loan
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND book_id = ? AND status = ? AND reservation_expiry < ?",
			userID, bookID, enums.LoanStatusReserved, now).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}
