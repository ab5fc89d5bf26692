package books

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// List returns books ordered by title.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Book, error) {
	var rows []models.Book
	err := r.db.WithContext(ctx).
		Order("title ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SetTotalCopies moves total_copies and shifts available_copies by the same
// delta. It refuses (zero rows) when the new total would drop below the
// copies currently held by loans.
func (r *Repository) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND total_copies - available_copies <= ?", id, total).
		Updates(map[string]any{
			"available_copies": gorm.Expr("available_copies + (? - total_copies)", total),
			"total_copies":     total,
		})
	return res.RowsAffected > 0, res.Error
}

// Update writes the given columns and reports whether the book exists.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

// Delete removes the book together with its finished loans. It returns
// gorm.ErrRecordNotFound for an unknown id and, without deleting anything,
// the number of loans still holding a copy.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (held int64, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var book models.Book
		if err := q.Select("id").First(&book, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Loan{}).
			Where("book_id = ? AND status IN ?", id, enums.CopyHoldingLoanStatuses).
			Count(&held).Error; err != nil {
			return err
		}
		if held > 0 {
			return nil
		}
		if err := tx.Where("book_id = ?", id).Delete(&models.Loan{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Book{}, "id = ?", id).Error
	})
	return held, err
}
