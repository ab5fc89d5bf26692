package books

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// Inventory adjusts available_copies with guarded relative updates. Both
// methods must run inside the transaction that writes the loan.
type Inventory interface {
	Take(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error
	Release(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (bool, error)
}

type inventory struct{}

func NewInventory() Inventory {
	return inventory{}
}

// Take withholds one copy. It fails with NOT_FOUND for an unknown book and
// CONFLICT when no copy is left.
func (inventory) Take(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory update")
	}
	res := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", bookID).
		Update("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "take copy")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.WithContext(ctx).Model(&models.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check book")
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "no copies available")
}

// Release returns one copy. It reports false when the counter was already at
// total_copies and nothing changed.
func (inventory) Release(ctx context.Context, tx *gorm.DB, bookID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory update")
	}
	res := tx.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND available_copies < total_copies", bookID).
		Update("available_copies", gorm.Expr("available_copies + 1"))
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release copy")
	}
	return res.RowsAffected > 0, nil
}
