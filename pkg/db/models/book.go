package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Book is a catalog title with its copy counters. AvailableCopies is only
// ever changed by relative updates issued by loan transitions.
type Book struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title           string    `gorm:"column:title;not null"`
	Author          string    `gorm:"column:author;not null"`
	ISBN            *string   `gorm:"column:isbn;uniqueIndex:books_isbn_key"`
	Category        string    `gorm:"column:category;not null;default:''"`
	PublicationYear *int      `gorm:"column:publication_year"`
	TotalCopies     int       `gorm:"column:total_copies;not null;check:books_total_copies_positive,total_copies >= 1"`
	AvailableCopies int       `gorm:"column:available_copies;not null;check:books_available_copies_bounds,available_copies >= 0 AND available_copies <= total_copies"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
