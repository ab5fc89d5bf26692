package books

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

type BookDTO struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            *string   `json:"isbn,omitempty"`
	Category        string    `json:"category"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateBookInput is validated by the API layer before reaching the service.
type CreateBookInput struct {
	Title           string  `json:"title" validate:"required,notblank,max=255"`
	Author          string  `json:"author" validate:"required,notblank,max=255"`
	ISBN            *string `json:"isbn,omitempty" validate:"omitempty,isbn"`
	Category        string  `json:"category" validate:"max=100"`
	PublicationYear *int    `json:"publication_year,omitempty" validate:"omitempty,gte=0,lte=3000"`
	TotalCopies     int     `json:"total_copies" validate:"required,gte=1"`
}

// UpdateBookInput patches catalog metadata. Nil fields are left alone; an
// empty ISBN clears it. Copy counts change through UpdateCopiesInput only.
type UpdateBookInput struct {
	Title           *string `json:"title,omitempty" validate:"omitempty,max=255"`
	Author          *string `json:"author,omitempty" validate:"omitempty,max=255"`
	ISBN            *string `json:"isbn,omitempty" validate:"omitempty,max=32"`
	Category        *string `json:"category,omitempty" validate:"omitempty,max=100"`
	PublicationYear *int    `json:"publication_year,omitempty" validate:"omitempty,gte=0,lte=3000"`
}

type UpdateCopiesInput struct {
	TotalCopies int `json:"total_copies" validate:"required,gte=1"`
}

func FromModel(b *models.Book) *BookDTO {
	if b == nil {
		return nil
	}
	return &BookDTO{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		Category:        b.Category,
		PublicationYear: b.PublicationYear,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func (in CreateBookInput) ToModel() *models.Book {
	return &models.Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Category:        in.Category,
		PublicationYear: in.PublicationYear,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
	}
}
