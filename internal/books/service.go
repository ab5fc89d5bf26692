package books

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service is the catalog surface used by the API. Copy accounting for loans
// goes through Inventory instead.
type Service interface {
	List(ctx context.Context, limit int) ([]BookDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*BookDTO, error)
	Create(ctx context.Context, input CreateBookInput) (*BookDTO, error)
	SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*BookDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateBookInput) (*BookDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("books repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, limit int) ([]BookDTO, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rows, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list books")
	}
	out := make([]BookDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*BookDTO, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	return FromModel(book), nil
}

func (s *service) Create(ctx context.Context, input CreateBookInput) (*BookDTO, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	if input.Title == "" || input.Author == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title and author are required")
	}
	if input.TotalCopies < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_copies must be at least 1")
	}
	if input.ISBN != nil {
		isbn := strings.TrimSpace(*input.ISBN)
		if isbn == "" {
			input.ISBN = nil
		} else {
			input.ISBN = &isbn
		}
	}

	book := input.ToModel()
	if err := s.repo.Create(ctx, book); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a book with this isbn already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create book")
	}
	return FromModel(book), nil
}

func (s *service) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*BookDTO, error) {
	if total < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_copies must be at least 1")
	}
	changed, err := s.repo.SetTotalCopies(ctx, id, total)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update copies")
	}
	if !changed {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "total_copies is below the copies currently on loan")
	}
	return s.Get(ctx, id)
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateBookInput) (*BookDTO, error) {
	fields := map[string]any{}
	for column, value := range map[string]*string{"title": input.Title, "author": input.Author} {
		if value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s cannot be blank", column)
		}
		fields[column] = trimmed
	}
	if input.Category != nil {
		fields["category"] = strings.TrimSpace(*input.Category)
	}
	if input.PublicationYear != nil {
		fields["publication_year"] = *input.PublicationYear
	}
	if input.ISBN != nil {
		if isbn := strings.TrimSpace(*input.ISBN); isbn != "" {
			fields["isbn"] = isbn
		} else {
			fields["isbn"] = nil
		}
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	found, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a book with this isbn already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update book")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
	}
	return s.Get(ctx, id)
}

// Delete refuses while any loan still holds a copy of the book.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	held, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "book not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete book")
	}
	if held > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "book has copies out on loan").
			WithDetails(map[string]any{"active_loans": held})
	}
	return nil
}
