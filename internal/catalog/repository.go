// internal/catalog/repository.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libraledger/internal/apperr"
	"libraledger/internal/store"
)

const (
	booksTable  = "books"
	copiesTable = "book_copies"
)

// Repository is the Catalog Store as seen from inside a transaction.
type Repository struct{}

// FindCopyByBarcode resolves a copy. With lock set the row stays locked
// until the transaction ends.
func (Repository) FindCopyByBarcode(ctx context.Context, s *store.Session, barcode string, lock bool) (*BookCopy, error) {
	query := s.From(copiesTable).Where(goqu.C("barcode").Eq(barcode))
	if lock {
		query = s.ForUpdate(query)
	}

	var c BookCopy
	if err := s.Get(ctx, &c, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrCopyNotFound.WithDetail("%q", barcode)
		}
		return nil, fmt.Errorf("find copy %q: %w", barcode, err)
	}
	return &c, nil
}

// SetCopyAvailability flips the availability flag of one copy.
func (Repository) SetCopyAvailability(ctx context.Context, s *store.Session, copyID uuid.UUID, available bool) error {
	n, err := s.Exec(ctx, s.Update(copiesTable).
		Set(goqu.Record{"available": available}).
		Where(goqu.C("id").Eq(copyID)))
	if err != nil {
		return fmt.Errorf("set availability of copy %s: %w", copyID, err)
	}
	if n == 0 {
		return apperr.ErrCopyNotFound
	}
	return nil
}

// GetBook loads a book by id.
func (Repository) GetBook(ctx context.Context, s *store.Session, id uuid.UUID) (*Book, error) {
	var b Book
	if err := s.Get(ctx, &b, s.From(booksTable).Where(goqu.C("id").Eq(id))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrBookNotFound
		}
		return nil, fmt.Errorf("get book %s: %w", id, err)
	}
	return &b, nil
}

// InsertBook stores a new book.
func (Repository) InsertBook(ctx context.Context, s *store.Session, b *Book) error {
	if _, err := s.Exec(ctx, s.Insert(booksTable).Rows(b)); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// InsertCopy stores a new copy; a duplicate barcode is a Conflict.
func (Repository) InsertCopy(ctx context.Context, s *store.Session, c *BookCopy) error {
	if _, err := s.Exec(ctx, s.Insert(copiesTable).Rows(c)); err != nil {
		if store.IsUniqueViolation(err) {
			return apperr.ErrBarcodeTaken.WithDetail("%q", c.Barcode)
		}
		return fmt.Errorf("insert copy: %w", err)
	}
	return nil
}
