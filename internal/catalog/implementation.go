// internal/catalog/implementation.go
package catalog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"libraledger/internal/apperr"
	"libraledger/internal/store"
)

// service implements the Service interface.
type service struct {
	db     *store.DB
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(db *store.DB, logger *slog.Logger) Service {
	return &service{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// AddBook registers a new title.
func (s *service) AddBook(ctx context.Context, isbn, title, author string) (*Book, error) {
	title, author = strings.TrimSpace(title), strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, apperr.ErrMalformedRequest.WithDetail("title and author are required")
	}

	book := &Book{
		ID:        uuid.New(),
		ISBN:      strings.TrimSpace(isbn),
		Title:     title,
		Author:    author,
		CreatedAt: s.now().UTC(),
	}
	err := s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		return s.repo.InsertBook(ctx, tx, book)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book added", "book_id", book.ID, "isbn", book.ISBN)
	return book, nil
}

// AddCopy registers a physical copy of an existing book. New copies start available.
func (s *service) AddCopy(ctx context.Context, bookID uuid.UUID, barcode, shelfLocation string) (*BookCopy, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, apperr.ErrMalformedRequest.WithDetail("barcode is required")
	}

	c := &BookCopy{
		ID:            uuid.New(),
		BookID:        bookID,
		Barcode:       barcode,
		Available:     true,
		ShelfLocation: strings.TrimSpace(shelfLocation),
	}
	err := s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		if _, err := s.repo.GetBook(ctx, tx, bookID); err != nil {
			return err
		}
		return s.repo.InsertCopy(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "copy added", "book_id", bookID, "copy_id", c.ID, "barcode", c.Barcode)
	return c, nil
}

// GetCopy looks a copy up by barcode.
func (s *service) GetCopy(ctx context.Context, barcode string) (*CopyDetails, error) {
	var details *CopyDetails
	err := s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		c, err := s.repo.FindCopyByBarcode(ctx, tx, barcode, false)
		if err != nil {
			return err
		}
		book, err := s.repo.GetBook(ctx, tx, c.BookID)
		if err != nil {
			return err
		}
		details = &CopyDetails{BookCopy: *c, Title: book.Title, Author: book.Author}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}
