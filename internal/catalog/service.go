// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service is the catalog administration surface.
type Service interface {
	AddBook(ctx context.Context, isbn, title, author string) (*Book, error)
	AddCopy(ctx context.Context, bookID uuid.UUID, barcode, shelfLocation string) (*BookCopy, error)
	GetCopy(ctx context.Context, barcode string) (*CopyDetails, error)
}
