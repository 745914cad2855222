// internal/catalog/domain.go
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Book is a catalog title.
type Book struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ISBN      string    `json:"isbn" db:"isbn"`
	Title     string    `json:"title" db:"title"`
	Author    string    `json:"author" db:"author"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BookCopy is one physical, barcoded instance of a Book. Available is true
// iff no open loan references the copy.
type BookCopy struct {
	ID            uuid.UUID `json:"id" db:"id"`
	BookID        uuid.UUID `json:"book_id" db:"book_id"`
	Barcode       string    `json:"barcode" db:"barcode"`
	Available     bool      `json:"available" db:"available"`
	ShelfLocation string    `json:"shelf_location" db:"shelf_location"`
}

// CopyDetails is a copy joined with its book title, for display.
type CopyDetails struct {
	BookCopy
	Title  string `json:"title" db:"title"`
	Author string `json:"author" db:"author"`
}
