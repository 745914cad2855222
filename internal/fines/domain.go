// internal/fines/domain.go
package fines

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the single source of truth for a fine's lifecycle. Paid and
// Revoked are terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaid    Status = "paid"
	StatusRevoked Status = "revoked"
)

// FineType is reference data: a category with a per-day rate.
type FineType struct {
	ID        int64           `json:"id" db:"id"`
	Code      string          `json:"code" db:"code"`
	Name      string          `json:"name" db:"name"`
	DailyRate decimal.Decimal `json:"daily_rate" db:"daily_rate"`
}

// Fine is a monetary penalty. Amount never changes after issue.
type Fine struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	MemberID    uuid.UUID       `json:"member_id" db:"member_id"`
	LoanID      uuid.NullUUID   `json:"loan_id" db:"loan_id"`
	FineTypeID  int64           `json:"fine_type_id" db:"fine_type_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description" db:"description"`
	Status      Status          `json:"status" db:"status"`
	IssuedAt    time.Time       `json:"issued_at" db:"issued_at"`
	SettledAt   *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

// Active reports whether the fine still blocks borrowing.
func (f Fine) Active() bool {
	return f.Status == StatusActive
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects a 1-based page. Zero values select the defaults.
type PageRequest struct {
	Page     int
	PageSize int
}

// Page is one page of a listing plus the total number of matches.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// FineIssued is journaled when a fine is created.
type FineIssued struct {
	MemberID   uuid.UUID       `json:"member_id"`
	LoanID     uuid.NullUUID   `json:"loan_id"`
	FineTypeID int64           `json:"fine_type_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
}

// FineSettled is journaled as FinePaid or FineRevoked.
type FineSettled struct {
	Status    Status    `json:"status"`
	SettledAt time.Time `json:"settled_at"`
}
