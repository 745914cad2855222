// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraledger/internal/fines"
	"libraledger/internal/journal"
	"libraledger/internal/ledger"
)

// Service is the single entry point for borrow and return. Each call is
// one transaction: it commits entirely or not at all.
type Service interface {
	Borrow(ctx context.Context, memberID uuid.UUID, barcode string, loanDays int) (*Receipt, error)
	Return(ctx context.Context, memberID uuid.UUID, barcode string) (*ReturnSummary, error)
	OpenLoans(ctx context.Context, memberID uuid.UUID) ([]ledger.Loan, error)
	LoanEvents(ctx context.Context, loanID uuid.UUID) ([]journal.Event, error)

	AssignFine(ctx context.Context, memberID uuid.UUID, fineTypeID int64, reason string, amount decimal.Decimal) (*fines.Fine, error)
	PayFine(ctx context.Context, memberID, fineID uuid.UUID) (*fines.Fine, error)
	RevokeFine(ctx context.Context, fineID uuid.UUID) (*fines.Fine, error)
	ListActiveFines(ctx context.Context, memberID uuid.UUID, page fines.PageRequest) (*fines.Page[fines.Fine], error)
	ListFineHistory(ctx context.Context, memberID uuid.UUID, page fines.PageRequest) (*fines.Page[fines.Fine], error)
	FineTypes(ctx context.Context) ([]fines.FineType, error)
	FineEvents(ctx context.Context, fineID uuid.UUID) ([]journal.Event, error)
}
