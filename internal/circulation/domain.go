// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"libraledger/internal/fines"
	"libraledger/internal/ledger"
)

// Receipt is the outcome of a successful borrow.
type Receipt struct {
	Loan      *ledger.Loan `json:"loan"`
	Barcode   string       `json:"barcode"`
	BookTitle string       `json:"book_title"`
}

// ReturnSummary is the outcome of a successful return.
type ReturnSummary struct {
	LoanID      uuid.UUID   `json:"loan_id"`
	MemberID    uuid.UUID   `json:"member_id"`
	Barcode     string      `json:"barcode"`
	BookTitle   string      `json:"book_title"`
	ReturnedAt  time.Time   `json:"returned_at"`
	Late        bool        `json:"late"`
	OverdueDays int         `json:"overdue_days"`
	Message     string      `json:"message"`
	Fine        *fines.Fine `json:"fine,omitempty"`
	// Anomaly reports that the copy had more than one open loan.
	Anomaly bool `json:"integrity_anomaly,omitempty"`
}
