// internal/ledger/domain.go
package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLoanDays  = 15
	MaxLoanDays      = 365
	DefaultMaxActive = 5
)

// Loan is one borrow transaction. It is open while ActualReturnDate is nil.
type Loan struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	MemberID           uuid.UUID  `json:"member_id" db:"member_id"`
	BookCopyID         uuid.UUID  `json:"book_copy_id" db:"book_copy_id"`
	LoanDate           time.Time  `json:"loan_date" db:"loan_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date" db:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty" db:"actual_return_date"`
}

// Open reports whether the loan has not been returned.
func (l Loan) Open() bool {
	return l.ActualReturnDate == nil
}

// Late reports whether the loan was returned strictly after its due date.
// Returning exactly on the due date is on time.
func (l Loan) Late() bool {
	return l.ActualReturnDate != nil && l.ActualReturnDate.After(l.ExpectedReturnDate)
}

// Returned is the outcome of closing a loan.
type Returned struct {
	Loan    *Loan
	BookID  uuid.UUID
	Barcode string
	// Anomaly is set when more than one open loan referenced the copy.
	// The most recent one was closed and the others were left open.
	Anomaly bool
}

// LoanOpened is journaled when a loan is created.
type LoanOpened struct {
	MemberID           uuid.UUID `json:"member_id"`
	BookCopyID         uuid.UUID `json:"book_copy_id"`
	Barcode            string    `json:"barcode"`
	LoanDate           time.Time `json:"loan_date"`
	ExpectedReturnDate time.Time `json:"expected_return_date"`
}

// LoanReturned is journaled when a loan is closed.
type LoanReturned struct {
	ActualReturnDate time.Time `json:"actual_return_date"`
	Late             bool      `json:"late"`
}
