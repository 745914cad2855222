// internal/ledger/ledger.go
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libraledger/internal/apperr"
	"libraledger/internal/catalog"
	"libraledger/internal/journal"
	"libraledger/internal/membership"
	"libraledger/internal/store"
)

const loansTable = "loans"

// Catalog is the part of the Catalog Store the ledger needs.
type Catalog interface {
	FindCopyByBarcode(ctx context.Context, s *store.Session, barcode string, lock bool) (*catalog.BookCopy, error)
	SetCopyAvailability(ctx context.Context, s *store.Session, copyID uuid.UUID, available bool) error
}

// Members is the part of the Membership Store the ledger needs.
type Members interface {
	GetMember(ctx context.Context, s *store.Session, id uuid.UUID, lock bool) (*membership.Member, error)
	ActiveLoanCount(ctx context.Context, s *store.Session, id uuid.UUID) (int, error)
}

// FineHolds reports how many active fines a member carries.
type FineHolds interface {
	ActiveFineCount(ctx context.Context, s *store.Session, memberID uuid.UUID) (int, error)
}

// Config bounds loan durations and concurrent loans.
type Config struct {
	DefaultDays int
	MaxDays     int
	// MaxActive applies to members without a personal cap.
	MaxActive int
}

// Ledger owns the loan state machine and copy availability. Every method
// runs inside the caller's transaction and never commits on its own.
type Ledger struct {
	catalog Catalog
	members Members
	fines   FineHolds
	journal *journal.Journal
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger. Zero config values fall back to the defaults.
func New(c Catalog, m Members, f FineHolds, j *journal.Journal, cfg Config, opts ...Option) *Ledger {
	if cfg.DefaultDays == 0 {
		cfg.DefaultDays = DefaultLoanDays
	}
	if cfg.MaxDays == 0 {
		cfg.MaxDays = MaxLoanDays
	}
	if cfg.MaxActive == 0 {
		cfg.MaxActive = DefaultMaxActive
	}

	l := &Ledger{
		catalog: c,
		members: m,
		fines:   f,
		journal: j,
		cfg:     cfg,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckEligibility returns nil when the member may borrow, or the reason
// they may not. The member row is locked so that concurrent borrows by the
// same member are evaluated one after the other.
func (l *Ledger) CheckEligibility(ctx context.Context, s *store.Session, memberID uuid.UUID) error {
	member, err := l.members.GetMember(ctx, s, memberID, true)
	if err != nil {
		return err
	}
	if member.Status != membership.StatusActive {
		return apperr.ErrMemberInactive
	}

	fines, err := l.fines.ActiveFineCount(ctx, s, memberID)
	if err != nil {
		return err
	}
	if fines > 0 {
		return apperr.ErrOutstandingFine
	}

	limit := l.cfg.MaxActive
	if member.MaxCheckouts > 0 {
		limit = member.MaxCheckouts
	}
	active, err := l.members.ActiveLoanCount(ctx, s, memberID)
	if err != nil {
		return err
	}
	if active >= limit {
		return apperr.ErrLoanLimitReached.WithDetail("%d of %d", active, limit)
	}
	return nil
}

// CanBorrow reports eligibility as a boolean. Only unknown members and
// storage failures are returned as errors.
func (l *Ledger) CanBorrow(ctx context.Context, s *store.Session, memberID uuid.UUID) (bool, error) {
	err := l.CheckEligibility(ctx, s, memberID)
	if apperr.KindOf(err) == apperr.KindForbidden {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateLoan opens a loan on the copy with the given barcode. loanDays of 0
// selects the default duration.
func (l *Ledger) CreateLoan(ctx context.Context, s *store.Session, memberID uuid.UUID, barcode string, loanDays int) (*Loan, error) {
	if loanDays == 0 {
		loanDays = l.cfg.DefaultDays
	}
	if loanDays < 1 || loanDays > l.cfg.MaxDays {
		return nil, apperr.ErrInvalidLoanDays.WithDetail("got %d, want 1 to %d", loanDays, l.cfg.MaxDays)
	}

	if err := l.CheckEligibility(ctx, s, memberID); err != nil {
		return nil, err
	}

	bookCopy, err := l.catalog.FindCopyByBarcode(ctx, s, barcode, true)
	if err != nil {
		return nil, err
	}
	if !bookCopy.Available {
		return nil, apperr.ErrCopyUnavailable
	}

	now := l.now().UTC()
	loan := &Loan{
		ID:                 uuid.New(),
		MemberID:           memberID,
		BookCopyID:         bookCopy.ID,
		LoanDate:           now,
		ExpectedReturnDate: now.AddDate(0, 0, loanDays),
	}
	if _, err := s.Exec(ctx, s.Insert(loansTable).Rows(loan)); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.ErrCopyUnavailable.Wrap(err)
		}
		return nil, fmt.Errorf("insert loan: %w", err)
	}
	if err := l.catalog.SetCopyAvailability(ctx, s, bookCopy.ID, false); err != nil {
		return nil, err
	}

	err = l.journal.Append(ctx, s, loan.ID, journal.AggregateLoan, 0, "LoanOpened", LoanOpened{
		MemberID:           memberID,
		BookCopyID:         bookCopy.ID,
		Barcode:            bookCopy.Barcode,
		LoanDate:           loan.LoanDate,
		ExpectedReturnDate: loan.ExpectedReturnDate,
	})
	if err != nil {
		return nil, fmt.Errorf("journal loan opened: %w", err)
	}

	l.logger.InfoContext(ctx, "loan opened",
		"loan_id", loan.ID,
		"member_id", memberID,
		"barcode", barcode,
		"due", loan.ExpectedReturnDate,
	)
	return loan, nil
}

// ReturnLoan closes the open loan on the copy with the given barcode. When
// memberID is not uuid.Nil the loan must belong to that member.
func (l *Ledger) ReturnLoan(ctx context.Context, s *store.Session, memberID uuid.UUID, barcode string) (*Returned, error) {
	bookCopy, err := l.catalog.FindCopyByBarcode(ctx, s, barcode, true)
	if err != nil {
		return nil, err
	}

	var open []Loan
	query := s.From(loansTable).
		Where(goqu.C("book_copy_id").Eq(bookCopy.ID), goqu.C("actual_return_date").IsNull()).
		Order(goqu.C("loan_date").Desc(), goqu.C("id").Desc())
	if err := s.Select(ctx, &open, query); err != nil {
		return nil, fmt.Errorf("find open loans for %q: %w", barcode, err)
	}
	if len(open) == 0 {
		return nil, apperr.ErrNoOpenLoan.WithDetail("%q", barcode)
	}

	loan := open[0]
	anomaly := len(open) > 1
	if anomaly {
		ids := make([]string, len(open))
		for i, o := range open {
			ids[i] = o.ID.String()
		}
		l.logger.ErrorContext(ctx, apperr.ErrMultipleOpen.Message,
			"barcode", barcode,
			"copy_id", bookCopy.ID,
			"open_loans", ids,
			"closing", loan.ID,
		)
	}

	if memberID != uuid.Nil && loan.MemberID != memberID {
		return nil, apperr.ErrLoanNotOwned
	}

	returnedAt := l.now().UTC()
	n, err := s.Exec(ctx, s.Update(loansTable).
		Set(goqu.Record{"actual_return_date": returnedAt}).
		Where(goqu.C("id").Eq(loan.ID), goqu.C("actual_return_date").IsNull()))
	if err != nil {
		return nil, fmt.Errorf("close loan %s: %w", loan.ID, err)
	}
	if n == 0 {
		return nil, apperr.ErrNoOpenLoan.WithDetail("%q", barcode)
	}
	loan.ActualReturnDate = &returnedAt

	// The flag is written either way: a copy with other open loans is
	// forced unavailable even if it was wrongly flagged available.
	if err := l.catalog.SetCopyAvailability(ctx, s, bookCopy.ID, !anomaly); err != nil {
		return nil, err
	}

	version, err := l.journal.CurrentVersion(ctx, s, loan.ID)
	if err != nil {
		return nil, err
	}
	err = l.journal.Append(ctx, s, loan.ID, journal.AggregateLoan, version, "LoanReturned", LoanReturned{
		ActualReturnDate: returnedAt,
		Late:             loan.Late(),
	})
	if err != nil {
		return nil, fmt.Errorf("journal loan returned: %w", err)
	}

	l.logger.InfoContext(ctx, "loan returned",
		"loan_id", loan.ID,
		"member_id", loan.MemberID,
		"barcode", barcode,
		"late", loan.Late(),
	)
	return &Returned{Loan: &loan, BookID: bookCopy.BookID, Barcode: bookCopy.Barcode, Anomaly: anomaly}, nil
}

// GetLoan loads a loan by id.
func (l *Ledger) GetLoan(ctx context.Context, s *store.Session, id uuid.UUID) (*Loan, error) {
	var loan Loan
	if err := s.Get(ctx, &loan, s.From(loansTable).Where(goqu.C("id").Eq(id))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan %s: %w", id, err)
	}
	return &loan, nil
}

// OpenLoans lists a member's open loans, oldest due date first.
func (l *Ledger) OpenLoans(ctx context.Context, s *store.Session, memberID uuid.UUID) ([]Loan, error) {
	loans := []Loan{}
	query := s.From(loansTable).
		Where(goqu.C("member_id").Eq(memberID), goqu.C("actual_return_date").IsNull()).
		Order(goqu.C("expected_return_date").Asc())
	if err := s.Select(ctx, &loans, query); err != nil {
		return nil, fmt.Errorf("list open loans of %s: %w", memberID, err)
	}
	return loans, nil
}
