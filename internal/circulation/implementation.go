// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraledger/internal/apperr"
	"libraledger/internal/catalog"
	"libraledger/internal/fines"
	"libraledger/internal/journal"
	"libraledger/internal/ledger"
	"libraledger/internal/store"
)

const instrumentation = "libraledger/circulation"

// service implements the Service interface.
type service struct {
	db      *store.DB
	ledger  *ledger.Ledger
	fines   *fines.Engine
	journal *journal.Journal
	books   catalog.Repository
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics
}

// NewService creates the orchestrator. The ledger and the engine must have
// been built on the same journal.
func NewService(db *store.DB, l *ledger.Ledger, e *fines.Engine, j *journal.Journal, logger *slog.Logger) (Service, error) {
	m, err := newMetrics(otel.Meter(instrumentation))
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &service{
		db:      db,
		ledger:  l,
		fines:   e,
		journal: j,
		logger:  logger,
		tracer:  otel.Tracer(instrumentation),
		metrics: m,
	}, nil
}

func (s *service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Borrow checks eligibility, opens the loan and marks the copy unavailable
// in one transaction.
func (s *service) Borrow(ctx context.Context, memberID uuid.UUID, barcode string, loanDays int) (receipt *Receipt, err error) {
	ctx, span := s.start(ctx, "circulation.borrow",
		attribute.String("member.id", memberID.String()),
		attribute.String("copy.barcode", barcode),
		attribute.Int("loan.days", loanDays),
	)
	defer func() { finish(span, err) }()

	err = s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		loan, err := s.ledger.CreateLoan(ctx, tx, memberID, barcode, loanDays)
		if err != nil {
			return err
		}
		title, err := s.title(ctx, tx, barcode)
		if err != nil {
			return err
		}
		receipt = &Receipt{Loan: loan, Barcode: barcode, BookTitle: title}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.loansOpened.Add(ctx, 1)
	span.SetAttributes(attribute.String("loan.id", receipt.Loan.ID.String()))
	return receipt, nil
}

// Return closes the open loan, makes the copy available and issues any
// late fine in one transaction. memberID may be uuid.Nil for a desk return.
func (s *service) Return(ctx context.Context, memberID uuid.UUID, barcode string) (summary *ReturnSummary, err error) {
	ctx, span := s.start(ctx, "circulation.return",
		attribute.String("member.id", memberID.String()),
		attribute.String("copy.barcode", barcode),
	)
	defer func() { finish(span, err) }()

	err = s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		res, err := s.ledger.ReturnLoan(ctx, tx, memberID, barcode)
		if err != nil {
			return err
		}
		fine, err := s.fines.ComputeLateFine(ctx, tx, res.Loan)
		if err != nil {
			return err
		}
		book, err := s.books.GetBook(ctx, tx, res.BookID)
		if err != nil {
			return err
		}
		summary = summarize(res, book.Title, fine)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.returned(ctx, summary.Late)
	if summary.Fine != nil {
		s.metrics.issued(ctx, "late_return")
	}
	if summary.Anomaly {
		s.metrics.anomalies.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("integrity.anomaly", true))
	}
	span.SetAttributes(
		attribute.String("loan.id", summary.LoanID.String()),
		attribute.Bool("loan.late", summary.Late),
	)
	return summary, nil
}

func summarize(res *ledger.Returned, title string, fine *fines.Fine) *ReturnSummary {
	loan := res.Loan
	days := fines.OverdueDays(loan.ExpectedReturnDate, *loan.ActualReturnDate)

	summary := &ReturnSummary{
		LoanID:      loan.ID,
		MemberID:    loan.MemberID,
		Barcode:     res.Barcode,
		BookTitle:   title,
		ReturnedAt:  *loan.ActualReturnDate,
		Late:        loan.Late(),
		OverdueDays: days,
		Fine:        fine,
		Anomaly:     res.Anomaly,
	}

	switch {
	case !summary.Late:
		summary.Message = fmt.Sprintf("%q returned on time.", title)
	case fine != nil:
		summary.Message = fmt.Sprintf("%q returned %d day(s) late. A fine of %s was issued.", title, days, fine.Amount.StringFixed(2))
	default:
		summary.Message = fmt.Sprintf("%q returned %d day(s) late.", title, days)
	}
	if res.Anomaly {
		summary.Message += " " + apperr.ErrMultipleOpen.Message + "; the most recent loan was closed."
	}
	return summary
}

func (s *service) title(ctx context.Context, tx *store.Session, barcode string) (string, error) {
	c, err := s.books.FindCopyByBarcode(ctx, tx, barcode, false)
	if err != nil {
		return "", err
	}
	book, err := s.books.GetBook(ctx, tx, c.BookID)
	if err != nil {
		return "", err
	}
	return book.Title, nil
}

// OpenLoans lists a member's open loans.
func (s *service) OpenLoans(ctx context.Context, memberID uuid.UUID) (loans []ledger.Loan, err error) {
	err = s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		loans, err = s.ledger.OpenLoans(ctx, tx, memberID)
		return err
	})
	return loans, err
}

// LoanEvents returns the journal of one loan.
func (s *service) LoanEvents(ctx context.Context, loanID uuid.UUID) (events []journal.Event, err error) {
	err = s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		if _, err := s.ledger.GetLoan(ctx, tx, loanID); err != nil {
			return err
		}
		events, err = s.journal.Load(ctx, tx, loanID)
		return err
	})
	return events, err
}

// AssignFine issues a manual fine.
func (s *service) AssignFine(ctx context.Context, memberID uuid.UUID, fineTypeID int64, reason string, amount decimal.Decimal) (fine *fines.Fine, err error) {
	ctx, span := s.start(ctx, "circulation.assign_fine",
		attribute.String("member.id", memberID.String()),
		attribute.Int64("fine_type.id", fineTypeID),
	)
	defer func() { finish(span, err) }()

	err = s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		fine, err = s.fines.AssignFine(ctx, tx, memberID, fineTypeID, reason, amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.issued(ctx, "manual")
	return fine, nil
}

// PayFine settles a member's own active fine.
func (s *service) PayFine(ctx context.Context, memberID, fineID uuid.UUID) (fine *fines.Fine, err error) {
	ctx, span := s.start(ctx, "circulation.pay_fine",
		attribute.String("member.id", memberID.String()),
		attribute.String("fine.id", fineID.String()),
	)
	defer func() { finish(span, err) }()

	err = s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		fine, err = s.fines.PayFine(ctx, tx, memberID, fineID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.settled(ctx, string(fines.StatusPaid))
	return fine, nil
}

// RevokeFine waives an active fine.
func (s *service) RevokeFine(ctx context.Context, fineID uuid.UUID) (fine *fines.Fine, err error) {
	ctx, span := s.start(ctx, "circulation.revoke_fine",
		attribute.String("fine.id", fineID.String()),
	)
	defer func() { finish(span, err) }()

	err = s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		fine, err = s.fines.RevokeFine(ctx, tx, fineID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.settled(ctx, string(fines.StatusRevoked))
	return fine, nil
}

// ListActiveFines pages through a member's active fines.
func (s *service) ListActiveFines(ctx context.Context, memberID uuid.UUID, req fines.PageRequest) (page *fines.Page[fines.Fine], err error) {
	err = s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		page, err = s.fines.GetActiveFines(ctx, tx, memberID, req)
		return err
	})
	return page, err
}

// ListFineHistory pages through all of a member's fines.
func (s *service) ListFineHistory(ctx context.Context, memberID uuid.UUID, req fines.PageRequest) (page *fines.Page[fines.Fine], err error) {
	err = s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		page, err = s.fines.GetFineHistory(ctx, tx, memberID, req)
		return err
	})
	return page, err
}

// FineTypes lists the fine reference data.
func (s *service) FineTypes(ctx context.Context) (types []fines.FineType, err error) {
	err = s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		types, err = s.fines.ListFineTypes(ctx, tx)
		return err
	})
	return types, err
}

// FineEvents returns the journal of one fine.
func (s *service) FineEvents(ctx context.Context, fineID uuid.UUID) (events []journal.Event, err error) {
	err = s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		if _, err := s.fines.GetFine(ctx, tx, fineID); err != nil {
			return err
		}
		events, err = s.journal.Load(ctx, tx, fineID)
		return err
	})
	return events, err
}
