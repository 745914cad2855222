// internal/fines/engine.go
package fines

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraledger/internal/apperr"
	"libraledger/internal/journal"
	"libraledger/internal/ledger"
	"libraledger/internal/store"
)

const (
	finesTable     = "fines"
	fineTypesTable = "fine_types"

	maxReasonLength = 500
)

var maxFineAmount = decimal.NewFromInt(1_000_000)

// Members is the part of the Membership Store the engine needs.
type Members interface {
	MemberExists(ctx context.Context, s *store.Session, id uuid.UUID) error
}

// Engine computes late fees and drives the fine lifecycle. Every method
// runs inside the caller's transaction.
type Engine struct {
	members     Members
	journal     *journal.Journal
	overdueCode string
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine that charges overdue returns with the fine
// type identified by overdueCode.
func NewEngine(members Members, j *journal.Journal, overdueCode string, opts ...Option) *Engine {
	e := &Engine{
		members:     members,
		journal:     j,
		overdueCode: overdueCode,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetFineType loads a fine type by id.
func (e *Engine) GetFineType(ctx context.Context, s *store.Session, id int64) (*FineType, error) {
	return e.fineType(ctx, s, goqu.C("id").Eq(id))
}

// DefaultOverdueFineType returns the fine type used for late returns.
func (e *Engine) DefaultOverdueFineType(ctx context.Context, s *store.Session) (*FineType, error) {
	ft, err := e.fineType(ctx, s, goqu.C("code").Eq(e.overdueCode))
	if err != nil {
		return nil, fmt.Errorf("overdue fine type %q: %w", e.overdueCode, err)
	}
	return ft, nil
}

func (e *Engine) fineType(ctx context.Context, s *store.Session, where goqu.Expression) (*FineType, error) {
	var ft FineType
	if err := s.Get(ctx, &ft, s.From(fineTypesTable).Where(where)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrFineTypeNotFound
		}
		return nil, fmt.Errorf("get fine type: %w", err)
	}
	return &ft, nil
}

// ListFineTypes returns the reference data ordered by id.
func (e *Engine) ListFineTypes(ctx context.Context, s *store.Session) ([]FineType, error) {
	types := []FineType{}
	if err := s.Select(ctx, &types, s.From(fineTypesTable).Order(goqu.C("id").Asc())); err != nil {
		return nil, fmt.Errorf("list fine types: %w", err)
	}
	return types, nil
}

// ComputeLateFine issues an overdue fine for a returned loan. It returns
// nil when the loan came back on time or the computed amount is zero.
func (e *Engine) ComputeLateFine(ctx context.Context, s *store.Session, loan *ledger.Loan) (*Fine, error) {
	if !loan.Late() {
		return nil, nil
	}

	ft, err := e.DefaultOverdueFineType(ctx, s)
	if err != nil {
		return nil, err
	}

	days := OverdueDays(loan.ExpectedReturnDate, *loan.ActualReturnDate)
	amount := LateFeeAmount(days, ft.DailyRate)
	if amount.IsZero() {
		return nil, nil
	}

	fine := &Fine{
		ID:          uuid.New(),
		MemberID:    loan.MemberID,
		LoanID:      uuid.NullUUID{UUID: loan.ID, Valid: true},
		FineTypeID:  ft.ID,
		Amount:      amount,
		Description: fmt.Sprintf("%d day(s) overdue at %s per day", days, ft.DailyRate.StringFixed(2)),
		Status:      StatusActive,
		IssuedAt:    e.now().UTC(),
	}
	if err := e.issue(ctx, s, fine); err != nil {
		return nil, err
	}
	return fine, nil
}

// AssignFine issues a manual fine with no loan reference.
func (e *Engine) AssignFine(ctx context.Context, s *store.Session, memberID uuid.UUID, fineTypeID int64, reason string, amount decimal.Decimal) (*Fine, error) {
	if amount.IsNegative() || amount.GreaterThan(maxFineAmount) {
		return nil, apperr.ErrInvalidFineAmount.WithDetail("got %s", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, apperr.ErrInvalidFineAmount.WithDetail("at most two decimal places")
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return nil, apperr.ErrInvalidReason
	}

	if _, err := e.GetFineType(ctx, s, fineTypeID); err != nil {
		return nil, err
	}
	if err := e.members.MemberExists(ctx, s, memberID); err != nil {
		return nil, err
	}

	fine := &Fine{
		ID:          uuid.New(),
		MemberID:    memberID,
		FineTypeID:  fineTypeID,
		Amount:      amount.Round(2),
		Description: reason,
		Status:      StatusActive,
		IssuedAt:    e.now().UTC(),
	}
	if err := e.issue(ctx, s, fine); err != nil {
		return nil, err
	}
	return fine, nil
}

func (e *Engine) issue(ctx context.Context, s *store.Session, fine *Fine) error {
	if _, err := s.Exec(ctx, s.Insert(finesTable).Rows(fine)); err != nil {
		return fmt.Errorf("insert fine: %w", err)
	}

	err := e.journal.Append(ctx, s, fine.ID, journal.AggregateFine, 0, "FineIssued", FineIssued{
		MemberID:   fine.MemberID,
		LoanID:     fine.LoanID,
		FineTypeID: fine.FineTypeID,
		Amount:     fine.Amount,
		Reason:     fine.Description,
	})
	if err != nil {
		return fmt.Errorf("journal fine issued: %w", err)
	}

	e.logger.InfoContext(ctx, "fine issued",
		"fine_id", fine.ID,
		"member_id", fine.MemberID,
		"amount", fine.Amount.StringFixed(2),
		"loan_id", fine.LoanID.UUID,
	)
	return nil
}

// PayFine settles an active fine owned by memberID.
func (e *Engine) PayFine(ctx context.Context, s *store.Session, memberID, fineID uuid.UUID) (*Fine, error) {
	fine, err := e.lockFine(ctx, s, fineID)
	if err != nil {
		return nil, err
	}
	if fine.MemberID != memberID {
		return nil, apperr.ErrFineNotOwned
	}
	return e.settle(ctx, s, fine, StatusPaid)
}

// RevokeFine waives an active fine regardless of owner.
func (e *Engine) RevokeFine(ctx context.Context, s *store.Session, fineID uuid.UUID) (*Fine, error) {
	fine, err := e.lockFine(ctx, s, fineID)
	if err != nil {
		return nil, err
	}
	return e.settle(ctx, s, fine, StatusRevoked)
}

func (e *Engine) lockFine(ctx context.Context, s *store.Session, id uuid.UUID) (*Fine, error) {
	var fine Fine
	if err := s.Get(ctx, &fine, s.ForUpdate(s.From(finesTable).Where(goqu.C("id").Eq(id)))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrFineNotFound
		}
		return nil, fmt.Errorf("get fine %s: %w", id, err)
	}
	return &fine, nil
}

// settle moves an active fine to a terminal status. The amount is untouched.
func (e *Engine) settle(ctx context.Context, s *store.Session, fine *Fine, to Status) (*Fine, error) {
	if !fine.Active() {
		return nil, apperr.ErrFineSettled.WithDetail("status %s", fine.Status)
	}

	settledAt := e.now().UTC()
	n, err := s.Exec(ctx, s.Update(finesTable).
		Set(goqu.Record{"status": to, "settled_at": settledAt}).
		Where(goqu.C("id").Eq(fine.ID), goqu.C("status").Eq(StatusActive)))
	if err != nil {
		return nil, fmt.Errorf("settle fine %s: %w", fine.ID, err)
	}
	if n == 0 {
		return nil, apperr.ErrFineSettled
	}
	fine.Status = to
	fine.SettledAt = &settledAt

	eventType := "FinePaid"
	if to == StatusRevoked {
		eventType = "FineRevoked"
	}
	version, err := e.journal.CurrentVersion(ctx, s, fine.ID)
	if err != nil {
		return nil, err
	}
	err = e.journal.Append(ctx, s, fine.ID, journal.AggregateFine, version, eventType, FineSettled{
		Status:    to,
		SettledAt: settledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("journal %s: %w", eventType, err)
	}

	e.logger.InfoContext(ctx, "fine settled", "fine_id", fine.ID, "member_id", fine.MemberID, "status", to)
	return fine, nil
}

// GetFine loads a fine by id.
func (e *Engine) GetFine(ctx context.Context, s *store.Session, id uuid.UUID) (*Fine, error) {
	var fine Fine
	if err := s.Get(ctx, &fine, s.From(finesTable).Where(goqu.C("id").Eq(id))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrFineNotFound
		}
		return nil, fmt.Errorf("get fine %s: %w", id, err)
	}
	return &fine, nil
}

// ActiveFineCount counts active fines of any amount.
func (e *Engine) ActiveFineCount(ctx context.Context, s *store.Session, memberID uuid.UUID) (int, error) {
	var n int
	query := s.From(finesTable).Select(goqu.COUNT("*")).Where(
		goqu.C("member_id").Eq(memberID),
		goqu.C("status").Eq(StatusActive),
	)
	if err := s.Get(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count active fines of %s: %w", memberID, err)
	}
	return n, nil
}

// GetActiveFines lists a member's active fines, newest first.
func (e *Engine) GetActiveFines(ctx context.Context, s *store.Session, memberID uuid.UUID, req PageRequest) (*Page[Fine], error) {
	return e.list(ctx, s, req, goqu.C("member_id").Eq(memberID), goqu.C("status").Eq(StatusActive))
}

// GetFineHistory lists all of a member's fines in any status, newest first.
func (e *Engine) GetFineHistory(ctx context.Context, s *store.Session, memberID uuid.UUID, req PageRequest) (*Page[Fine], error) {
	return e.list(ctx, s, req, goqu.C("member_id").Eq(memberID))
}

func (e *Engine) list(ctx context.Context, s *store.Session, req PageRequest, where ...goqu.Expression) (*Page[Fine], error) {
	req, err := normalizePage(req)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.Get(ctx, &total, s.From(finesTable).Select(goqu.COUNT("*")).Where(where...)); err != nil {
		return nil, fmt.Errorf("count fines: %w", err)
	}

	items := []Fine{}
	query := s.From(finesTable).
		Where(where...).
		Order(goqu.C("issued_at").Desc(), goqu.C("id").Asc()).
		Limit(uint(req.PageSize)).
		Offset(uint((req.Page - 1) * req.PageSize))
	if err := s.Select(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}

	return &Page[Fine]{Items: items, Page: req.Page, PageSize: req.PageSize, Total: total}, nil
}

func normalizePage(req PageRequest) (PageRequest, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = DefaultPageSize
	}
	if req.Page < 1 || req.PageSize < 1 || req.PageSize > MaxPageSize {
		return PageRequest{}, apperr.ErrInvalidPage
	}
	return req, nil
}
