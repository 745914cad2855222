// internal/membership/repository.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libraledger/internal/apperr"
	"libraledger/internal/store"
)

const (
	membersTable     = "members"
	credentialsTable = "credentials"
	loansTable       = "loans"
)

// Repository is the Membership Store as seen from inside a transaction.
type Repository struct{}

// GetMember loads a member. With lock set the row stays locked until the
// transaction ends, which serializes concurrent borrows by one member.
func (Repository) GetMember(ctx context.Context, s *store.Session, id uuid.UUID, lock bool) (*Member, error) {
	query := s.From(membersTable).Where(goqu.C("id").Eq(id))
	if lock {
		query = s.ForUpdate(query)
	}

	var m Member
	if err := s.Get(ctx, &m, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member %s: %w", id, err)
	}
	return &m, nil
}

// MemberExists fails with ErrMemberNotFound for unknown ids.
func (r Repository) MemberExists(ctx context.Context, s *store.Session, id uuid.UUID) error {
	var n int
	query := s.From(membersTable).Select(goqu.COUNT("*")).Where(goqu.C("id").Eq(id))
	if err := s.Get(ctx, &n, query); err != nil {
		return fmt.Errorf("check member %s: %w", id, err)
	}
	if n == 0 {
		return apperr.ErrMemberNotFound
	}
	return nil
}

// ActiveLoanCount counts the member's open loans.
func (Repository) ActiveLoanCount(ctx context.Context, s *store.Session, id uuid.UUID) (int, error) {
	var n int
	query := s.From(loansTable).Select(goqu.COUNT("*")).Where(
		goqu.C("member_id").Eq(id),
		goqu.C("actual_return_date").IsNull(),
	)
	if err := s.Get(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("count open loans of %s: %w", id, err)
	}
	return n, nil
}

func (Repository) getByEmail(ctx context.Context, s *store.Session, email string) (*Member, error) {
	var m Member
	if err := s.Get(ctx, &m, s.From(membersTable).Where(goqu.C("email").Eq(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member by email: %w", err)
	}
	return &m, nil
}

func (Repository) getCredential(ctx context.Context, s *store.Session, memberID uuid.UUID) (*Credential, error) {
	var c Credential
	if err := s.Get(ctx, &c, s.From(credentialsTable).Where(goqu.C("member_id").Eq(memberID))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &c, nil
}

func (Repository) insert(ctx context.Context, s *store.Session, m *Member, c *Credential) error {
	if _, err := s.Exec(ctx, s.Insert(membersTable).Rows(m)); err != nil {
		if store.IsUniqueViolation(err) {
			return apperr.ErrEmailTaken
		}
		return fmt.Errorf("insert member: %w", err)
	}
	if _, err := s.Exec(ctx, s.Insert(credentialsTable).Rows(c)); err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (Repository) update(ctx context.Context, s *store.Session, m *Member) error {
	_, err := s.Exec(ctx, s.Update(membersTable).
		Set(goqu.Record{"status": m.Status, "max_checkouts": m.MaxCheckouts}).
		Where(goqu.C("id").Eq(m.ID)))
	if err != nil {
		return fmt.Errorf("update member %s: %w", m.ID, err)
	}
	return nil
}
