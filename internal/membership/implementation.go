// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libraledger/internal/apperr"
	"libraledger/internal/store"
)

const minPasswordLength = 8

// service implements the Service interface.
type service struct {
	db     *store.DB
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	loginsPerMinute int
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
}

// NewService creates a new membership service instance. loginsPerMinute
// bounds authentication attempts per email address.
func NewService(db *store.DB, logger *slog.Logger, loginsPerMinute int) Service {
	return &service{
		db:              db,
		logger:          logger,
		now:             time.Now,
		loginsPerMinute: loginsPerMinute,
		limiters:        make(map[string]*rate.Limiter),
	}
}

// RegisterMember creates a new active member.
func (s *service) RegisterMember(ctx context.Context, email, name, password string) (*Member, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.ErrMalformedRequest.WithDetail("invalid email")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.ErrMalformedRequest.WithDetail("name is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.ErrMalformedRequest.WithDetail("password must be at least %d characters", minPasswordLength)
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	member := &Member{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}
	credential := &Credential{
		MemberID:     member.ID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	err = s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		return s.repo.insert(ctx, tx, member, credential)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member registered", "member_id", member.ID)
	return member, nil
}

// Authenticate verifies a member's credentials and returns the member if successful.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	email = normalizeEmail(email)
	if !s.limiter(email).Allow() {
		return nil, apperr.ErrRateLimited
	}

	var member *Member
	err := s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		m, err := s.repo.getByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		credential, err := s.repo.getCredential(ctx, tx, m.ID)
		if err != nil {
			return err
		}

		ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrInvalidLogin
		}
		member = m
		return nil
	})
	if errors.Is(err, apperr.ErrMemberNotFound) {
		return nil, apperr.ErrInvalidLogin
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *service) limiter(email string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[email]
	if !ok {
		// non-positive disables throttling
		l = rate.NewLimiter(rate.Inf, 0)
		if s.loginsPerMinute > 0 {
			l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.loginsPerMinute)), s.loginsPerMinute)
		}
		s.limiters[email] = l
	}
	return l
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	var member *Member
	err := s.db.View(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		member, err = s.repo.GetMember(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// UpdateMember changes a member's standing and personal loan cap.
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, status Status, maxCheckouts int) (*Member, error) {
	if !status.Valid() {
		return nil, apperr.ErrMalformedRequest.WithDetail("unknown status %q", status)
	}
	if maxCheckouts < 0 {
		return nil, apperr.ErrMalformedRequest.WithDetail("max_checkouts must not be negative")
	}

	var member *Member
	err := s.db.Update(ctx, func(ctx context.Context, tx *store.Session) error {
		m, err := s.repo.GetMember(ctx, tx, id, true)
		if err != nil {
			return err
		}
		m.Status = status
		m.MaxCheckouts = maxCheckouts
		if err := s.repo.update(ctx, tx, m); err != nil {
			return err
		}
		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member updated", "member_id", id, "status", status, "max_checkouts", maxCheckouts)
	return member, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
