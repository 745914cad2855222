// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"
)

// Status is a member's borrowing standing.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Member represents a library member.
type Member struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Email string    `json:"email" db:"email"`
	Name  string    `json:"name" db:"name"`
	// Status other than active blocks borrowing.
	Status Status `json:"status" db:"status"`
	// MaxCheckouts overrides the configured loan cap when positive.
	MaxCheckouts int       `json:"max_checkouts" db:"max_checkouts"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Credential represents a member's login credentials.
type Credential struct {
	MemberID     uuid.UUID `json:"member_id" db:"member_id"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Salt         string    `json:"-" db:"salt"`
}
