// internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render it without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindValidation
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// Error is a domain failure with a stable code and a stable human message.
// Detail and Err carry per-occurrence context; they show up in Error() and
// logs, never in Message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code, so a sentinel still matches after Wrap or WithDetail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// Wrap attaches a cause to a copy of the sentinel.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Detail: e.Detail, Err: cause}
}

// WithDetail returns a copy of the sentinel carrying occurrence detail.
// Message stays the sentinel text.
func (e *Error) WithDetail(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Detail: fmt.Sprintf(format, args...), Err: e.Err}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

var (
	ErrMalformedRequest = newError(KindValidation, "malformed_request", "request body is malformed")

	ErrMemberNotFound   = newError(KindNotFound, "member_not_found", "member not found")
	ErrMemberInactive   = newError(KindForbidden, "member_inactive", "cannot borrow: membership is not active")
	ErrOutstandingFine  = newError(KindForbidden, "outstanding_fine", "cannot borrow: outstanding fine")
	ErrLoanLimitReached = newError(KindForbidden, "loan_limit_reached", "cannot borrow: active loan limit reached")
	ErrEmailTaken       = newError(KindConflict, "email_taken", "email is already registered")
	ErrInvalidLogin     = newError(KindForbidden, "invalid_credentials", "invalid credentials")
	ErrRateLimited      = newError(KindForbidden, "rate_limited", "too many attempts, try again later")

	ErrBookNotFound    = newError(KindNotFound, "book_not_found", "book not found")
	ErrCopyNotFound    = newError(KindNotFound, "copy_not_found", "no book copy with that barcode")
	ErrCopyUnavailable = newError(KindConflict, "copy_unavailable", "copy currently unavailable")
	ErrBarcodeTaken    = newError(KindConflict, "barcode_taken", "barcode is already registered")

	ErrInvalidLoanDays = newError(KindValidation, "invalid_loan_days", "loan days out of range")
	ErrLoanNotFound    = newError(KindNotFound, "loan_not_found", "loan not found")
	ErrNoOpenLoan      = newError(KindNotFound, "no_open_loan", "no open loan for that barcode")
	ErrLoanNotOwned    = newError(KindForbidden, "loan_not_owned", "loan belongs to another member")
	ErrMultipleOpen    = newError(KindIntegrity, "multiple_open_loans", "multiple open loans recorded for one copy")

	ErrFineNotFound      = newError(KindNotFound, "fine_not_found", "fine not found")
	ErrFineTypeNotFound  = newError(KindNotFound, "fine_type_not_found", "fine type not found")
	ErrFineSettled       = newError(KindConflict, "fine_settled", "fine is already settled")
	ErrFineNotOwned      = newError(KindForbidden, "fine_not_owned", "fine belongs to another member")
	ErrInvalidFineAmount = newError(KindValidation, "invalid_fine_amount", "fine amount must be between 0 and 1000000")
	ErrInvalidReason     = newError(KindValidation, "invalid_reason", "reason must be at most 500 characters")
	ErrInvalidPage       = newError(KindValidation, "invalid_page", "page must be >= 1 and page_size between 1 and 100")
)
