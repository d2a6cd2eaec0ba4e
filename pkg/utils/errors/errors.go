package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ParsePGErrorCode returns the SQLSTATE of a postgres error or "unknown".
func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

func IsUniqueViolation(err error) bool {
	return ParsePGErrorCode(err) == "23505"
}

// IsNumericOverflow reports a value outside a NUMERIC column's precision.
func IsNumericOverflow(err error) bool {
	return ParsePGErrorCode(err) == "22003"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
)

// Accounts / login
var (
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrInvalidMobile      = errors.New("mobile number must be 10 digits")
	ErrInvalidNationalID  = errors.New("national id must be 12 digits")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// Ledger mutations
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("cannot transfer to the same account")
	ErrBelowMinimum      = errors.New("amount below minimum loan")
	ErrNotEligible       = errors.New("not eligible for loan")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrCacheCorrupt      = errors.New("cache snapshot corrupt")
	ErrTimeout           = errors.New("operation timed out")
)

// EligibilityError carries the reason a loan was declined.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string {
	return "not eligible for loan: " + e.Reason
}

func (e *EligibilityError) Is(target error) bool {
	return target == ErrNotEligible
}
