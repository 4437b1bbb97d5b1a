package domain

import "errors"

var (
	ErrShiftAlreadyOpen   = errors.New("shift already open on terminal")
	ErrShiftNotFound      = errors.New("shift not found")
	ErrShiftClosed        = errors.New("shift is closed")
	ErrShiftStillOpen     = errors.New("shift is still open")
	ErrInvalidBalance     = errors.New("invalid balance")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidRecord      = errors.New("invalid transaction record")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnauthorizedClose  = errors.New("not authorized to close shift")
	ErrUnauthorizedEdit   = errors.New("manager or admin role required to edit shift balance")
	ErrReasonRequired     = errors.New("reason is required")
	ErrConflict           = errors.New("shift is busy, retry")
	ErrRoleLookupFailed   = errors.New("role lookup failed")
	ErrUnknownTransaction = errors.New("referenced transaction not found in shift")
)

// IsRetryable reports whether err came from losing a lock race. Such calls
// applied nothing and may be repeated as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether err is a caller error rejected before any
// state was touched.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidBalance) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrUnknownTransaction)
}

// IsAuthorization reports whether err asks the caller to escalate, e.g. by
// prompting for a manager.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorizedClose) || errors.Is(err, ErrUnauthorizedEdit)
}
