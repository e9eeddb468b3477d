package errors

import "errors"

var (
	ErrNilTransaction         = errors.New("transaction is nil")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidStatus          = errors.New("invalid transaction status")
	ErrMissingAmount          = errors.New("amount is required")
	ErrInvalidAmount          = errors.New("amount is not a valid number")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateExternalID    = errors.New("transaction with this external_id already exists")
	ErrInvalidSubscription    = errors.New("invalid push subscription")
	ErrEndpointGone           = errors.New("push endpoint is gone")
	ErrCacheMiss              = errors.New("cache miss")
)

// IsValidation reports whether err is a payload validation failure that maps
// to HTTP 400 rather than 500.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTransactionType) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrMissingAmount) ||
		errors.Is(err, ErrInvalidAmount)
}
