package processor

import "errors"

var (
	// ErrInternal marks transfers that failed for reasons outside the
	// business rules: storage, locking, cancellation or exhausted retries.
	ErrInternal      = errors.New("internal transfer error")
	ErrInvalidFilter = errors.New("invalid history filter")
)
