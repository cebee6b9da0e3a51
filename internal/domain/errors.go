package domain

import "errors"

// Business rule violations. The transfer processor turns these into FAILED
// results instead of returning them to callers.
var (
	ErrInactiveAccount     = errors.New("account is not ACTIVE")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSameAccount         = errors.New("cannot transfer to same account")
	ErrDuplicateTransfer   = errors.New("duplicate transfer request")
	ErrFromAccountNotFound = errors.New("from account not found")
	ErrToAccountNotFound   = errors.New("to account not found")
)
