package validator

import (
	"errors"
	"fmt"
	"money_transfer/internal/domain"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount         = errors.New("amount must be greater than zero")
	ErrInvalidAccount        = errors.New("from and to account ids are required")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
	ErrInvalidHolderName     = errors.New("holder name must be 3-50 characters and contain only letters, spaces, hyphens or apostrophes")
	ErrNegativeBalance       = errors.New("balance cannot be negative")
	ErrInvalidUsername       = errors.New("username must be 3-32 characters of letters, digits, dots or underscores")
	ErrWeakPassword          = errors.New("password must be at least 8 characters with one upper-case letter and one symbol")
	ErrInvalidStatus         = errors.New("status must be ACTIVE, INACTIVE or BLOCKED")
)

const (
	maxIdempotencyKeyLength = 128
	maxAccountIDLength      = 32
)

type TransactionValidator struct {
	usernameRegex *regexp.Regexp
}

func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{
		usernameRegex: regexp.MustCompile(`^[A-Za-z0-9._]{3,32}$`),
	}
}

// ValidateTransfer checks the shape of a transfer request. Business rules
// such as balances and account status are left to the transfer processor.
func (v *TransactionValidator) ValidateTransfer(req domain.TransferRequest) error {
	var errs []error

	from := strings.TrimSpace(req.FromAccountID)
	to := strings.TrimSpace(req.ToAccountID)
	if from == "" || to == "" || len(from) > maxAccountIDLength || len(to) > maxAccountIDLength {
		errs = append(errs, ErrInvalidAccount)
	}

	if !req.Amount.IsPositive() {
		errs = append(errs, ErrInvalidAmount)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		errs = append(errs, ErrMissingIdempotencyKey)
	} else if len(key) > maxIdempotencyKeyLength {
		errs = append(errs, fmt.Errorf("idempotency key longer than %d characters", maxIdempotencyKeyLength))
	}

	return errors.Join(errs...)
}

// ValidateHolderName accepts letters of any script plus spaces, hyphens and
// apostrophes.
func (v *TransactionValidator) ValidateHolderName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 50 {
		return ErrInvalidHolderName
	}
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' {
			continue
		}
		return ErrInvalidHolderName
	}
	return nil
}

func (v *TransactionValidator) ValidateInitialBalance(balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	return nil
}

func (v *TransactionValidator) ValidateStatus(status domain.AccountStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (v *TransactionValidator) ValidateUsername(username string) error {
	if !v.usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func (v *TransactionValidator) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < 8 {
		return ErrWeakPassword
	}

	var upper, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !symbol {
		return ErrWeakPassword
	}
	return nil
}
