package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive   AccountStatus = "ACTIVE"
	AccountInactive AccountStatus = "INACTIVE"
	AccountBlocked  AccountStatus = "BLOCKED"
)

// Valid reports whether s is one of the known statuses, ignoring case.
func (s AccountStatus) Valid() bool {
	switch AccountStatus(strings.ToUpper(string(s))) {
	case AccountActive, AccountInactive, AccountBlocked:
		return true
	}
	return false
}

// Normalize returns the canonical upper-case form of s.
func (s AccountStatus) Normalize() AccountStatus {
	return AccountStatus(strings.ToUpper(strings.TrimSpace(string(s))))
}

type Account struct {
	ID          string          `json:"id"`
	HolderName  string          `json:"holder_name"`
	Balance     decimal.Decimal `json:"balance"`
	Status      AccountStatus   `json:"status"`
	Version     int64           `json:"version"`
	LastUpdated time.Time       `json:"last_updated"`
}

func NewAccount(id, holderName string, balance decimal.Decimal) *Account {
	return &Account{
		ID:          id,
		HolderName:  holderName,
		Balance:     balance,
		Status:      AccountActive,
		LastUpdated: time.Now().UTC(),
	}
}

func (a *Account) IsActive() bool {
	return strings.EqualFold(string(a.Status), string(AccountActive))
}

// Debit removes amount from the balance. The account is left untouched when
// any invariant fails.
func (a *Account) Debit(amount decimal.Decimal) error {
	if !a.IsActive() {
		return fmt.Errorf("%w: %s", ErrInactiveAccount, a.ID)
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("%w. Available: %s, Requested: %s",
			ErrInsufficientBalance, a.Balance.String(), amount.String())
	}

	a.Balance = a.Balance.Sub(amount)
	a.LastUpdated = time.Now().UTC()
	return nil
}

func (a *Account) Credit(amount decimal.Decimal) error {
	if !a.IsActive() {
		return fmt.Errorf("%w: %s", ErrInactiveAccount, a.ID)
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance.Add(amount)
	a.LastUpdated = time.Now().UTC()
	return nil
}

// Clone returns a detached copy so stores never share pointers with callers.
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}
