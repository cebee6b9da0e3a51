package repository

import (
	"context"
	"errors"

	"money_transfer/internal/domain"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	Exists(ctx context.Context, id string) (bool, error)
	// Save inserts an account with version 0 or updates one whose version
	// still matches the stored row. On success the version is incremented
	// and LastUpdated refreshed on the passed account.
	Save(ctx context.Context, account *domain.Account) error
	List(ctx context.Context) ([]*domain.Account, error)
}

type TransactionLogRepository interface {
	// Save assigns ID and CreatedOn. A second log with the same idempotency
	// key fails with ErrDuplicate.
	Save(ctx context.Context, log *domain.TransactionLog) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionLog, error)
	// GetHistory returns logs where the account is sender or receiver,
	// newest first.
	GetHistory(ctx context.Context, accountID string) ([]*domain.TransactionLog, error)
	List(ctx context.Context) ([]*domain.TransactionLog, error)
}

type UserRepository interface {
	Save(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// Tx is the set of repositories bound to one unit of work.
type Tx interface {
	Accounts() AccountRepository
	Transactions() TransactionLogRepository
	Users() UserRepository
}

// Store exposes autocommit repositories and runs functions in independent
// transactions. RunInTx never joins a transaction already in flight: every
// call commits or rolls back on its own.
type Store interface {
	Tx
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrVersionConflict = errors.New("version conflict")
)
