package memory

import (
	"context"
	"fmt"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"sync"
	"time"
)

var (
	_ repository.Store                    = (*Store)(nil)
	_ repository.AccountRepository        = (*AccountRepository)(nil)
	_ repository.TransactionLogRepository = (*TransactionRepository)(nil)
	_ repository.UserRepository           = (*UserRepository)(nil)
)

// database is the committed state shared by a Store and all of its
// transactions.
type database struct {
	mu        sync.RWMutex
	accounts  map[string]*domain.Account
	logs      map[int64]*domain.TransactionLog
	keyIndex  map[string]int64
	users     map[string]*domain.User
	nextLogID int64
}

func newDatabase() *database {
	return &database{
		accounts: make(map[string]*domain.Account),
		logs:     make(map[int64]*domain.TransactionLog),
		keyIndex: make(map[string]int64),
		users:    make(map[string]*domain.User),
	}
}

// stagedAccount remembers the version the transaction read, so commit can
// detect a concurrent writer.
type stagedAccount struct {
	account  *domain.Account
	expected int64
}

// txState holds writes that become visible only on commit.
type txState struct {
	accounts map[string]*stagedAccount
	logs     []*domain.TransactionLog
	users    map[string]*domain.User
}

func newTxState() *txState {
	return &txState{
		accounts: make(map[string]*stagedAccount),
		users:    make(map[string]*domain.User),
	}
}

type Store struct {
	db           *database
	accounts     *AccountRepository
	transactions *TransactionRepository
	users        *UserRepository
}

func NewStore() *Store {
	return newStore(newDatabase(), nil)
}

func newStore(db *database, tx *txState) *Store {
	return &Store{
		db:           db,
		accounts:     &AccountRepository{db: db, tx: tx},
		transactions: &TransactionRepository{db: db, tx: tx},
		users:        &UserRepository{db: db, tx: tx},
	}
}

func (s *Store) Accounts() repository.AccountRepository            { return s.accounts }
func (s *Store) Transactions() repository.TransactionLogRepository { return s.transactions }
func (s *Store) Users() repository.UserRepository                  { return s.users }

// RunInTx stages every write made through tx and applies them atomically
// when fn returns nil. Nothing is applied when fn fails, when ctx is done or
// when a version or uniqueness check fails at commit.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	state := newTxState()
	if err := fn(newStore(s.db, state)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.commit(state)
}

func (s *Store) Close() {}

func (db *database) commit(state *txState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, staged := range state.accounts {
		if err := db.checkAccountVersion(id, staged.expected); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(state.logs))
	for _, l := range state.logs {
		if _, exists := db.keyIndex[l.IdempotencyKey]; exists {
			return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, l.IdempotencyKey)
		}
		if _, exists := seen[l.IdempotencyKey]; exists {
			return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, l.IdempotencyKey)
		}
		seen[l.IdempotencyKey] = struct{}{}
	}
	for username := range state.users {
		if _, exists := db.users[username]; exists {
			return fmt.Errorf("%w: user %s", repository.ErrDuplicate, username)
		}
	}

	for id, staged := range state.accounts {
		db.accounts[id] = staged.account.Clone()
	}
	for _, l := range state.logs {
		db.insertLog(l)
	}
	for username, u := range state.users {
		db.users[username] = u.Clone()
	}
	return nil
}

func (db *database) checkAccountVersion(id string, expected int64) error {
	current, exists := db.accounts[id]
	switch {
	case !exists && expected == 0:
		return nil
	case !exists:
		return fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	case expected == 0:
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, id)
	case current.Version != expected:
		return fmt.Errorf("%w: account %s at version %d, expected %d",
			repository.ErrVersionConflict, id, current.Version, expected)
	}
	return nil
}

// insertLog assigns the id and creation time on the caller's log and stores
// a copy. Callers hold db.mu.
func (db *database) insertLog(l *domain.TransactionLog) {
	db.nextLogID++
	l.ID = db.nextLogID
	l.CreatedOn = time.Now().UTC()
	db.logs[l.ID] = l.Clone()
	db.keyIndex[l.IdempotencyKey] = l.ID
}
