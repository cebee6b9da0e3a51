package memory

import (
	"context"
	"fmt"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"sort"
	"time"
)

type AccountRepository struct {
	db *database
	tx *txState
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{db: newDatabase()}
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if r.tx != nil {
		if staged, ok := r.tx.accounts[id]; ok {
			return staged.account.Clone(), nil
		}
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	account, exists := r.db.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	return account.Clone(), nil
}

func (r *AccountRepository) Exists(ctx context.Context, id string) (bool, error) {
	if r.tx != nil {
		if _, ok := r.tx.accounts[id]; ok {
			return true, nil
		}
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	_, exists := r.db.accounts[id]
	return exists, nil
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	if r.tx != nil {
		return r.stage(account)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.db.checkAccountVersion(account.ID, account.Version); err != nil {
		return err
	}
	account.Version++
	account.LastUpdated = time.Now().UTC()
	r.db.accounts[account.ID] = account.Clone()
	return nil
}

func (r *AccountRepository) stage(account *domain.Account) error {
	expected := account.Version
	if prev, ok := r.tx.accounts[account.ID]; ok {
		if prev.account.Version != account.Version {
			return fmt.Errorf("%w: account %s", repository.ErrVersionConflict, account.ID)
		}
		expected = prev.expected
	} else {
		r.db.mu.RLock()
		err := r.db.checkAccountVersion(account.ID, expected)
		r.db.mu.RUnlock()
		if err != nil {
			return err
		}
	}

	account.Version++
	account.LastUpdated = time.Now().UTC()
	r.tx.accounts[account.ID] = &stagedAccount{account: account.Clone(), expected: expected}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	result := make([]*domain.Account, 0, len(r.db.accounts))
	for id, account := range r.db.accounts {
		if r.tx != nil {
			if staged, ok := r.tx.accounts[id]; ok {
				account = staged.account
			}
		}
		result = append(result, account.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}
