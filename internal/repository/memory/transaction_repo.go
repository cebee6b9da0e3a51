package memory

import (
	"context"
	"fmt"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"sort"
)

type TransactionRepository struct {
	db *database
	tx *txState
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{db: newDatabase()}
}

func (r *TransactionRepository) Save(ctx context.Context, l *domain.TransactionLog) error {
	if r.tx != nil {
		return r.stage(l)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.keyIndex[l.IdempotencyKey]; exists {
		return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, l.IdempotencyKey)
	}
	r.db.insertLog(l)
	return nil
}

// stage queues the log for commit. The id and creation time are assigned
// when the transaction commits.
func (r *TransactionRepository) stage(l *domain.TransactionLog) error {
	for _, staged := range r.tx.logs {
		if staged.IdempotencyKey == l.IdempotencyKey {
			return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, l.IdempotencyKey)
		}
	}
	r.tx.logs = append(r.tx.logs, l)
	return nil
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionLog, error) {
	if r.tx != nil {
		for _, staged := range r.tx.logs {
			if staged.IdempotencyKey == key {
				return staged.Clone(), nil
			}
		}
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id, exists := r.db.keyIndex[key]
	if !exists {
		return nil, fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, key)
	}
	return r.db.logs[id].Clone(), nil
}

func (r *TransactionRepository) GetHistory(ctx context.Context, accountID string) ([]*domain.TransactionLog, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var result []*domain.TransactionLog
	for _, l := range r.db.logs {
		if l.FromAccountID == accountID || l.ToAccountID == accountID {
			result = append(result, l.Clone())
		}
	}

	sortNewestFirst(result)
	return result, nil
}

func (r *TransactionRepository) List(ctx context.Context) ([]*domain.TransactionLog, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	result := make([]*domain.TransactionLog, 0, len(r.db.logs))
	for _, l := range r.db.logs {
		result = append(result, l.Clone())
	}

	sortNewestFirst(result)
	return result, nil
}

func sortNewestFirst(logs []*domain.TransactionLog) {
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].CreatedOn.Equal(logs[j].CreatedOn) {
			return logs[i].CreatedOn.After(logs[j].CreatedOn)
		}
		return logs[i].ID > logs[j].ID
	})
}
