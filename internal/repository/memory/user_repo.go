package memory

import (
	"context"
	"fmt"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"strings"
	"time"
)

type UserRepository struct {
	db *database
	tx *txState
}

func NewUserRepository() *UserRepository {
	return &UserRepository{db: newDatabase()}
}

// Save inserts a new user. Usernames are unique ignoring case.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	key := strings.ToLower(user.Username)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if r.tx != nil {
		if _, exists := r.tx.users[key]; exists {
			return fmt.Errorf("%w: user %s", repository.ErrDuplicate, user.Username)
		}
		r.tx.users[key] = user.Clone()
		return nil
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.users[key]; exists {
		return fmt.Errorf("%w: user %s", repository.ErrDuplicate, user.Username)
	}
	r.db.users[key] = user.Clone()
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	key := strings.ToLower(username)
	if r.tx != nil {
		if u, ok := r.tx.users[key]; ok {
			return u.Clone(), nil
		}
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, exists := r.db.users[key]
	if !exists {
		return nil, fmt.Errorf("%w: user %s", repository.ErrNotFound, username)
	}
	return u.Clone(), nil
}
