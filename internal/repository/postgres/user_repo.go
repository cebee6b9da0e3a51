package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
)

type UserRepository struct {
	db querier
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (username, password_hash, account_id, display_name, role, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NOW())
		RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		user.Username, user.PasswordHash, user.AccountID, user.DisplayName, string(user.Role),
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", repository.ErrDuplicate, user.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	query := `
		SELECT username, password_hash, COALESCE(account_id, ''), display_name, role, created_at
		FROM users WHERE lower(username) = lower($1)`
	err := r.db.QueryRow(ctx, query, username).Scan(
		&user.Username, &user.PasswordHash, &user.AccountID, &user.DisplayName, &role, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", repository.ErrNotFound, username)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.Role = domain.Role(role)
	return &user, nil
}
