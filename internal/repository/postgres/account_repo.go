package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
)

const accountColumns = `id, holder_name, balance::text, status, version, last_updated`

type AccountRepository struct {
	db querier
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return account, nil
}

func (r *AccountRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account %s: %w", id, err)
	}
	return exists, nil
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	if account.Version == 0 {
		return r.insert(ctx, account)
	}

	query := `
		UPDATE accounts
		SET holder_name = $2, balance = $3::numeric, status = $4,
			version = version + 1, last_updated = NOW()
		WHERE id = $1 AND version = $5
		RETURNING version, last_updated`
	err := r.db.QueryRow(ctx, query,
		account.ID, account.HolderName, account.Balance.String(), string(account.Status), account.Version,
	).Scan(&account.Version, &account.LastUpdated)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update account %s: %w", account.ID, err)
	}

	exists, existsErr := r.Exists(ctx, account.ID)
	if existsErr != nil {
		return existsErr
	}
	if !exists {
		return fmt.Errorf("%w: account %s", repository.ErrNotFound, account.ID)
	}
	return fmt.Errorf("%w: account %s at version %d", repository.ErrVersionConflict, account.ID, account.Version)
}

func (r *AccountRepository) insert(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, holder_name, balance, status, version, last_updated)
		VALUES ($1, $2, $3::numeric, $4, 1, NOW())
		RETURNING version, last_updated`
	err := r.db.QueryRow(ctx, query,
		account.ID, account.HolderName, account.Balance.String(), string(account.Status),
	).Scan(&account.Version, &account.LastUpdated)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
		}
		return fmt.Errorf("insert account %s: %w", account.ID, err)
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, account)
	}
	return result, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account domain.Account
		balance string
		status  string
	)
	if err := row.Scan(&account.ID, &account.HolderName, &balance, &status, &account.Version, &account.LastUpdated); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	account.Balance = amount
	account.Status = domain.AccountStatus(status)
	account.LastUpdated = account.LastUpdated.UTC()
	return &account, nil
}
