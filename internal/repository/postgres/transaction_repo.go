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

const logColumns = `id, from_account_id, to_account_id, amount::text, status,
	COALESCE(failure_reason, ''), idempotency_key, created_on`

type TransactionRepository struct {
	db querier
}

func (r *TransactionRepository) Save(ctx context.Context, l *domain.TransactionLog) error {
	query := `
		INSERT INTO transaction_logs
			(from_account_id, to_account_id, amount, status, failure_reason, idempotency_key, created_on)
		VALUES ($1, $2, $3::numeric, $4, NULLIF($5, ''), $6, NOW())
		RETURNING id, created_on`
	err := r.db.QueryRow(ctx, query,
		l.FromAccountID, l.ToAccountID, l.Amount.String(), string(l.Status), l.FailureReason, l.IdempotencyKey,
	).Scan(&l.ID, &l.CreatedOn)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, l.IdempotencyKey)
		}
		return fmt.Errorf("insert transaction log: %w", err)
	}
	l.CreatedOn = l.CreatedOn.UTC()
	return nil
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionLog, error) {
	row := r.db.QueryRow(ctx, `SELECT `+logColumns+` FROM transaction_logs WHERE idempotency_key = $1`, key)
	l, err := scanLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, key)
		}
		return nil, fmt.Errorf("get transaction log by key: %w", err)
	}
	return l, nil
}

func (r *TransactionRepository) GetHistory(ctx context.Context, accountID string) ([]*domain.TransactionLog, error) {
	query := `SELECT ` + logColumns + ` FROM transaction_logs
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_on DESC, id DESC`
	return r.queryLogs(ctx, query, accountID)
}

func (r *TransactionRepository) List(ctx context.Context) ([]*domain.TransactionLog, error) {
	query := `SELECT ` + logColumns + ` FROM transaction_logs ORDER BY created_on DESC, id DESC`
	return r.queryLogs(ctx, query)
}

func (r *TransactionRepository) queryLogs(ctx context.Context, query string, args ...any) ([]*domain.TransactionLog, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transaction logs: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransactionLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func scanLog(row pgx.Row) (*domain.TransactionLog, error) {
	var (
		l      domain.TransactionLog
		amount string
		status string
	)
	err := row.Scan(&l.ID, &l.FromAccountID, &l.ToAccountID, &amount, &status,
		&l.FailureReason, &l.IdempotencyKey, &l.CreatedOn)
	if err != nil {
		return nil, err
	}

	l.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	l.Status = domain.TransactionStatus(status)
	l.CreatedOn = l.CreatedOn.UTC()
	return &l, nil
}
