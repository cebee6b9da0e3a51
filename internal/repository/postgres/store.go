package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"money_transfer/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

var (
	_ repository.Store                    = (*Store)(nil)
	_ repository.AccountRepository        = (*AccountRepository)(nil)
	_ repository.TransactionLogRepository = (*TransactionRepository)(nil)
	_ repository.UserRepository           = (*UserRepository)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	repos
}

type repos struct {
	accounts     *AccountRepository
	transactions *TransactionRepository
	users        *UserRepository
}

func newRepos(q querier) repos {
	return repos{
		accounts:     &AccountRepository{db: q},
		transactions: &TransactionRepository{db: q},
		users:        &UserRepository{db: q},
	}
}

func (r repos) Accounts() repository.AccountRepository            { return r.accounts }
func (r repos) Transactions() repository.TransactionLogRepository { return r.transactions }
func (r repos) Users() repository.UserRepository                  { return r.users }

// NewStore opens a connection pool and verifies it with a ping.
func NewStore(ctx context.Context, databaseURL string, maxConns int32, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL", slog.Int("max_conns", int(cfg.MaxConns)))
	return NewStoreFromPool(pool, logger), nil
}

func NewStoreFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, repos: newRepos(pool)}
}

// Migrate creates the tables and indexes when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.InfoContext(ctx, "Database schema applied")
	return nil
}

// RunInTx runs fn inside a new READ COMMITTED transaction. The transaction is
// rolled back when fn returns an error.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
