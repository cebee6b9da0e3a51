package processor

import (
	"context"
	"fmt"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"time"
)

const defaultFailureLogTimeout = 5 * time.Second

// FailureLogger persists FAILED transaction logs in a transaction of their
// own, so the record survives the rollback of the transfer it describes.
type FailureLogger struct {
	store   repository.Store
	timeout time.Duration
	logger  *slog.Logger
}

func NewFailureLogger(store repository.Store, timeout time.Duration, logger *slog.Logger) *FailureLogger {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultFailureLogTimeout
	}
	return &FailureLogger{store: store, timeout: timeout, logger: logger}
}

// SaveFailureLog inserts l through a new transaction on the root store. The
// caller's cancellation is ignored; only the logger's own timeout applies.
func (f *FailureLogger) SaveFailureLog(ctx context.Context, l *domain.TransactionLog) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	l.ID = 0
	err := f.store.RunInTx(ctx, func(tx repository.Tx) error {
		return tx.Transactions().Save(ctx, l)
	})
	if err != nil {
		return fmt.Errorf("save failure log for key %s: %w", l.IdempotencyKey, err)
	}

	f.logger.InfoContext(ctx, "Failure log saved",
		slog.Int64("transaction_id", l.ID),
		slog.String("idempotency_key", l.IdempotencyKey),
		slog.String("reason", l.FailureReason))
	return nil
}
