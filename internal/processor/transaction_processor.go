package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MessageSuccess  = "Transfer completed successfully"
	MessageInternal = "Transfer could not be completed due to an internal error"

	defaultMaxAttempts = 3
)

// MetricsRecorder receives one observation per finished transfer.
type MetricsRecorder interface {
	ObserveTransfer(status string, duration time.Duration)
	IncFailureLogErrors()
}

// EventSink receives transfer outcomes. Enqueue must not block past ctx.
type EventSink interface {
	Enqueue(ctx context.Context, event domain.TransferEvent) error
}

type Option func(*TransferProcessor)

func WithLogger(logger *slog.Logger) Option {
	return func(p *TransferProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(p *TransferProcessor) { p.metrics = m }
}

func WithEventSink(sink EventSink) Option {
	return func(p *TransferProcessor) { p.events = sink }
}

// WithMaxAttempts bounds how often a transaction is retried after an
// optimistic version conflict.
func WithMaxAttempts(n int) Option {
	return func(p *TransferProcessor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

type TransferProcessor struct {
	store       repository.Store
	failures    *FailureLogger
	locker      Locker
	metrics     MetricsRecorder
	events      EventSink
	maxAttempts int
	logger      *slog.Logger
}

func NewTransferProcessor(
	store repository.Store,
	failures *FailureLogger,
	locker Locker,
	opts ...Option,
) *TransferProcessor {
	p := &TransferProcessor{
		store:       store,
		failures:    failures,
		locker:      locker,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.failures == nil {
		p.failures = NewFailureLogger(store, 0, p.logger)
	}
	if p.locker == nil {
		p.locker = NewMemoryLocker()
	}
	return p
}

// outcome tells Transfer how the attempt ended beyond the public result.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeDuplicate
)

// Transfer moves req.Amount from one account to another. Business rule
// violations come back as a FAILED result with a nil error. Infrastructure
// failures return a FAILED result together with an error wrapping
// ErrInternal.
func (p *TransferProcessor) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	start := time.Now()

	result, out, err := p.transfer(ctx, req)

	if p.metrics != nil {
		p.metrics.ObserveTransfer(string(result.Status), time.Since(start))
	}
	if p.events != nil && out != outcomeDuplicate {
		if qerr := p.events.Enqueue(ctx, domain.NewTransferEvent(req, result)); qerr != nil {
			p.logger.WarnContext(ctx, "Transfer event not queued",
				slog.String("idempotency_key", req.IdempotencyKey),
				slog.String("error", qerr.Error()))
		}
	}
	return result, err
}

func (p *TransferProcessor) transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, outcome, error) {
	p.logger.InfoContext(ctx, "Processing transfer",
		slog.String("from_account", req.FromAccountID),
		slog.String("to_account", req.ToAccountID),
		slog.String("amount", req.Amount.String()),
		slog.String("idempotency_key", req.IdempotencyKey))

	if err := p.checkExists(ctx, req); err != nil {
		if errors.Is(err, ErrInternal) {
			return internalResult(), outcomeCompleted, err
		}
		p.logger.InfoContext(ctx, "Transfer rejected", slog.String("reason", err.Error()))
		return failedResult(message(err)), outcomeCompleted, nil
	}

	txLog := domain.NewTransactionLog(req.FromAccountID, req.ToAccountID, req.Amount, req.IdempotencyKey)

	unlock, err := p.locker.Lock(ctx, req.FromAccountID, req.ToAccountID)
	if err != nil {
		err = fmt.Errorf("%w: acquire account lock: %w", ErrInternal, err)
		p.recordFailure(ctx, txLog, MessageInternal)
		return internalResult(), outcomeCompleted, err
	}
	defer unlock()

	err = p.runWithRetry(ctx, req, txLog)
	switch {
	case err == nil:
		p.logger.InfoContext(ctx, "Transfer completed successfully",
			slog.Int64("transaction_id", txLog.ID),
			slog.String("idempotency_key", req.IdempotencyKey))
		id := txLog.ID
		return domain.TransferResult{TransactionID: &id, Status: domain.StatusSuccess, Message: MessageSuccess}, outcomeCompleted, nil

	case isDuplicate(err):
		p.logger.InfoContext(ctx, "Duplicate transfer request",
			slog.String("idempotency_key", req.IdempotencyKey))
		return failedResult(message(domain.ErrDuplicateTransfer)), outcomeDuplicate, nil

	case isBusinessFailure(err):
		msg := message(err)
		p.logger.InfoContext(ctx, "Transfer failed",
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.String("reason", msg))
		p.recordFailure(ctx, txLog, msg)
		return failedResult(msg), outcomeCompleted, nil

	default:
		p.logger.ErrorContext(ctx, "Transfer aborted",
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.String("error", err.Error()))
		p.recordFailure(ctx, txLog, MessageInternal)
		return internalResult(), outcomeCompleted, fmt.Errorf("%w: %w", ErrInternal, err)
	}
}

func (p *TransferProcessor) checkExists(ctx context.Context, req domain.TransferRequest) error {
	accounts := p.store.Accounts()

	ok, err := accounts.Exists(ctx, req.FromAccountID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if !ok {
		return domain.ErrFromAccountNotFound
	}

	ok, err = accounts.Exists(ctx, req.ToAccountID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if !ok {
		return domain.ErrToAccountNotFound
	}
	return nil
}

func (p *TransferProcessor) runWithRetry(ctx context.Context, req domain.TransferRequest, txLog *domain.TransactionLog) error {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = p.store.RunInTx(ctx, func(tx repository.Tx) error {
			return p.execute(ctx, tx, req, txLog)
		})
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		p.logger.WarnContext(ctx, "Version conflict, retrying transfer",
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.Int("attempt", attempt))
	}
	return fmt.Errorf("gave up after %d attempts: %w", p.maxAttempts, err)
}

// execute is the body of the transfer transaction.
func (p *TransferProcessor) execute(ctx context.Context, tx repository.Tx, req domain.TransferRequest, txLog *domain.TransactionLog) error {
	_, err := tx.Transactions().GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		return domain.ErrDuplicateTransfer
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	from, err := tx.Accounts().GetByID(ctx, req.FromAccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrFromAccountNotFound
	} else if err != nil {
		return err
	}
	to, err := tx.Accounts().GetByID(ctx, req.ToAccountID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrToAccountNotFound
	} else if err != nil {
		return err
	}

	if from.ID == to.ID {
		return domain.ErrSameAccount
	}

	if err := from.Debit(req.Amount); err != nil {
		return err
	}
	if err := to.Credit(req.Amount); err != nil {
		return err
	}

	if err := tx.Accounts().Save(ctx, from); err != nil {
		return err
	}
	if err := tx.Accounts().Save(ctx, to); err != nil {
		return err
	}

	txLog.MarkSucceeded()
	return tx.Transactions().Save(ctx, txLog)
}

// recordFailure persists a FAILED log. Errors are logged and counted but
// never change the transfer result.
func (p *TransferProcessor) recordFailure(ctx context.Context, txLog *domain.TransactionLog, reason string) {
	txLog.MarkFailed(reason)
	if err := p.failures.SaveFailureLog(ctx, txLog); err != nil {
		p.logger.ErrorContext(ctx, "Failed to save failure log",
			slog.String("idempotency_key", txLog.IdempotencyKey),
			slog.String("error", err.Error()))
		if p.metrics != nil {
			p.metrics.IncFailureLogErrors()
		}
	}
}

func isDuplicate(err error) bool {
	return errors.Is(err, domain.ErrDuplicateTransfer) || errors.Is(err, repository.ErrDuplicate)
}

func isBusinessFailure(err error) bool {
	for _, target := range []error{
		domain.ErrFromAccountNotFound,
		domain.ErrToAccountNotFound,
		domain.ErrSameAccount,
		domain.ErrInvalidAmount,
		domain.ErrInactiveAccount,
		domain.ErrInsufficientBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func failedResult(msg string) domain.TransferResult {
	return domain.TransferResult{Status: domain.StatusFailed, Message: msg}
}

func internalResult() domain.TransferResult {
	return failedResult(MessageInternal)
}

// message turns an error into the sentence shown to clients.
func message(err error) string {
	s := err.Error()
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
