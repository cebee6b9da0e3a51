package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const (
	DefaultBalanceSnapshotSchedule = "@every 1m"
	DefaultAccountSeriesLimit      = 50

	snapshotTimeout = 30 * time.Second
)

// BalanceGauges is the part of the metrics collector the snapshot job feeds.
type BalanceGauges interface {
	ResetAccountBalances()
	UpdateAccountBalance(accountID string, balance float64)
	UpdateLedgerTotal(total float64)
}

type Option func(*Scheduler)

// WithAccountSeriesLimit caps the per-account balance series to the n largest
// balances. Zero turns per-account series off and leaves only the total.
func WithAccountSeriesLimit(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.seriesLimit = n
		}
	}
}

type Scheduler struct {
	cron     *cron.Cron
	accounts repository.AccountRepository
	gauges   BalanceGauges
	schedule    string
	seriesLimit int
	logger      *slog.Logger
}

func NewScheduler(accounts repository.AccountRepository, gauges BalanceGauges, schedule string, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultBalanceSnapshotSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	s := &Scheduler{
		cron:        cron.New(cron.WithChain(cron.Recover(cronLogger))),
		accounts:    accounts,
		gauges:      gauges,
		schedule:    schedule,
		seriesLimit: DefaultAccountSeriesLimit,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the balance snapshot job and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.snapshot); err != nil {
		return fmt.Errorf("schedule balance snapshot %q: %w", s.schedule, err)
	}
	s.logger.Info("Scheduled balance snapshot job", slog.String("schedule", s.schedule))
	s.cron.Start()
	return nil
}

// Stop returns a context that is done once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) snapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Balance snapshot failed", slog.String("error", err.Error()))
	}
}

// RunOnce publishes the ledger total and the balances of the largest
// accounts, up to the series limit.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}

	// Series of accounts that dropped out of the top set must not linger.
	s.gauges.ResetAccountBalances()
	for _, a := range largest(accounts, s.seriesLimit) {
		s.gauges.UpdateAccountBalance(a.ID, a.Balance.InexactFloat64())
	}
	s.gauges.UpdateLedgerTotal(total.InexactFloat64())

	s.logger.Debug("Balance snapshot taken",
		slog.Int("accounts", len(accounts)),
		slog.String("total", total.String()))
	return nil
}

func largest(accounts []*domain.Account, n int) []*domain.Account {
	if n <= 0 {
		return nil
	}
	sorted := append([]*domain.Account(nil), accounts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Balance.GreaterThan(sorted[j].Balance)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
