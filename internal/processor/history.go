package processor

import (
	"context"
	"fmt"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"strings"
)

type HistoryFilter string

const (
	FilterAll      HistoryFilter = "all"
	FilterSent     HistoryFilter = "sent"
	FilterReceived HistoryFilter = "received"
	FilterSuccess  HistoryFilter = "success"
	FilterFailure  HistoryFilter = "failure"
)

// ParseHistoryFilter accepts the filter names in any case. An empty string
// means FilterAll.
func ParseHistoryFilter(s string) (HistoryFilter, error) {
	f := HistoryFilter(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterSent, FilterReceived, FilterSuccess, FilterFailure:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

func (f HistoryFilter) matches(accountID string, l *domain.TransactionLog) bool {
	switch f {
	case FilterSent:
		return l.FromAccountID == accountID
	case FilterReceived:
		return l.ToAccountID == accountID
	case FilterSuccess:
		return l.Status == domain.StatusSuccess
	case FilterFailure:
		return l.Status == domain.StatusFailed
	}
	return true
}

type HistoryService struct {
	transactions repository.TransactionLogRepository
	logger       *slog.Logger
}

func NewHistoryService(transactions repository.TransactionLogRepository, logger *slog.Logger) *HistoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryService{transactions: transactions, logger: logger}
}

// TransactionHistory returns every log the account took part in, newest
// first.
func (s *HistoryService) TransactionHistory(ctx context.Context, accountID string) ([]domain.TransactionRecord, error) {
	logs, err := s.transactions.GetHistory(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load history for account %s: %w", accountID, err)
	}
	return toRecords(logs, accountID, FilterAll), nil
}

func (s *HistoryService) TransactionHistoryPage(ctx context.Context, accountID string, page, size int, filter string) (domain.Page[domain.TransactionRecord], error) {
	f, err := ParseHistoryFilter(filter)
	if err != nil {
		return domain.Page[domain.TransactionRecord]{}, err
	}

	logs, err := s.transactions.GetHistory(ctx, accountID)
	if err != nil {
		return domain.Page[domain.TransactionRecord]{}, fmt.Errorf("load history for account %s: %w", accountID, err)
	}

	s.logger.DebugContext(ctx, "History page requested",
		slog.String("account_id", accountID),
		slog.String("filter", string(f)),
		slog.Int("page", page),
		slog.Int("size", size))
	return domain.NewPage(toRecords(logs, accountID, f), page, size), nil
}

// AllTransactionsPage pages over every log in the ledger, newest first.
func (s *HistoryService) AllTransactionsPage(ctx context.Context, page, size int) (domain.Page[domain.TransactionRecord], error) {
	logs, err := s.transactions.List(ctx)
	if err != nil {
		return domain.Page[domain.TransactionRecord]{}, fmt.Errorf("list transactions: %w", err)
	}
	return domain.NewPage(toRecords(logs, "", FilterAll), page, size), nil
}

func toRecords(logs []*domain.TransactionLog, accountID string, f HistoryFilter) []domain.TransactionRecord {
	records := make([]domain.TransactionRecord, 0, len(logs))
	for _, l := range logs {
		if f.matches(accountID, l) {
			records = append(records, domain.NewTransactionRecord(l))
		}
	}
	return records
}
