package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

// TransactionLog records one transfer attempt. There is at most one log per
// idempotency key.
type TransactionLog struct {
	ID             int64             `json:"id"`
	FromAccountID  string            `json:"from_account_id"`
	ToAccountID    string            `json:"to_account_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Status         TransactionStatus `json:"status"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedOn      time.Time         `json:"created_on"`
}

func NewTransactionLog(fromID, toID string, amount decimal.Decimal, idempotencyKey string) *TransactionLog {
	return &TransactionLog{
		FromAccountID:  fromID,
		ToAccountID:    toID,
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	}
}

func (l *TransactionLog) MarkSucceeded() {
	l.Status = StatusSuccess
	l.FailureReason = ""
}

func (l *TransactionLog) MarkFailed(reason string) {
	l.Status = StatusFailed
	l.FailureReason = reason
}

func (l *TransactionLog) Clone() *TransactionLog {
	cp := *l
	return &cp
}

type TransferRequest struct {
	FromAccountID  string          `json:"from_account_id"`
	ToAccountID    string          `json:"to_account_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type TransferResult struct {
	TransactionID *int64            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Message       string            `json:"message"`
}

// TransactionRecord is the read model returned by history queries.
type TransactionRecord struct {
	TransactionID int64             `json:"transaction_id"`
	FromAccountID string            `json:"from_account_id"`
	ToAccountID   string            `json:"to_account_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedOn     time.Time         `json:"created_on"`
}

func NewTransactionRecord(l *TransactionLog) TransactionRecord {
	return TransactionRecord{
		TransactionID: l.ID,
		FromAccountID: l.FromAccountID,
		ToAccountID:   l.ToAccountID,
		Amount:        l.Amount,
		Status:        l.Status,
		FailureReason: l.FailureReason,
		CreatedOn:     l.CreatedOn,
	}
}

// TransferEvent is published after every non-duplicate transfer attempt.
type TransferEvent struct {
	EventID        uuid.UUID         `json:"event_id"`
	TransactionID  *int64            `json:"transaction_id,omitempty"`
	FromAccountID  string            `json:"from_account_id"`
	ToAccountID    string            `json:"to_account_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Status         TransactionStatus `json:"status"`
	Message        string            `json:"message"`
	IdempotencyKey string            `json:"idempotency_key"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func NewTransferEvent(req TransferRequest, result TransferResult) TransferEvent {
	return TransferEvent{
		EventID:        uuid.New(),
		TransactionID:  result.TransactionID,
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		Amount:         req.Amount,
		Status:         result.Status,
		Message:        result.Message,
		IdempotencyKey: req.IdempotencyKey,
		OccurredAt:     time.Now().UTC(),
	}
}
