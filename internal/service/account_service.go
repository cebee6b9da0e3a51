package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"money_transfer/pkg/validator"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxIDAttempts = 5

var (
	ErrValidation      = errors.New("validation failed")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountConflict = errors.New("account was modified concurrently")
)

type AccountUpdate struct {
	HolderName *string               `json:"holder_name,omitempty"`
	Status     *domain.AccountStatus `json:"status,omitempty"`
}

type AccountService struct {
	store     repository.Store
	validator *validator.TransactionValidator
	newID     func() (string, error)
	logger    *slog.Logger
}

func NewAccountService(store repository.Store, v *validator.TransactionValidator, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = validator.NewTransactionValidator()
	}
	return &AccountService{store: store, validator: v, newID: GenerateAccountID, logger: logger}
}

// GenerateAccountID returns an id of the form MTS<year>-<8 digits>.
func GenerateAccountID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("generate account id: %w", err)
	}
	return fmt.Sprintf("MTS%d-%08d", time.Now().UTC().Year(), n.Int64()), nil
}

func (s *AccountService) Open(ctx context.Context, holderName string, initialBalance decimal.Decimal) (*domain.Account, error) {
	if err := s.validateNew(holderName, initialBalance); err != nil {
		return nil, err
	}

	account, err := s.openIn(ctx, s.store.Accounts(), holderName, initialBalance)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account opened",
		slog.String("account_id", account.ID),
		slog.String("initial_balance", account.Balance.String()))
	return account, nil
}

func (s *AccountService) validateNew(holderName string, initialBalance decimal.Decimal) error {
	if err := s.validator.ValidateHolderName(holderName); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.validator.ValidateInitialBalance(initialBalance); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// openIn saves a new ACTIVE account through accounts, drawing a fresh id
// whenever the generated one is already taken.
func (s *AccountService) openIn(ctx context.Context, accounts repository.AccountRepository, holderName string, initialBalance decimal.Decimal) (*domain.Account, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}

		account := domain.NewAccount(id, strings.TrimSpace(holderName), initialBalance)
		err = accounts.Save(ctx, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("save account: %w", err)
		}
		s.logger.WarnContext(ctx, "Account id collision, retrying", slog.String("account_id", id))
	}
	return nil, fmt.Errorf("no free account id after %d attempts", maxIDAttempts)
}

func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.store.Accounts().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) List(ctx context.Context) ([]*domain.Account, error) {
	return s.store.Accounts().List(ctx)
}

// Update applies an admin change. The save is version checked, so a transfer
// committing in between makes the update fail with ErrAccountConflict.
func (s *AccountService) Update(ctx context.Context, id string, update AccountUpdate) (*domain.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.HolderName != nil {
		if err := s.validator.ValidateHolderName(*update.HolderName); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		account.HolderName = strings.TrimSpace(*update.HolderName)
	}
	if update.Status != nil {
		if err := s.validator.ValidateStatus(*update.Status); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		account.Status = update.Status.Normalize()
	}

	if err := s.save(ctx, account); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account updated",
		slog.String("account_id", account.ID),
		slog.String("status", string(account.Status)))
	return account, nil
}

func (s *AccountService) Deactivate(ctx context.Context, id string) (*domain.Account, error) {
	status := domain.AccountInactive
	return s.Update(ctx, id, AccountUpdate{Status: &status})
}

func (s *AccountService) save(ctx context.Context, account *domain.Account) error {
	err := s.store.Accounts().Save(ctx, account)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVersionConflict):
		return fmt.Errorf("%w: %s", ErrAccountConflict, account.ID)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrAccountNotFound, account.ID)
	}
	return fmt.Errorf("save account: %w", err)
}
