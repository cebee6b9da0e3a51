package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"money_transfer/pkg/auth"
	"money_transfer/pkg/validator"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
)

type LoginResponse struct {
	Token       string `json:"token"`
	AccountID   string `json:"account_id,omitempty"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type AuthService struct {
	store     repository.Store
	accounts  *AccountService
	issuer    *auth.TokenIssuer
	validator *validator.TransactionValidator
	cost      int
	logger    *slog.Logger
}

func NewAuthService(
	store repository.Store,
	accounts *AccountService,
	issuer *auth.TokenIssuer,
	v *validator.TransactionValidator,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = validator.NewTransactionValidator()
	}
	return &AuthService{
		store:     store,
		accounts:  accounts,
		issuer:    issuer,
		validator: v,
		cost:      bcrypt.DefaultCost,
		logger:    logger,
	}
}

// Register opens a zero-balance account and a USER linked to it in one
// transaction.
func (s *AuthService) Register(ctx context.Context, username, password, holderName string) (LoginResponse, error) {
	username = strings.TrimSpace(username)
	if err := s.validator.ValidateUsername(username); err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.validator.ValidatePassword(password); err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := s.accounts.validateNew(holderName, decimal.Zero); err != nil {
		return LoginResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("hash password: %w", err)
	}

	var user *domain.User
	err = s.store.RunInTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.Users().GetByUsername(ctx, username); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		account, err := s.accounts.openIn(ctx, tx.Accounts(), holderName, decimal.Zero)
		if err != nil {
			return err
		}

		user = &domain.User{
			Username:     username,
			PasswordHash: string(hash),
			AccountID:    account.ID,
			DisplayName:  account.HolderName,
			Role:         domain.RoleUser,
		}
		return tx.Users().Save(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return LoginResponse{}, ErrUsernameTaken
		}
		return LoginResponse{}, err
	}

	s.logger.InfoContext(ctx, "User registered",
		slog.String("username", user.Username),
		slog.String("account_id", user.AccountID))
	return s.respond(user)
}

func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	user, err := s.store.Users().GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResponse{}, ErrInvalidCredentials
		}
		return LoginResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Login failed", slog.String("username", user.Username))
		return LoginResponse{}, ErrInvalidCredentials
	}

	if user.AccountID != "" {
		account, err := s.store.Accounts().GetByID(ctx, user.AccountID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return LoginResponse{}, err
		}
		if account == nil || !account.IsActive() {
			s.logger.WarnContext(ctx, "Login refused for inactive account",
				slog.String("username", user.Username),
				slog.String("account_id", user.AccountID))
			return LoginResponse{}, ErrInvalidCredentials
		}
	}

	return s.respond(user)
}

// EnsureAdmin creates the ADMIN user unless one with that name exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil
	}

	if _, err := s.store.Users().GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	admin := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  "Administrator",
		Role:         domain.RoleAdmin,
	}
	if err := s.store.Users().Save(ctx, admin); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("save admin: %w", err)
	}

	s.logger.InfoContext(ctx, "Admin user ensured", slog.String("username", username))
	return nil
}

func (s *AuthService) respond(user *domain.User) (LoginResponse, error) {
	token, err := s.issuer.Issue(user.Username, string(user.Role), user.AccountID)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{
		Token:       token,
		AccountID:   user.AccountID,
		DisplayName: user.DisplayName,
		Role:        string(user.Role),
	}, nil
}
