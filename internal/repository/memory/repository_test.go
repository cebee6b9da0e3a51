package memory

import (
	"context"
	"errors"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccountRepository_SaveAndGetByID(t *testing.T) {
	repo := NewAccountRepository()
	account := domain.NewAccount("acc1", "Alice Smith", decimal.NewFromInt(100))

	err := repo.Save(context.Background(), account)
	if err != nil {
		t.Fatalf("unexpected error on Save: %v", err)
	}
	got, err := repo.GetByID(context.Background(), "acc1")

	if err != nil {
		t.Fatalf("unexpected error on GetByID: %v", err)
	}
	if got.ID != account.ID || got.HolderName != account.HolderName || !got.Balance.Equal(account.Balance) {
		t.Errorf("expected account %+v, got %+v", account, got)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1 after insert, got %d", got.Version)
	}
}

func TestAccountRepository_GetByIDReturnsCopy(t *testing.T) {
	repo := NewAccountRepository()
	_ = repo.Save(context.Background(), domain.NewAccount("acc1", "Alice Smith", decimal.NewFromInt(100)))

	got, _ := repo.GetByID(context.Background(), "acc1")
	got.Balance = decimal.NewFromInt(1)

	again, _ := repo.GetByID(context.Background(), "acc1")
	if !again.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("stored account was mutated through a returned pointer: %s", again.Balance)
	}
}

func TestAccountRepository_SaveStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	_ = repo.Save(ctx, domain.NewAccount("acc1", "Alice Smith", decimal.NewFromInt(100)))

	first, _ := repo.GetByID(ctx, "acc1")
	second, _ := repo.GetByID(ctx, "acc1")

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("unexpected error on first Save: %v", err)
	}
	err := repo.Save(ctx, second)

	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestAccountRepository_InsertExistingID(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	_ = repo.Save(ctx, domain.NewAccount("acc1", "Alice Smith", decimal.NewFromInt(100)))

	err := repo.Save(ctx, domain.NewAccount("acc1", "Bob Jones", decimal.Zero))

	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestAccountRepository_ExistsAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	_ = repo.Save(ctx, domain.NewAccount("b", "Bob Jones", decimal.Zero))
	_ = repo.Save(ctx, domain.NewAccount("a", "Alice Smith", decimal.Zero))

	ok, err := repo.Exists(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected account a to exist, got %v, %v", ok, err)
	}
	if ok, _ := repo.Exists(ctx, "zzz"); ok {
		t.Errorf("expected unknown account to be missing")
	}

	accounts, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error on List: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "a" || accounts[1].ID != "b" {
		t.Errorf("expected accounts [a b], got %+v", accounts)
	}
}

func TestTransactionRepository_SaveAssignsIDAndRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	first := domain.NewTransactionLog("a", "b", decimal.NewFromInt(10), "k1")
	first.MarkSucceeded()

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("unexpected error on Save: %v", err)
	}
	if first.ID != 1 || first.CreatedOn.IsZero() {
		t.Errorf("expected id 1 and creation time, got %+v", first)
	}

	second := domain.NewTransactionLog("a", "b", decimal.NewFromInt(10), "k1")
	second.MarkFailed("whatever")
	err := repo.Save(ctx, second)

	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	got, err := repo.GetByIdempotencyKey(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error on GetByIdempotencyKey: %v", err)
	}
	if got.Status != domain.StatusSuccess {
		t.Errorf("expected original SUCCESS log, got %s", got.Status)
	}
}

func TestTransactionRepository_GetHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository()
	for _, l := range []*domain.TransactionLog{
		domain.NewTransactionLog("a", "b", decimal.NewFromInt(1), "k1"),
		domain.NewTransactionLog("c", "a", decimal.NewFromInt(2), "k2"),
		domain.NewTransactionLog("b", "c", decimal.NewFromInt(3), "k3"),
		domain.NewTransactionLog("a", "c", decimal.NewFromInt(4), "k4"),
	} {
		l.MarkSucceeded()
		_ = repo.Save(ctx, l)
	}

	history, err := repo.GetHistory(ctx, "a")

	if err != nil {
		t.Fatalf("unexpected error on GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 logs for account a, got %d", len(history))
	}
	if history[0].IdempotencyKey != "k4" || history[1].IdempotencyKey != "k2" || history[2].IdempotencyKey != "k1" {
		t.Errorf("expected k4, k2, k1, got %s, %s, %s",
			history[0].IdempotencyKey, history[1].IdempotencyKey, history[2].IdempotencyKey)
	}
}

func TestUserRepository_UsernameIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	_ = repo.Save(ctx, &domain.User{Username: "alice", Role: domain.RoleUser})

	err := repo.Save(ctx, &domain.User{Username: "ALICE", Role: domain.RoleUser})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := repo.GetByUsername(ctx, "Alice"); err != nil {
		t.Errorf("unexpected error on GetByUsername: %v", err)
	}
	if _, err := repo.GetByUsername(ctx, "bob"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RunInTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Accounts().Save(ctx, domain.NewAccount("a", "Alice Smith", decimal.NewFromInt(50)))

	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		acc, err := tx.Accounts().GetByID(ctx, "a")
		if err != nil {
			return err
		}
		acc.Balance = decimal.NewFromInt(20)
		if err := tx.Accounts().Save(ctx, acc); err != nil {
			return err
		}
		l := domain.NewTransactionLog("a", "b", decimal.NewFromInt(30), "k1")
		l.MarkSucceeded()
		return tx.Transactions().Save(ctx, l)
	})

	if err != nil {
		t.Fatalf("unexpected error on RunInTx: %v", err)
	}
	got, _ := store.Accounts().GetByID(ctx, "a")
	if !got.Balance.Equal(decimal.NewFromInt(20)) || got.Version != 2 {
		t.Errorf("expected balance 20 at version 2, got %s at %d", got.Balance, got.Version)
	}
	if l, err := store.Transactions().GetByIdempotencyKey(ctx, "k1"); err != nil || l.ID == 0 {
		t.Errorf("expected committed log with id, got %+v, %v", l, err)
	}
}

func TestStore_RunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Accounts().Save(ctx, domain.NewAccount("a", "Alice Smith", decimal.NewFromInt(50)))
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		acc, _ := tx.Accounts().GetByID(ctx, "a")
		acc.Balance = decimal.Zero
		_ = tx.Accounts().Save(ctx, acc)

		staged, _ := tx.Accounts().GetByID(ctx, "a")
		if !staged.Balance.IsZero() {
			t.Errorf("expected transaction to read its own write, got %s", staged.Balance)
		}
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := store.Accounts().GetByID(ctx, "a")
	if !got.Balance.Equal(decimal.NewFromInt(50)) || got.Version != 1 {
		t.Errorf("expected untouched account, got %s at version %d", got.Balance, got.Version)
	}
}

func TestStore_RunInTxDetectsConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Accounts().Save(ctx, domain.NewAccount("a", "Alice Smith", decimal.NewFromInt(50)))

	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		acc, _ := tx.Accounts().GetByID(ctx, "a")

		outside, _ := store.Accounts().GetByID(ctx, "a")
		outside.HolderName = "Alice Jones"
		if err := store.Accounts().Save(ctx, outside); err != nil {
			t.Fatalf("unexpected error on outside Save: %v", err)
		}

		acc.Balance = decimal.NewFromInt(10)
		return tx.Accounts().Save(ctx, acc)
	})

	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
	got, _ := store.Accounts().GetByID(ctx, "a")
	if !got.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected balance 50, got %s", got.Balance)
	}
}

func TestStore_RunInTxCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		l := domain.NewTransactionLog("a", "b", decimal.NewFromInt(1), "k1")
		l.MarkSucceeded()
		_ = tx.Transactions().Save(ctx, l)
		cancel()
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := store.Transactions().GetByIdempotencyKey(context.Background(), "k1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected log to be rolled back, got %v", err)
	}
}

func TestStore_RunInTxDuplicateKeyAtCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.RunInTx(ctx, func(tx repository.Tx) error {
		l := domain.NewTransactionLog("a", "b", decimal.NewFromInt(1), "k1")
		l.MarkSucceeded()
		if err := tx.Transactions().Save(ctx, l); err != nil {
			return err
		}

		other := domain.NewTransactionLog("a", "b", decimal.NewFromInt(1), "k1")
		other.MarkFailed("raced")
		if err := store.Transactions().Save(ctx, other); err != nil {
			t.Fatalf("unexpected error saving outside log: %v", err)
		}
		return nil
	})

	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate at commit, got %v", err)
	}
	got, _ := store.Transactions().GetByIdempotencyKey(ctx, "k1")
	if got.Status != domain.StatusFailed {
		t.Errorf("expected the outside log to win, got %s", got.Status)
	}
}
