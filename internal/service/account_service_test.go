package service

import (
	"context"
	"fmt"
	"money_transfer/internal/domain"
	"money_transfer/internal/repository/memory"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccountID(t *testing.T) {
	id, err := GenerateAccountID()

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^MTS\d{4}-\d{8}$`), id)
}

func TestAccountService_Open(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(memory.NewStore(), nil, nil)

	account, err := svc.Open(ctx, "  Alice Smith ", decimal.NewFromInt(250))

	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", account.HolderName)
	assert.Equal(t, domain.AccountActive, account.Status)
	assert.Equal(t, int64(1), account.Version)

	got, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(250)))
}

func TestAccountService_OpenRejectsInvalidInput(t *testing.T) {
	svc := NewAccountService(memory.NewStore(), nil, nil)

	_, err := svc.Open(context.Background(), "A1", decimal.Zero)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Open(context.Background(), "Alice Smith", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccountService_OpenRetriesIDCollision(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(memory.NewStore(), nil, nil)
	ids := []string{"MTS2026-00000001", "MTS2026-00000001", "MTS2026-00000002"}
	svc.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	first, err := svc.Open(ctx, "Alice Smith", decimal.Zero)
	require.NoError(t, err)
	second, err := svc.Open(ctx, "Bob Jones", decimal.Zero)
	require.NoError(t, err)

	assert.Equal(t, "MTS2026-00000001", first.ID)
	assert.Equal(t, "MTS2026-00000002", second.ID)
}

func TestAccountService_OpenGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(memory.NewStore(), nil, nil)
	svc.newID = func() (string, error) { return "MTS2026-00000001", nil }

	_, err := svc.Open(ctx, "Alice Smith", decimal.Zero)
	require.NoError(t, err)
	_, err = svc.Open(ctx, "Bob Jones", decimal.Zero)

	assert.Error(t, err)
}

func TestAccountService_UpdateAndDeactivate(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(memory.NewStore(), nil, nil)
	account, err := svc.Open(ctx, "Alice Smith", decimal.NewFromInt(10))
	require.NoError(t, err)

	name := "Alice Jones"
	status := domain.AccountStatus("blocked")
	updated, err := svc.Update(ctx, account.ID, AccountUpdate{HolderName: &name, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "Alice Jones", updated.HolderName)
	assert.Equal(t, domain.AccountBlocked, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	bad := domain.AccountStatus("CLOSED")
	_, err = svc.Update(ctx, account.ID, AccountUpdate{Status: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	deactivated, err := svc.Deactivate(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountInactive, deactivated.Status)
	assert.True(t, deactivated.Balance.Equal(decimal.NewFromInt(10)), "deactivation keeps the balance")
}

func TestAccountService_GetMissing(t *testing.T) {
	svc := NewAccountService(memory.NewStore(), nil, nil)

	_, err := svc.Get(context.Background(), "MTS2026-99999999")

	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = svc.Deactivate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountService_List(t *testing.T) {
	ctx := context.Background()
	svc := NewAccountService(memory.NewStore(), nil, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Open(ctx, fmt.Sprintf("Holder %c", 'A'+i), decimal.Zero)
		require.NoError(t, err)
	}

	accounts, err := svc.List(ctx)

	require.NoError(t, err)
	assert.Len(t, accounts, 3)
}
