package storage

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5_backoffice/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func TestUserRoundtrip(t *testing.T) {
	s := newTestStorage(t)

	created, err := s.CreateUser("dealer@example.com", "hash", models.RoleDealer, "Dealer One")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)

	byEmail, err := s.GetUserByEmail("dealer@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, models.RoleDealer, byEmail.Role)

	missing, err := s.GetUserByEmail("nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAccountLookup(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.AddAccount(&models.MT5Account{
		Login:       1001,
		Group:       "real\\std",
		Leverage:    100,
		Currency:    "USD",
		Status:      models.AccountActive,
		DisplayName: "Client A",
	})
	require.NoError(t, err)

	account, err := s.GetAccountByLogin(1001)
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "real\\std", account.Group)

	missing, err := s.GetAccountByLogin(9999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.UpdateAccountGroup(1001, "real\\vip"))

	account, err = s.GetAccountByLogin(1001)
	require.NoError(t, err)
	assert.Equal(t, "real\\vip", account.Group)
}

func TestBalanceOperationIdempotencyKeyUnique(t *testing.T) {
	s := newTestStorage(t)

	op := &models.BalanceOperation{
		AccountID:      42,
		Login:          1001,
		Type:           "deposit",
		Amount:         500,
		Status:         models.OperationCompleted,
		IdempotencyKey: "req-abc-1",
		RequestedBy:    7,
		ApprovedBy:     7,
	}

	first, err := s.CreateBalanceOperation(op)
	require.NoError(t, err)

	_, err = s.CreateBalanceOperation(op)
	assert.Error(t, err, "duplicate idempotency key must be rejected")

	found, err := s.GetBalanceOperationByKey("req-abc-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, int64(42), found.AccountID)
	assert.Equal(t, int64(7), found.ApprovedBy)

	missing, err := s.GetBalanceOperationByKey("req-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBalanceOperationEmptyKeysAllowed(t *testing.T) {
	s := newTestStorage(t)

	// Операции без ключа не конфликтуют между собой
	for i := 0; i < 2; i++ {
		_, err := s.CreateBalanceOperation(&models.BalanceOperation{
			Login:  1001,
			Type:   "deposit",
			Amount: 100,
			Status: models.OperationCompleted,
		})
		require.NoError(t, err)
	}

	ops, err := s.ListBalanceOperations(1001, "", 10)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestDailyPnLUpsertOverwrites(t *testing.T) {
	s := newTestStorage(t)

	rec := &models.DailyPnLRecord{
		Day:       "2025-03-10",
		Login:     1001,
		EquityPnL: 100,
		NetPnL:    90,
		Currency:  "USD",
	}

	require.NoError(t, s.UpsertDailyPnL(rec))

	rec.EquityPnL = 150
	rec.NetPnL = 140
	require.NoError(t, s.UpsertDailyPnL(rec))

	records, err := s.ListDailyPnL("2025-03-10", "2025-03-10", 1001)
	require.NoError(t, err)
	require.Len(t, records, 1, "rerun must overwrite, not duplicate")
	assert.Equal(t, 150.0, records[0].EquityPnL)
	assert.Equal(t, 140.0, records[0].NetPnL)
}

func TestDailyPnLRangeAndAggregate(t *testing.T) {
	s := newTestStorage(t)

	days := []string{"2025-03-10", "2025-03-11", "2025-03-12"}
	for _, day := range days {
		require.NoError(t, s.UpsertDailyPnL(&models.DailyPnLRecord{Day: day, Login: 1001, NetPnL: 10}))
		require.NoError(t, s.UpsertDailyPnL(&models.DailyPnLRecord{Day: day, Login: 0, NetPnL: 10, Group: "ALL"}))
	}

	// Только агрегат организации
	aggregates, err := s.ListDailyPnL("2025-03-10", "2025-03-12", 0)
	require.NoError(t, err)
	assert.Len(t, aggregates, 3)

	// Все записи за один день
	all, err := s.ListDailyPnL("2025-03-11", "2025-03-11", -1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
