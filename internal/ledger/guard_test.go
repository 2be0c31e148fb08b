package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mt5_backoffice/internal/models"
	"mt5_backoffice/internal/mt5"
)

type fakeStore struct {
	accounts map[int64]*models.MT5Account
	byKey    map[string]*models.BalanceOperation
	created  []*models.BalanceOperation
}

func newFakeStore(logins ...int64) *fakeStore {
	s := &fakeStore{
		accounts: make(map[int64]*models.MT5Account),
		byKey:    make(map[string]*models.BalanceOperation),
	}

	for i, login := range logins {
		s.accounts[login] = &models.MT5Account{
			ID:     int64(i + 1),
			Login:  login,
			Status: models.AccountActive,
		}
	}

	return s
}

func (s *fakeStore) GetAccountByLogin(login int64) (*models.MT5Account, error) {
	return s.accounts[login], nil
}

func (s *fakeStore) GetBalanceOperationByKey(key string) (*models.BalanceOperation, error) {
	return s.byKey[key], nil
}

func (s *fakeStore) CreateBalanceOperation(op *models.BalanceOperation) (*models.BalanceOperation, error) {
	saved := *op
	saved.ID = int64(len(s.created) + 1)
	s.created = append(s.created, &saved)

	if saved.IdempotencyKey != "" {
		s.byKey[saved.IdempotencyKey] = &saved
	}

	return &saved, nil
}

type fakeGateway struct {
	calls int
	err   error
}

func (g *fakeGateway) ApplyBalanceOperation(ctx context.Context, login int64, opType string, amount float64, comment string) (int64, error) {
	g.calls++

	if g.err != nil {
		return 0, g.err
	}

	return int64(5000 + g.calls), nil
}

func newGuard(store Store, gw Gateway) *Guard {
	return NewGuard(store, gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApplyJournalsOperation(t *testing.T) {
	store := newFakeStore(1001)
	gw := &fakeGateway{}
	guard := newGuard(store, gw)

	op, err := guard.Apply(context.Background(), Request{
		Login:          1001,
		Type:           mt5.OpDeposit,
		Amount:         500,
		Comment:        "DT wire",
		IdempotencyKey: "req-1",
		RequestedBy:    7,
	})

	require.NoError(t, err)
	assert.Equal(t, models.OperationCompleted, op.Status)
	assert.Equal(t, int64(5001), op.DealID)
	assert.Equal(t, store.accounts[1001].ID, op.AccountID)
	assert.Equal(t, int64(7), op.RequestedBy)
	assert.Equal(t, int64(7), op.ApprovedBy, "one-step flow: requester approves")
	assert.Equal(t, 1, gw.calls)
	assert.Len(t, store.created, 1)
}

func TestApplyDuplicateKeyReturnsExisting(t *testing.T) {
	store := newFakeStore(1001)
	gw := &fakeGateway{}
	guard := newGuard(store, gw)
	ctx := context.Background()

	req := Request{Login: 1001, Type: mt5.OpDeposit, Amount: 500, IdempotencyKey: "req-1"}

	first, err := guard.Apply(ctx, req)
	require.NoError(t, err)

	second, err := guard.Apply(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, gw.calls, "duplicate must not reach the server")
	assert.Len(t, store.created, 1)
}

func TestApplyRemoteFailureNotJournaled(t *testing.T) {
	store := newFakeStore(1001)
	gw := &fakeGateway{err: errors.New("server down")}
	guard := newGuard(store, gw)
	ctx := context.Background()

	req := Request{Login: 1001, Type: mt5.OpWithdrawal, Amount: 100, IdempotencyKey: "req-2"}

	_, err := guard.Apply(ctx, req)
	require.Error(t, err)
	assert.Empty(t, store.created, "failed operation must not be journaled")

	// После восстановления тот же ключ проходит заново
	gw.err = nil

	op, err := guard.Apply(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.OperationCompleted, op.Status)
	assert.Equal(t, 2, gw.calls)
}

func TestApplyUnknownAccount(t *testing.T) {
	guard := newGuard(newFakeStore(), &fakeGateway{})

	_, err := guard.Apply(context.Background(), Request{
		Login: 9999, Type: mt5.OpDeposit, Amount: 100,
	})

	require.ErrorIs(t, err, ErrUnknownAccount)
}

func TestApplyValidation(t *testing.T) {
	store := newFakeStore(1001)
	gw := &fakeGateway{}
	guard := newGuard(store, gw)
	ctx := context.Background()

	_, err := guard.Apply(ctx, Request{Login: 1001, Type: "bonus", Amount: 100})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = guard.Apply(ctx, Request{Login: 1001, Type: mt5.OpDeposit, Amount: -5})
	require.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, gw.calls)
}
