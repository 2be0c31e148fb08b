package mt5

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager - скриптуемый ManagerAPI для тестов
type fakeManager struct {
	mu sync.Mutex

	loginCalls int
	loginErrs  []error // Очередь ошибок для Login, после исчерпания - успех

	users        []RawUser
	groupCalls   int
	groupErrs    []error
	addedUsers   []RawUser
	userAddErr   error
	passwordErr  error
	dealerCalls  []dealerCall
	dealerErr    error
	deals        []RawDeal
	dailyReports []RawDaily
	positions    []RawPosition
}

type dealerCall struct {
	login   int64
	amount  float64
	action  int
	comment string
}

func (f *fakeManager) Login(ctx context.Context, host string, port int, login uint64, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loginCalls++

	if len(f.loginErrs) > 0 {
		err := f.loginErrs[0]
		f.loginErrs = f.loginErrs[1:]

		return err
	}

	return nil
}

func (f *fakeManager) Logout() error { return nil }

func (f *fakeManager) UserAdd(ctx context.Context, user *RawUser, masterPass, investorPass string) (*RawUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.userAddErr != nil {
		return nil, f.userAddErr
	}

	f.addedUsers = append(f.addedUsers, *user)

	return user, nil
}

func (f *fakeManager) UserRequest(ctx context.Context, login int64) (*RawUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.users {
		if f.users[i].Login == login {
			return &f.users[i], nil
		}
	}

	return nil, &RemoteError{Code: retNotFound, Message: "not found"}
}

func (f *fakeManager) UserUpdate(ctx context.Context, user *RawUser) error { return nil }

func (f *fakeManager) UserGetByGroup(ctx context.Context, mask string) ([]RawUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groupCalls++

	if len(f.groupErrs) > 0 {
		err := f.groupErrs[0]
		f.groupErrs = f.groupErrs[1:]

		return nil, err
	}

	return f.users, nil
}

func (f *fakeManager) UserAccountGet(ctx context.Context, login int64) (*RawAccount, error) {
	return nil, &RemoteError{Code: retNotFound, Message: "no account state"}
}

func (f *fakeManager) PasswordChange(ctx context.Context, login int64, passType int, newPassword string) error {
	return f.passwordErr
}

func (f *fakeManager) DealerBalance(ctx context.Context, login int64, amount float64, action int, comment string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dealerErr != nil {
		return 0, f.dealerErr
	}

	f.dealerCalls = append(f.dealerCalls, dealerCall{login, amount, action, comment})

	return int64(1000 + len(f.dealerCalls)), nil
}

func (f *fakeManager) DailyRequestByLogins(ctx context.Context, logins []int64, from, to int64) ([]RawDaily, error) {
	return f.dailyReports, nil
}

func (f *fakeManager) DailyRequestLight(ctx context.Context, login int64, from, to int64) ([]RawDaily, error) {
	return f.dailyReports, nil
}

func (f *fakeManager) DailyRequestLightByGroup(ctx context.Context, mask string, from, to int64) ([]RawDaily, error) {
	return f.dailyReports, nil
}

func (f *fakeManager) DealRequest(ctx context.Context, login int64, from, to int64) ([]RawDeal, error) {
	return f.deals, nil
}

func (f *fakeManager) DealRequestByGroup(ctx context.Context, mask string, from, to int64) ([]RawDeal, error) {
	return f.deals, nil
}

func (f *fakeManager) PositionGetByLogin(ctx context.Context, login int64) ([]RawPosition, error) {
	return f.positions, nil
}

func (f *fakeManager) PositionGetByGroup(ctx context.Context, mask string) ([]RawPosition, error) {
	return f.positions, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSession(api ManagerAPI) *Session {
	return NewSession(api, Options{
		Host:             "127.0.0.1",
		Port:             443,
		Login:            1,
		Password:         "x",
		CallTimeout:      time.Second,
		MaxRetries:       3,
		BackoffBase:      5 * time.Millisecond,
		BreakerThreshold: 10,
		BreakerCoolDown:  time.Minute,
	}, testLogger())
}

func TestConnectIdempotent(t *testing.T) {
	fake := &fakeManager{}
	s := testSession(fake)

	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Connect(context.Background()))

	assert.Equal(t, 1, fake.loginCalls)
	assert.Equal(t, StateConnected, s.State())
}

func TestConnectFailureRecordsBreaker(t *testing.T) {
	fake := &fakeManager{loginErrs: []error{errors.New("refused")}}
	s := testSession(fake)

	err := s.Connect(context.Background())

	require.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 1, s.Breaker().Failures())
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	fake := &fakeManager{
		users:     []RawUser{{Login: 100, Group: "demo\\usd"}},
		groupErrs: []error{errors.New("timeout"), errors.New("timeout")},
	}
	s := testSession(fake)

	start := time.Now()
	groups, err := s.GetGroups(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, []string{"demo\\usd"}, groups)
	assert.Equal(t, 3, fake.groupCalls)
	// Две ошибки = две паузы: base + base*2 = 15ms минимум
	assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
	// Успех сбрасывает счетчик breaker'а
	assert.Equal(t, 0, s.Breaker().Failures())
}

func TestRetriesExhausted(t *testing.T) {
	fake := &fakeManager{
		groupErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	s := testSession(fake)

	_, err := s.GetGroups(context.Background())

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, fake.groupCalls)
	assert.Equal(t, 3, s.Breaker().Failures())
}

func TestCircuitOpenFailsFast(t *testing.T) {
	fake := &fakeManager{}
	s := testSession(fake)
	s.breaker = NewCircuitBreaker(1, time.Minute)

	s.breaker.RecordFailure()

	_, err := s.GetGroups(context.Background())

	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, fake.groupCalls, "open breaker must not reach the server")
}

func TestNotFoundIsNotRetried(t *testing.T) {
	fake := &fakeManager{
		passwordErr: &RemoteError{Code: retNotFound, Message: "no such login"},
	}
	s := testSession(fake)

	err := s.ChangeMainPassword(context.Background(), 999, "NewPass123")

	require.ErrorIs(t, err, ErrAccountNotFound)
	// Детерминированная ошибка не пишется в breaker
	assert.Equal(t, 0, s.Breaker().Failures())
}

func TestCreateAccountPicksMaxLoginPlusOne(t *testing.T) {
	fake := &fakeManager{
		users: []RawUser{{Login: 100}, {Login: 105}, {Login: 102}},
	}
	s := testSession(fake)

	acc, err := s.CreateAccount(context.Background(), NewAccount{
		Group:            "real\\std",
		Leverage:         100,
		Name:             "Test User",
		MasterPassword:   "Master123!",
		InvestorPassword: "Invest123!",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(106), acc.Login)
	require.Len(t, fake.addedUsers, 1)
	assert.Equal(t, "real\\std", fake.addedUsers[0].Group)
	assert.Equal(t, uint64(defaultUserRights), fake.addedUsers[0].Rights)
}

func TestApplyBalanceOperationValidation(t *testing.T) {
	fake := &fakeManager{}
	s := testSession(fake)

	_, err := s.ApplyBalanceOperation(context.Background(), 100, "bonus", 50, "x")
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = s.ApplyBalanceOperation(context.Background(), 100, OpDeposit, -50, "x")
	require.ErrorIs(t, err, ErrInvalidOperation)

	_, err = s.ApplyBalanceOperation(context.Background(), 100, OpDeposit, 0, "x")
	require.ErrorIs(t, err, ErrInvalidOperation)

	assert.Empty(t, fake.dealerCalls, "invalid request must not reach the server")
}

func TestApplyBalanceOperationSignsAndActions(t *testing.T) {
	fake := &fakeManager{}
	s := testSession(fake)
	ctx := context.Background()

	_, err := s.ApplyBalanceOperation(ctx, 100, OpDeposit, 500, "DT wire")
	require.NoError(t, err)

	_, err = s.ApplyBalanceOperation(ctx, 100, OpWithdrawal, 200, "WT req")
	require.NoError(t, err)

	_, err = s.ApplyBalanceOperation(ctx, 100, OpCreditIn, 50, "credit")
	require.NoError(t, err)

	_, err = s.ApplyBalanceOperation(ctx, 100, OpCreditOut, 30, "credit out")
	require.NoError(t, err)

	require.Len(t, fake.dealerCalls, 4)
	assert.Equal(t, dealerCall{100, 500, DealActionBalance, "DT wire"}, fake.dealerCalls[0])
	assert.Equal(t, dealerCall{100, -200, DealActionBalance, "WT req"}, fake.dealerCalls[1])
	assert.Equal(t, dealerCall{100, 50, DealActionCredit, "credit"}, fake.dealerCalls[2])
	assert.Equal(t, dealerCall{100, -30, DealActionCredit, "credit out"}, fake.dealerCalls[3])
}

func TestGetDealHistoryFiltersAndTags(t *testing.T) {
	fake := &fakeManager{
		deals: []RawDeal{
			{Deal: 1, Login: 100, Action: DealActionBuy, Symbol: "EURUSD", Profit: 10},
			{Deal: 2, Login: 100, Action: DealActionBalance, Profit: 500, Comment: "DT wire", Time: 1700000000},
			{Deal: 3, Login: 100, Action: DealActionCredit, Profit: 100, Comment: "monthly credit"},
			{Deal: 4, Login: 100, Action: DealActionCharge, Profit: -5, Comment: "fee"},
		},
	}
	s := testSession(fake)

	records, err := s.GetDealHistory(context.Background(), 100,
		time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, records, 3, "market deals must be filtered out")

	assert.Equal(t, "DEPOSIT", records[0].Action)
	assert.Equal(t, TagDeposit, records[0].Tag)
	assert.Equal(t, "2023-11-14 22:13:20", records[0].Datetime)

	assert.Equal(t, "CREDIT", records[1].Action)
	assert.Equal(t, "", records[1].Tag, "credit without prefix stays untagged")

	assert.Equal(t, "CHARGE", records[2].Action)
	assert.Equal(t, TagPromotion, records[2].Tag)
}

func TestGetRealtimeSnapshotFallbackEquity(t *testing.T) {
	fake := &fakeManager{
		users: []RawUser{{Login: 100, Name: "A", Balance: 1000, Credit: 200, Group: "real\\std"}},
	}
	s := testSession(fake)

	snapshots, err := s.GetRealtimeSnapshot(context.Background(), 100, "")

	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	rt := snapshots[0]
	assert.Equal(t, 1200.0, rt.Equity, "no account state: equity = balance + credit")
	assert.Equal(t, 1000.0, rt.NetEquity, "net equity = equity - credit")
	assert.Equal(t, 1200.0, rt.MarginFree)
}

func TestGetRealtimeSnapshotUnknownLogin(t *testing.T) {
	fake := &fakeManager{}
	s := testSession(fake)

	_, err := s.GetRealtimeSnapshot(context.Background(), 777, "")

	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestGetNetPositions(t *testing.T) {
	fake := &fakeManager{
		positions: []RawPosition{
			{Position: 1, Login: 100, Symbol: "EURUSD", Action: DealActionBuy, Volume: 10000, Profit: 15},
			{Position: 2, Login: 101, Symbol: "EURUSD", Action: DealActionSell, Volume: 30000, Profit: -5},
			{Position: 3, Login: 102, Symbol: "XAUUSD", Action: DealActionBuy, Volume: 5000, Profit: 2},
		},
	}
	s := testSession(fake)

	nets, err := s.GetNetPositions(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, nets, 2)

	// Сортировка по символу
	assert.Equal(t, "EURUSD", nets[0].Symbol)
	assert.Equal(t, 1.0, nets[0].BuyVolume)
	assert.Equal(t, 3.0, nets[0].SellVolume)
	assert.Equal(t, -2.0, nets[0].NetVolume)
	assert.Equal(t, 2, nets[0].PositionsCount)
	assert.Equal(t, 10.0, nets[0].TotalProfit)

	assert.Equal(t, "XAUUSD", nets[1].Symbol)
	assert.Equal(t, 0.5, nets[1].BuyVolume)
}

func TestDayBoundsUTC(t *testing.T) {
	from := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	to := time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)

	fromTs, toTs := dayBounds(from, to)

	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Unix(), fromTs)
	assert.Equal(t, time.Date(2025, 3, 11, 23, 59, 59, 0, time.UTC).Unix(), toTs)
}
