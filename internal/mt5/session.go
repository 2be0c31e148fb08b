package mt5

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Состояния сессии
type SessionState int32

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options - параметры шлюза к серверу MT5
type Options struct {
	Host             string
	Port             int
	Login            uint64
	Password         string
	CallTimeout      time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	BreakerThreshold int
	BreakerCoolDown  time.Duration
}

// NewAccount - параметры создания торгового аккаунта
type NewAccount struct {
	Group            string
	Leverage         int
	Name             string
	Email            string
	MasterPassword   string
	InvestorPassword string
}

// Session - единственное авторизованное подключение к Manager API.
// Все удалённые операции идут через ретраи и circuit breaker; переподключение
// выполняется лениво перед попыткой. Потокобезопасна.
type Session struct {
	api    ManagerAPI
	opts   Options
	logger *slog.Logger

	breaker     *CircuitBreaker
	callTimeout time.Duration
	maxRetries  int
	backoffBase time.Duration

	// Сериализует connect/disconnect: два конкурентных реконнекта
	// не должны открыть два соединения
	connMu sync.Mutex
	state  atomic.Int32
}

func NewSession(api ManagerAPI, opts Options, logger *slog.Logger) *Session {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}

	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}

	return &Session{
		api:         api,
		opts:        opts,
		logger:      logger,
		breaker:     NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerCoolDown),
		callTimeout: opts.CallTimeout,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
	}
}

// Connect устанавливает соединение с сервером. Повторный вызов на живом
// соединении - no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if SessionState(s.state.Load()) == StateConnected {
		return nil
	}

	if !s.breaker.CanExecute() {
		return ErrCircuitOpen
	}

	s.state.Store(int32(StateConnecting))

	s.logger.Info("🚀 Connecting to MT5 manager",
		slog.String("host", s.opts.Host),
		slog.Int("port", s.opts.Port))

	err := s.api.Login(ctx, s.opts.Host, s.opts.Port, s.opts.Login, s.opts.Password)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		s.breaker.RecordFailure()

		s.logger.Error("❌ MT5 connection failed", slog.Any("error", err))

		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	// Счетчик breaker'а сбрасывает только успешная операция: иначе
	// реконнект между ретраями обнулял бы подсчет ошибок
	s.state.Store(int32(StateConnected))

	s.logger.Info("✅ Connected to MT5 manager")

	return nil
}

// Disconnect закрывает соединение. Идемпотентен.
func (s *Session) Disconnect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if SessionState(s.state.Load()) == StateDisconnected {
		return nil
	}

	err := s.api.Logout()
	s.state.Store(int32(StateDisconnected))

	s.logger.Info("🛑 Disconnected from MT5 manager")

	return err
}

// State возвращает текущее состояние сессии
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) markDisconnected() {
	s.state.Store(int32(StateDisconnected))
}

// CreateAccount создает торговый аккаунт. Логин выбирается как максимальный
// существующий + 1; если сервер отклонил логин (гонка с другим менеджером),
// ретрай пересканирует логины и пробует снова.
func (s *Session) CreateAccount(ctx context.Context, req NewAccount) (*AccountSnapshot, error) {
	return execute(ctx, s, "create_account", func(ctx context.Context) (*AccountSnapshot, error) {
		users, err := s.api.UserGetByGroup(ctx, "*")
		if err != nil {
			return nil, fmt.Errorf("scan logins: %w", err)
		}

		var maxLogin int64
		for _, u := range users {
			if u.Login > maxLogin {
				maxLogin = u.Login
			}
		}

		newLogin := maxLogin + 1

		user := &RawUser{
			Login:    newLogin,
			Group:    req.Group,
			Name:     req.Name,
			Email:    req.Email,
			Leverage: req.Leverage,
			Rights:   defaultUserRights,
		}

		created, err := s.api.UserAdd(ctx, user, req.MasterPassword, req.InvestorPassword)
		if err != nil {
			return nil, fmt.Errorf("%w: login %d: %w", ErrCreateAccount, newLogin, err)
		}

		s.logger.Info("✅ MT5 account created",
			slog.Int64("login", created.Login),
			slog.String("group", created.Group))

		return &AccountSnapshot{
			Login:    created.Login,
			Group:    created.Group,
			Leverage: created.Leverage,
			Name:     created.Name,
			Status:   "active",
		}, nil
	})
}

// ResetPassword сбрасывает основной пароль аккаунта на новый
func (s *Session) ResetPassword(ctx context.Context, login int64, newPassword string) error {
	return s.changePassword(ctx, login, PasswordMain, newPassword)
}

// ChangeMainPassword меняет основной (торговый) пароль аккаунта
func (s *Session) ChangeMainPassword(ctx context.Context, login int64, newPassword string) error {
	return s.changePassword(ctx, login, PasswordMain, newPassword)
}

// ChangeInvestorPassword меняет инвесторский (read-only) пароль аккаунта
func (s *Session) ChangeInvestorPassword(ctx context.Context, login int64, newPassword string) error {
	return s.changePassword(ctx, login, PasswordInvestor, newPassword)
}

func (s *Session) changePassword(ctx context.Context, login int64, passType int, newPassword string) error {
	_, err := execute(ctx, s, "change_password", func(ctx context.Context) (struct{}, error) {
		err := s.api.PasswordChange(ctx, login, passType, newPassword)
		if err != nil {
			if isNotFound(err) {
				return struct{}{}, fmt.Errorf("%w: login %d", ErrAccountNotFound, login)
			}

			return struct{}{}, err
		}

		return struct{}{}, nil
	})

	return err
}

// ChangeGroup переводит аккаунт в другую группу
func (s *Session) ChangeGroup(ctx context.Context, login int64, newGroup string) error {
	_, err := execute(ctx, s, "change_group", func(ctx context.Context) (struct{}, error) {
		user, err := s.api.UserRequest(ctx, login)
		if err != nil {
			if isNotFound(err) {
				return struct{}{}, fmt.Errorf("%w: login %d", ErrAccountNotFound, login)
			}

			return struct{}{}, err
		}

		user.Group = newGroup

		if err := s.api.UserUpdate(ctx, user); err != nil {
			return struct{}{}, fmt.Errorf("update group: %w", err)
		}

		return struct{}{}, nil
	})

	return err
}

// GetGroups возвращает отсортированный список групп сервера
func (s *Session) GetGroups(ctx context.Context) ([]string, error) {
	return execute(ctx, s, "get_groups", func(ctx context.Context) ([]string, error) {
		users, err := s.api.UserGetByGroup(ctx, "*")
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)

		var groups []string
		for _, u := range users {
			if u.Group != "" && !seen[u.Group] {
				seen[u.Group] = true
				groups = append(groups, u.Group)
			}
		}

		sort.Strings(groups)

		return groups, nil
	})
}

// GetAccountInfo возвращает состояние аккаунта. Торговые метрики (маржа,
// плавающий профит) подтягиваются отдельным запросом; если он не удался,
// equity считается как balance + credit.
func (s *Session) GetAccountInfo(ctx context.Context, login int64) (*AccountSnapshot, error) {
	return execute(ctx, s, "get_account_info", func(ctx context.Context) (*AccountSnapshot, error) {
		user, err := s.api.UserRequest(ctx, login)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%w: login %d", ErrAccountNotFound, login)
			}

			return nil, err
		}

		info := &AccountSnapshot{
			Login:    user.Login,
			Group:    user.Group,
			Leverage: user.Leverage,
			Balance:  user.Balance,
			Credit:   user.Credit,
			Equity:   user.Balance + user.Credit,
			Name:     user.Name,
			Status:   "active",
		}

		account, err := s.api.UserAccountGet(ctx, login)
		if err == nil {
			info.Equity = account.Equity
			info.MarginFree = account.MarginFree
			info.MarginLevel = account.MarginLevel
			info.Currency = account.Currency
		}

		return info, nil
	})
}

// ApplyBalanceOperation проводит балансовую операцию на сервере.
// Возвращает id сделки. Валидация типа и суммы выполняется до похода в сеть.
func (s *Session) ApplyBalanceOperation(ctx context.Context, login int64, opType string, amount float64, comment string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidOperation)
	}

	var action int

	signed := amount

	switch opType {
	case OpDeposit:
		action = DealActionBalance
	case OpWithdrawal:
		action = DealActionBalance
		signed = -amount
	case OpCreditIn:
		action = DealActionCredit
	case OpCreditOut:
		action = DealActionCredit
		signed = -amount
	default:
		return 0, fmt.Errorf("%w: unknown operation type %q", ErrInvalidOperation, opType)
	}

	return execute(ctx, s, "balance_operation", func(ctx context.Context) (int64, error) {
		dealID, err := s.api.DealerBalance(ctx, login, signed, action, comment)
		if err != nil {
			if isNotFound(err) {
				return 0, fmt.Errorf("%w: login %d", ErrAccountNotFound, login)
			}

			return 0, fmt.Errorf("%w: %w", ErrBalanceOperation, err)
		}

		s.logger.Info("✅ Balance operation applied",
			slog.Int64("login", login),
			slog.String("type", opType),
			slog.Float64("amount", amount),
			slog.Int64("deal_id", dealID))

		return dealID, nil
	})
}

// GetDailyReports возвращает дневные отчеты за период [from, to] (UTC дни).
// login == 0 - по всем аккаунтам (опционально сужается маской группы).
// Для одного логина сначала пробуется полный отчет, при ошибке - облегченный.
func (s *Session) GetDailyReports(ctx context.Context, login int64, from, to time.Time, group string) ([]DailyReport, error) {
	fromTs, toTs := dayBounds(from, to)

	return execute(ctx, s, "get_daily_reports", func(ctx context.Context) ([]DailyReport, error) {
		var (
			raw []RawDaily
			err error
		)

		switch {
		case login != 0:
			raw, err = s.api.DailyRequestByLogins(ctx, []int64{login}, fromTs, toTs)
			if err != nil {
				s.logger.Debug("Full daily report failed, falling back to light",
					slog.Int64("login", login), slog.Any("error", err))

				raw, err = s.api.DailyRequestLight(ctx, login, fromTs, toTs)
			}
		case group != "":
			raw, err = s.api.DailyRequestLightByGroup(ctx, group, fromTs, toTs)
		default:
			raw, err = s.api.DailyRequestLightByGroup(ctx, "*", fromTs, toTs)
		}

		if err != nil {
			return nil, err
		}

		reports := make([]DailyReport, 0, len(raw))
		for i := range raw {
			reports = append(reports, convertDaily(&raw[i]))
		}

		return reports, nil
	})
}

// GetDealHistory возвращает балансовые транзакции за период [from, to].
// Рыночные сделки (buy/sell) отфильтровываются. login == 0 - по всем аккаунтам.
func (s *Session) GetDealHistory(ctx context.Context, login int64, from, to time.Time) ([]DealRecord, error) {
	fromTs, toTs := dayBounds(from, to)

	return execute(ctx, s, "get_deal_history", func(ctx context.Context) ([]DealRecord, error) {
		raw, err := s.fetchDeals(ctx, login, fromTs, toTs)
		if err != nil {
			return nil, err
		}

		var records []DealRecord

		for i := range raw {
			d := &raw[i]

			switch d.Action {
			case DealActionBalance, DealActionCredit, DealActionCharge, DealActionCorrection:
			default:
				continue
			}

			records = append(records, DealRecord{
				DealID:       d.Deal,
				Login:        d.Login,
				Action:       ActionName(d.Action, d.Profit),
				Amount:       d.Profit,
				BalanceAfter: d.Balance,
				Comment:      d.Comment,
				Timestamp:    d.Time,
				Datetime:     utcDatetime(d.Time),
				Tag:          Classify(d.Comment, d.Action),
			})
		}

		return records, nil
	})
}

// GetTradeDeals возвращает рыночные сделки (buy/sell) за период
func (s *Session) GetTradeDeals(ctx context.Context, login int64, from, to time.Time) ([]TradeDeal, error) {
	fromTs, toTs := dayBounds(from, to)

	return execute(ctx, s, "get_trade_deals", func(ctx context.Context) ([]TradeDeal, error) {
		raw, err := s.fetchDeals(ctx, login, fromTs, toTs)
		if err != nil {
			return nil, err
		}

		var deals []TradeDeal

		for i := range raw {
			d := &raw[i]
			if d.Action != DealActionBuy && d.Action != DealActionSell {
				continue
			}

			deals = append(deals, TradeDeal{
				DealID:     d.Deal,
				Login:      d.Login,
				Symbol:     d.Symbol,
				Action:     ActionName(d.Action, d.Profit),
				Volume:     lots(d.Volume),
				Price:      d.Price,
				Profit:     d.Profit,
				Commission: d.Commission,
				Swap:       d.Storage,
				Timestamp:  d.Time,
				Datetime:   utcDatetime(d.Time),
			})
		}

		return deals, nil
	})
}

// GetPositionHistory возвращает закрытые позиции (сделки с entry out/inout)
func (s *Session) GetPositionHistory(ctx context.Context, login int64, from, to time.Time) ([]ClosedPosition, error) {
	fromTs, toTs := dayBounds(from, to)

	return execute(ctx, s, "get_position_history", func(ctx context.Context) ([]ClosedPosition, error) {
		raw, err := s.fetchDeals(ctx, login, fromTs, toTs)
		if err != nil {
			return nil, err
		}

		var closed []ClosedPosition

		for i := range raw {
			d := &raw[i]
			if d.Entry != DealEntryOut && d.Entry != DealEntryInOut {
				continue
			}

			if d.Action != DealActionBuy && d.Action != DealActionSell {
				continue
			}

			closed = append(closed, ClosedPosition{
				PositionID:    d.PositionID,
				DealID:        d.Deal,
				OrderID:       d.Order,
				Login:         d.Login,
				Symbol:        d.Symbol,
				Action:        ActionName(d.Action, d.Profit),
				Volume:        lots(d.Volume),
				Price:         d.Price,
				Profit:        d.Profit,
				Commission:    d.Commission,
				Swap:          d.Storage,
				Timestamp:     d.Time,
				Datetime:      utcDatetime(d.Time),
				TimeCreate:    d.TimeCreate,
				TimeCreateStr: utcDatetime(d.TimeCreate),
			})
		}

		return closed, nil
	})
}

func (s *Session) fetchDeals(ctx context.Context, login int64, fromTs, toTs int64) ([]RawDeal, error) {
	if login != 0 {
		raw, err := s.api.DealRequest(ctx, login, fromTs, toTs)
		if err != nil && isNotFound(err) {
			return nil, fmt.Errorf("%w: login %d", ErrAccountNotFound, login)
		}

		return raw, err
	}

	return s.api.DealRequestByGroup(ctx, "*", fromTs, toTs)
}

// GetRealtimeSnapshot возвращает текущее состояние аккаунтов.
// login != 0 - один аккаунт, иначе все (опционально по маске группы).
// Если торговое состояние недоступно, equity = balance + credit без маржи.
func (s *Session) GetRealtimeSnapshot(ctx context.Context, login int64, group string) ([]RealtimeEquity, error) {
	return execute(ctx, s, "get_realtime", func(ctx context.Context) ([]RealtimeEquity, error) {
		var users []RawUser

		if login != 0 {
			user, err := s.api.UserRequest(ctx, login)
			if err != nil {
				if isNotFound(err) {
					return nil, fmt.Errorf("%w: login %d", ErrAccountNotFound, login)
				}

				return nil, err
			}

			users = []RawUser{*user}
		} else {
			mask := group
			if mask == "" {
				mask = "*"
			}

			var err error

			users, err = s.api.UserGetByGroup(ctx, mask)
			if err != nil {
				return nil, err
			}
		}

		now := time.Now().UTC().Unix()

		snapshots := make([]RealtimeEquity, 0, len(users))

		for i := range users {
			u := &users[i]

			rt := RealtimeEquity{
				Login:     u.Login,
				Name:      u.Name,
				Balance:   u.Balance,
				Credit:    u.Credit,
				Group:     u.Group,
				Timestamp: now,
			}

			account, err := s.api.UserAccountGet(ctx, u.Login)
			if err == nil {
				rt.Equity = account.Equity
				rt.Margin = account.Margin
				rt.MarginFree = account.MarginFree
				rt.MarginLevel = account.MarginLevel
				rt.FloatingProfit = account.Profit
				rt.Currency = account.Currency
			} else {
				rt.Equity = u.Balance + u.Credit
				rt.MarginFree = rt.Equity
			}

			rt.NetEquity = rt.Equity - rt.Credit

			snapshots = append(snapshots, rt)
		}

		return snapshots, nil
	})
}

// GetOpenPositions возвращает открытые позиции.
// login == 0 - все аккаунты; symbol сужает выборку (без учета регистра).
func (s *Session) GetOpenPositions(ctx context.Context, login int64, symbol string) ([]Position, error) {
	return execute(ctx, s, "get_open_positions", func(ctx context.Context) ([]Position, error) {
		var (
			raw []RawPosition
			err error
		)

		if login != 0 {
			raw, err = s.api.PositionGetByLogin(ctx, login)
		} else {
			raw, err = s.api.PositionGetByGroup(ctx, "*")
		}

		if err != nil {
			return nil, err
		}

		symbolUpper := strings.ToUpper(symbol)

		var positions []Position

		for i := range raw {
			p := &raw[i]

			if symbolUpper != "" && strings.ToUpper(p.Symbol) != symbolUpper {
				continue
			}

			positions = append(positions, Position{
				Ticket:       p.Position,
				Login:        p.Login,
				Symbol:       p.Symbol,
				Volume:       lots(p.Volume),
				Action:       p.Action,
				PriceOpen:    p.PriceOpen,
				PriceCurrent: p.PriceCurrent,
				Profit:       p.Profit,
				Swap:         p.Storage,
				Commission:   p.Commission,
				TimeCreate:   p.TimeCreate,
			})
		}

		return positions, nil
	})
}

// GetNetPositions агрегирует открытые позиции в нетто-экспозицию по символам
func (s *Session) GetNetPositions(ctx context.Context, symbol string) ([]NetPosition, error) {
	positions, err := s.GetOpenPositions(ctx, 0, symbol)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*NetPosition)

	for i := range positions {
		p := &positions[i]

		net := bySymbol[p.Symbol]
		if net == nil {
			net = &NetPosition{Symbol: p.Symbol}
			bySymbol[p.Symbol] = net
		}

		if p.Action == DealActionBuy {
			net.BuyVolume += p.Volume
		} else {
			net.SellVolume += p.Volume
		}

		net.PositionsCount++
		net.TotalProfit += p.Profit
	}

	result := make([]NetPosition, 0, len(bySymbol))

	for _, net := range bySymbol {
		net.NetVolume = net.BuyVolume - net.SellVolume
		result = append(result, *net)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })

	return result, nil
}

// HealthCheck проверяет доступность сервера легким запросом
func (s *Session) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:       "ok",
		Host:         s.opts.Host,
		Port:         s.opts.Port,
		BreakerState: s.breaker.State(),
	}

	_, err := execute(ctx, s, "health_check", func(ctx context.Context) (struct{}, error) {
		_, err := s.api.UserGetByGroup(ctx, "*")

		return struct{}{}, err
	})
	if err != nil {
		status.Status = "degraded"
		status.Error = err.Error()
	}

	status.Connected = s.State() == StateConnected
	status.BreakerState = s.breaker.State()

	return status
}

// Breaker открывает доступ к состоянию circuit breaker'а (для health и тестов)
func (s *Session) Breaker() *CircuitBreaker {
	return s.breaker
}

// dayBounds переводит календарные даты в границы UTC дней (секунды epoch):
// начало дня from и конец дня to (23:59:59)
func dayBounds(from, to time.Time) (int64, int64) {
	fromTs := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC).Unix()
	toTs := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC).Unix()

	return fromTs, toTs
}

// utcDatetime форматирует epoch секунды в строку UTC
func utcDatetime(ts int64) string {
	if ts == 0 {
		return ""
	}

	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}

// utcDate форматирует epoch секунды в дату UTC (YYYY-MM-DD)
func utcDate(ts int64) string {
	if ts == 0 {
		return ""
	}

	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// convertDaily переводит отчет моста в доменный вид. Нулевые значения
// отсутствующих полей остаются нулями.
func convertDaily(raw *RawDaily) DailyReport {
	return DailyReport{
		Login:            raw.Login,
		Date:             utcDate(raw.Timestamp),
		Balance:          raw.Balance,
		Credit:           raw.Credit,
		EquityPrevDay:    raw.EquityPrevDay,
		EquityPrevMonth:  raw.EquityPrevMonth,
		BalancePrevDay:   raw.BalancePrevDay,
		BalancePrevMonth: raw.BalancePrevMonth,
		Margin:           raw.Margin,
		MarginFree:       raw.MarginFree,
		MarginLevel:      raw.MarginLevel,
		MarginLeverage:   raw.MarginLeverage,
		FloatingProfit:   raw.Profit,
		Group:            raw.Group,
		Currency:         raw.Currency,
		CurrencyDigits:   raw.CurrencyDigits,
		Timestamp:        raw.Timestamp,
		DatetimePrev:     raw.DatetimePrev,

		Name:    raw.Name,
		Email:   raw.Email,
		Company: raw.Company,

		AgentDaily:        raw.AgentDaily,
		AgentMonthly:      raw.AgentMonthly,
		CommissionDaily:   raw.CommissionDaily,
		CommissionMonthly: raw.CommissionMonthly,

		DailyBalance:              raw.DailyBalance,
		DailyCredit:               raw.DailyCredit,
		DailyCharge:               raw.DailyCharge,
		DailyCorrection:           raw.DailyCorrection,
		DailyBonus:                raw.DailyBonus,
		DailyCommFee:              raw.DailyCommFee,
		DailyCommInstant:          raw.DailyCommInstant,
		DailyCommRound:            raw.DailyCommRound,
		DailyInterest:             raw.DailyInterest,
		DailyDividend:             raw.DailyDividend,
		DailyProfit:               raw.DailyProfit,
		DailyStorage:              raw.DailyStorage,
		DailyAgent:                raw.DailyAgent,
		DailySOCompensation:       raw.DailySOCompensation,
		DailySOCompensationCredit: raw.DailySOCompensationCredit,
		DailyTaxes:                raw.DailyTaxes,

		InterestRate: raw.InterestRate,

		PresentEquity:     raw.ProfitEquity,
		ProfitStorage:     raw.ProfitStorage,
		ProfitAssets:      raw.ProfitAssets,
		ProfitLiabilities: raw.ProfitLiabilities,
	}
}
