package mt5

import "context"

// Права пользователя на сервере MT5 (битовая маска)
const (
	UserRightEnabled   = 0x1
	UserRightPassword  = 0x2
	UserRightConfirmed = 0x10
	UserRightExpert    = 0x40
	UserRightReports   = 0x100

	defaultUserRights = UserRightEnabled | UserRightPassword | UserRightConfirmed |
		UserRightExpert | UserRightReports
)

// Типы паролей для PasswordChange
const (
	PasswordMain     = 0
	PasswordInvestor = 1
)

// ManagerAPI - граница Manager API сервера MT5. Реализация по умолчанию
// (BridgeClient) ходит в менеджер-мост по бинарному протоколу; в тестах
// подставляется фейк. Все методы возвращают *RemoteError для ошибок,
// пришедших от сервера, и обычные ошибки для транспортных сбоев.
type ManagerAPI interface {
	// Login устанавливает авторизованное соединение с менеджер-мостом
	Login(ctx context.Context, host string, port int, login uint64, password string) error
	// Logout закрывает соединение
	Logout() error

	UserAdd(ctx context.Context, user *RawUser, masterPass, investorPass string) (*RawUser, error)
	UserRequest(ctx context.Context, login int64) (*RawUser, error)
	UserUpdate(ctx context.Context, user *RawUser) error
	UserGetByGroup(ctx context.Context, mask string) ([]RawUser, error)
	UserAccountGet(ctx context.Context, login int64) (*RawAccount, error)
	PasswordChange(ctx context.Context, login int64, passType int, newPassword string) error

	// DealerBalance проводит балансовую операцию, возвращает id сделки
	DealerBalance(ctx context.Context, login int64, amount float64, action int, comment string) (int64, error)

	DailyRequestByLogins(ctx context.Context, logins []int64, from, to int64) ([]RawDaily, error)
	DailyRequestLight(ctx context.Context, login int64, from, to int64) ([]RawDaily, error)
	DailyRequestLightByGroup(ctx context.Context, mask string, from, to int64) ([]RawDaily, error)

	DealRequest(ctx context.Context, login int64, from, to int64) ([]RawDeal, error)
	DealRequestByGroup(ctx context.Context, mask string, from, to int64) ([]RawDeal, error)

	PositionGetByLogin(ctx context.Context, login int64) ([]RawPosition, error)
	PositionGetByGroup(ctx context.Context, mask string) ([]RawPosition, error)
}

// RawUser - запись пользователя в формате моста. Отсутствующие в ответе
// поля остаются нулевыми после декодирования, вызывающий код обязан
// с этим считаться.
type RawUser struct {
	Login       int64  `json:"login"`
	Group       string `json:"group"`
	Name        string `json:"name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Leverage    int    `json:"leverage"`
	Rights      uint64 `json:"rights"`
	Comment     string `json:"comment"`
	Company     string `json:"company"`
	Country     string `json:"country"`
	Registration int64 `json:"registration"`
	LastAccess  int64  `json:"last_access"`

	Balance float64 `json:"balance"`
	Credit  float64 `json:"credit"`
}

// RawAccount - торговое состояние аккаунта (маржа, плавающий профит)
type RawAccount struct {
	Login       int64   `json:"login"`
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"margin_free"`
	MarginLevel float64 `json:"margin_level"`
	Profit      float64 `json:"profit"` // Плавающий P&L открытых позиций
	Floating    float64 `json:"floating"`
	Currency    string  `json:"currency"`
}

// RawDaily - дневной отчет в формате моста
type RawDaily struct {
	Login            int64   `json:"login"`
	Timestamp        int64   `json:"datetime"`
	DatetimePrev     int64   `json:"datetime_prev"`
	Balance          float64 `json:"balance"`
	Credit           float64 `json:"credit"`
	EquityPrevDay    float64 `json:"profit_equity_prev_day"`
	EquityPrevMonth  float64 `json:"profit_equity_prev_month"`
	BalancePrevDay   float64 `json:"balance_prev_day"`
	BalancePrevMonth float64 `json:"balance_prev_month"`
	Margin           float64 `json:"margin"`
	MarginFree       float64 `json:"margin_free"`
	MarginLevel      float64 `json:"margin_level"`
	MarginLeverage   int     `json:"margin_leverage"`
	Profit           float64 `json:"profit"`
	Group            string  `json:"group"`
	Currency         string  `json:"currency"`
	CurrencyDigits   int     `json:"currency_digits"`

	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`

	AgentDaily        float64 `json:"agent_daily"`
	AgentMonthly      float64 `json:"agent_monthly"`
	CommissionDaily   float64 `json:"commission_daily"`
	CommissionMonthly float64 `json:"commission_monthly"`

	DailyBalance              float64 `json:"daily_balance"`
	DailyCredit               float64 `json:"daily_credit"`
	DailyCharge               float64 `json:"daily_charge"`
	DailyCorrection           float64 `json:"daily_correction"`
	DailyBonus                float64 `json:"daily_bonus"`
	DailyCommFee              float64 `json:"daily_comm_fee"`
	DailyCommInstant          float64 `json:"daily_comm_instant"`
	DailyCommRound            float64 `json:"daily_comm_round"`
	DailyInterest             float64 `json:"daily_interest"`
	DailyDividend             float64 `json:"daily_dividend"`
	DailyProfit               float64 `json:"daily_profit"`
	DailyStorage              float64 `json:"daily_storage"`
	DailyAgent                float64 `json:"daily_agent"`
	DailySOCompensation       float64 `json:"daily_so_compensation"`
	DailySOCompensationCredit float64 `json:"daily_so_compensation_credit"`
	DailyTaxes                float64 `json:"daily_taxes"`

	InterestRate      float64 `json:"interest_rate"`
	ProfitEquity      float64 `json:"profit_equity"`
	ProfitStorage     float64 `json:"profit_storage"`
	ProfitAssets      float64 `json:"profit_assets"`
	ProfitLiabilities float64 `json:"profit_liabilities"`
}

// RawDeal - сделка в формате моста
type RawDeal struct {
	Deal       int64   `json:"deal"`
	Login      int64   `json:"login"`
	Order      int64   `json:"order"`
	PositionID int64   `json:"position_id"`
	Action     int     `json:"action"`
	Entry      int     `json:"entry"`
	Symbol     string  `json:"symbol"`
	Volume     int64   `json:"volume"` // В единицах сервера, 10000 = 1 лот
	Price      float64 `json:"price"`
	Profit     float64 `json:"profit"`
	Commission float64 `json:"commission"`
	Storage    float64 `json:"storage"` // Своп
	Balance    float64 `json:"balance"` // Баланс после проведения сделки
	Comment    string  `json:"comment"`
	Time       int64   `json:"time"`
	TimeCreate int64   `json:"time_create"`
}

// RawPosition - открытая позиция в формате моста
type RawPosition struct {
	Position     int64   `json:"position"`
	Login        int64   `json:"login"`
	Symbol       string  `json:"symbol"`
	Action       int     `json:"action"`
	Volume       int64   `json:"volume"` // 10000 = 1 лот
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	Profit       float64 `json:"profit"`
	Storage      float64 `json:"storage"`
	Commission   float64 `json:"commission"`
	TimeCreate   int64   `json:"time_create"`
}

// Объем сервера в лоты
func lots(volume int64) float64 {
	return float64(volume) / 10000.0
}
