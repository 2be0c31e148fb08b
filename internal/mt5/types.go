package mt5

// Коды действий сделок на сервере MT5
const (
	DealActionBuy        = 0
	DealActionSell       = 1
	DealActionBalance    = 2
	DealActionCredit     = 3
	DealActionCharge     = 4
	DealActionCorrection = 6
)

// Коды entry для сделок (открытие/закрытие позиции)
const (
	DealEntryIn    = 0
	DealEntryOut   = 1
	DealEntryInOut = 2
)

// Теги классификации сделок по префиксу комментария
const (
	TagDeposit    = "Deposit"
	TagWithdrawal = "Withdrawal"
	TagRebate     = "Rebate"
	TagPromotion  = "Promotion"
)

// Типы балансовых операций
const (
	OpDeposit    = "deposit"
	OpWithdrawal = "withdrawal"
	OpCreditIn   = "credit_in"
	OpCreditOut  = "credit_out"
)

// AccountSnapshot - состояние торгового аккаунта
type AccountSnapshot struct {
	Login       int64   `json:"login"`
	Group       string  `json:"group"`
	Leverage    int     `json:"leverage"`
	Currency    string  `json:"currency"`
	Balance     float64 `json:"balance"`
	Credit      float64 `json:"credit"`
	Equity      float64 `json:"equity"`
	MarginFree  float64 `json:"margin_free"`
	MarginLevel float64 `json:"margin_level"`
	Status      string  `json:"status"`
	Name        string  `json:"name"`
}

// DailyReport - дневной отчет сервера по аккаунту на конкретную дату.
// Для прошедших дат отчет неизменяем, это read-only проекция состояния сервера.
type DailyReport struct {
	Login            int64   `json:"login"`
	Date             string  `json:"date"` // YYYY-MM-DD (UTC)
	Balance          float64 `json:"balance"`
	Credit           float64 `json:"credit"`
	EquityPrevDay    float64 `json:"equity_prev_day"`
	EquityPrevMonth  float64 `json:"equity_prev_month"`
	BalancePrevDay   float64 `json:"balance_prev_day"`
	BalancePrevMonth float64 `json:"balance_prev_month"`
	Margin           float64 `json:"margin"`
	MarginFree       float64 `json:"margin_free"`
	MarginLevel      float64 `json:"margin_level"`
	MarginLeverage   int     `json:"margin_leverage"`
	FloatingProfit   float64 `json:"floating_profit"`
	Group            string  `json:"group"`
	Currency         string  `json:"currency"`
	CurrencyDigits   int     `json:"currency_digits"`
	Timestamp        int64   `json:"timestamp"`
	DatetimePrev     int64   `json:"datetime_prev"`

	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`

	// Агентские и торговые комиссии
	AgentDaily        float64 `json:"agent_daily"`
	AgentMonthly      float64 `json:"agent_monthly"`
	CommissionDaily   float64 `json:"commission_daily"`
	CommissionMonthly float64 `json:"commission_monthly"`

	// Разбивка операций за день
	DailyBalance               float64 `json:"daily_balance"`
	DailyCredit                float64 `json:"daily_credit"`
	DailyCharge                float64 `json:"daily_charge"`
	DailyCorrection            float64 `json:"daily_correction"`
	DailyBonus                 float64 `json:"daily_bonus"`
	DailyCommFee               float64 `json:"daily_comm_fee"`
	DailyCommInstant           float64 `json:"daily_comm_instant"`
	DailyCommRound             float64 `json:"daily_comm_round"`
	DailyInterest              float64 `json:"daily_interest"`
	DailyDividend              float64 `json:"daily_dividend"`
	DailyProfit                float64 `json:"daily_profit"`
	DailyStorage               float64 `json:"daily_storage"`
	DailyAgent                 float64 `json:"daily_agent"`
	DailySOCompensation        float64 `json:"daily_so_compensation"`
	DailySOCompensationCredit  float64 `json:"daily_so_compensation_credit"`
	DailyTaxes                 float64 `json:"daily_taxes"`

	InterestRate float64 `json:"interest_rate"`

	PresentEquity     float64 `json:"present_equity"`
	ProfitStorage     float64 `json:"profit_storage"`
	ProfitAssets      float64 `json:"profit_assets"`
	ProfitLiabilities float64 `json:"profit_liabilities"`
}

// DealRecord - балансовая транзакция из истории сделок
type DealRecord struct {
	DealID       int64   `json:"deal_id"`
	Login        int64   `json:"login"`
	Action       string  `json:"action"` // DEPOSIT, WITHDRAWAL, CREDIT, CREDIT_OUT, CHARGE, CORRECTION
	Amount       float64 `json:"amount"`
	BalanceAfter float64 `json:"balance_after"`
	Comment      string  `json:"comment"`
	Timestamp    int64   `json:"timestamp"`
	Datetime     string  `json:"datetime"`
	Tag          string  `json:"tag"` // Deposit | Withdrawal | Rebate | Promotion | ""
}

// TradeDeal - рыночная сделка (buy/sell) с комиссией и свопом
type TradeDeal struct {
	DealID     int64   `json:"deal_id"`
	Login      int64   `json:"login"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"` // BUY | SELL
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	Profit     float64 `json:"profit"`
	Commission float64 `json:"commission"`
	Swap       float64 `json:"swap"`
	Timestamp  int64   `json:"timestamp"`
	Datetime   string  `json:"datetime"`
}

// RealtimeEquity - текущее состояние аккаунта для realtime мониторинга
type RealtimeEquity struct {
	Login          int64   `json:"login"`
	Name           string  `json:"name"`
	Balance        float64 `json:"balance"`
	Credit         float64 `json:"credit"`
	Equity         float64 `json:"equity"`
	NetEquity      float64 `json:"net_equity"` // Equity - Credit
	Margin         float64 `json:"margin"`
	MarginFree     float64 `json:"margin_free"`
	MarginLevel    float64 `json:"margin_level"`
	FloatingProfit float64 `json:"floating_profit"`
	Group          string  `json:"group"`
	Currency       string  `json:"currency"`
	Timestamp      int64   `json:"timestamp"`
}

// Position - открытая позиция
type Position struct {
	Ticket       int64   `json:"ticket"`
	Login        int64   `json:"login"`
	Symbol       string  `json:"symbol"`
	Volume       float64 `json:"volume"` // В лотах
	Action       int     `json:"action"` // 0=buy, 1=sell
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	Profit       float64 `json:"profit"`
	Swap         float64 `json:"swap"`
	Commission   float64 `json:"commission"`
	TimeCreate   int64   `json:"time_create"`
}

// ClosedPosition - закрытая позиция из истории
type ClosedPosition struct {
	PositionID    int64   `json:"position_id"`
	DealID        int64   `json:"deal_id"`
	OrderID       int64   `json:"order_id"`
	Login         int64   `json:"login"`
	Symbol        string  `json:"symbol"`
	Action        string  `json:"action"` // BUY | SELL
	Volume        float64 `json:"volume"`
	Price         float64 `json:"price"`
	Profit        float64 `json:"profit"`
	Commission    float64 `json:"commission"`
	Swap          float64 `json:"swap"`
	Timestamp     int64   `json:"timestamp"`
	Datetime      string  `json:"datetime"`
	TimeCreate    int64   `json:"time_create"`
	TimeCreateStr string  `json:"time_create_str"`
}

// NetPosition - агрегированная нетто-позиция по символу
type NetPosition struct {
	Symbol         string  `json:"symbol"`
	BuyVolume      float64 `json:"buy_volume"`
	SellVolume     float64 `json:"sell_volume"`
	NetVolume      float64 `json:"net_volume"`
	PositionsCount int     `json:"positions_count"`
	TotalProfit    float64 `json:"total_profit"`
}

// DailyPnL - расчет дневного P&L по аккаунту.
// Login == 0 означает агрегат по всей организации.
type DailyPnL struct {
	Login              int64   `json:"login"`
	Date               string  `json:"date"` // YYYY-MM-DD (UTC)
	PresentEquity      float64 `json:"present_equity"`
	EquityPrevDay      float64 `json:"equity_prev_day"`
	Deposit            float64 `json:"deposit"`
	Withdrawal         float64 `json:"withdrawal"`
	NetDeposit         float64 `json:"net_deposit"`
	Credit             float64 `json:"credit"`
	Promotion          float64 `json:"promotion"`
	NetCreditPromotion float64 `json:"net_credit_promotion"`
	TotalIB            float64 `json:"total_ib"`
	Rebate             float64 `json:"rebate"`
	EquityPnL          float64 `json:"equity_pnl"`
	NetPnL             float64 `json:"net_pnl"`
	Group              string  `json:"group"`
	Currency           string  `json:"currency"`
}

// HealthStatus - состояние подключения к серверу MT5
type HealthStatus struct {
	Status       string `json:"status"`
	Connected    bool   `json:"connected"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	BreakerState string `json:"circuit_breaker"`
	Error        string `json:"error,omitempty"`
}
