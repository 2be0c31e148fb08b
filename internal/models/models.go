// Package models содержит доменные модели back-office
package models

import "time"

// Роли пользователей back-office
const (
	RoleAdmin   = "admin"
	RoleDealer  = "dealer"
	RoleSupport = "support"
	RoleViewer  = "viewer"
)

// Статусы балансовых операций. Проведение одношаговое: запись появляется
// в журнале уже проведенной, неуспешные операции не журналируются
const (
	OperationPending   = "pending"
	OperationCompleted = "completed"
)

// Статусы торговых аккаунтов
const (
	AccountActive   = "active"
	AccountDisabled = "disabled"
	AccountArchived = "archived"
)

// User - пользователь back-office (не торговый аккаунт)
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     string    `json:"full_name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Customer - клиент, на которого заведены торговые аккаунты
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	AgentName string    `json:"agent_name"`
	CreatedAt time.Time `json:"created_at"`
}

// MT5Account - локальная запись о торговом аккаунте на сервере MT5
type MT5Account struct {
	ID          int64     `json:"id"`
	CustomerID  int64     `json:"customer_id"`
	Login       int64     `json:"login"`
	Group       string    `json:"group"`
	Leverage    int       `json:"leverage"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// BalanceOperation - журнальная запись балансовой операции.
// IdempotencyKey защищает от двойного проведения при ретраях клиента.
type BalanceOperation struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	Login          int64     `json:"login"`
	Type           string    `json:"type"` // deposit | withdrawal | credit_in | credit_out
	Amount         float64   `json:"amount"`
	Comment        string    `json:"comment"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	DealID         int64     `json:"deal_id,omitempty"`
	RequestedBy    int64     `json:"requested_by"`
	ApprovedBy     int64     `json:"approved_by,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DailyPnLRecord - сохраненный расчет дневного P&L.
// Login == 0 - агрегат по организации. Пара (day, login) уникальна,
// повторный прогон за тот же день перезаписывает запись.
type DailyPnLRecord struct {
	ID                 int64     `json:"id"`
	Day                string    `json:"day"` // YYYY-MM-DD (UTC)
	Login              int64     `json:"login"`
	PresentEquity      float64   `json:"present_equity"`
	EquityPrevDay      float64   `json:"equity_prev_day"`
	Deposit            float64   `json:"deposit"`
	Withdrawal         float64   `json:"withdrawal"`
	NetDeposit         float64   `json:"net_deposit"`
	Credit             float64   `json:"credit"`
	Promotion          float64   `json:"promotion"`
	NetCreditPromotion float64   `json:"net_credit_promotion"`
	TotalIB            float64   `json:"total_ib"`
	Rebate             float64   `json:"rebate"`
	EquityPnL          float64   `json:"equity_pnl"`
	NetPnL             float64   `json:"net_pnl"`
	Group              string    `json:"group"`
	Currency           string    `json:"currency"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ActivityLog - запись аудита действий пользователей
type ActivityLog struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Level     string    `json:"level"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
