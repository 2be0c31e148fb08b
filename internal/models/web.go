package models

// Запросы и ответы HTTP API

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type CreateCustomerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	AgentName string `json:"agent_name"`
}

type CreateAccountRequest struct {
	CustomerID       int64  `json:"customer_id"`
	Group            string `json:"group"`
	Leverage         int    `json:"leverage"`
	Currency         string `json:"currency"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	MasterPassword   string `json:"master_password"`
	InvestorPassword string `json:"investor_password"`
}

type BalanceOperationRequest struct {
	Login          int64   `json:"login"`
	Type           string  `json:"type"` // deposit | withdrawal | credit_in | credit_out
	Amount         float64 `json:"amount"`
	Comment        string  `json:"comment"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type ChangeGroupRequest struct {
	Group string `json:"group"`
}

type ChangePasswordRequest struct {
	Password string `json:"password"`
	Investor bool   `json:"investor"`
}

// NetDepositSummary - сводка вводов/выводов за период
type NetDepositSummary struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Login      int64   `json:"login,omitempty"`
	Deposit    float64 `json:"deposit"`
	Withdrawal float64 `json:"withdrawal"`
	NetDeposit float64 `json:"net_deposit"`
	Count      int     `json:"count"`
}
