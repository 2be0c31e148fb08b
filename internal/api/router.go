package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"mt5_backoffice/internal/metrics"
	"mt5_backoffice/internal/middleware"
	"mt5_backoffice/internal/models"
)

// SetupRouter настраивает роутинг для API
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// Применяем CORS middleware ко всем маршрутам
	r.Use(middleware.CORS)

	// Публичные маршруты (не требуют аутентификации)
	r.HandleFunc("/api/auth/login", h.HandleLogin).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Защищенные маршруты (требуют аутентификации)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(h.authService))

	// Регистрация пользователей - только администратор
	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/auth/register", h.HandleRegister).Methods("POST")
	admin.HandleFunc("/logs", h.HandleGetLogs).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts", h.HandleGetAccounts).Methods("GET")
	api.HandleFunc("/accounts/{login:[0-9]+}/info", h.HandleGetAccountInfo).Methods("GET")
	api.HandleFunc("/groups", h.HandleGetGroups).Methods("GET")

	// Customers
	api.HandleFunc("/customers", h.HandleGetCustomers).Methods("GET")

	// Изменяющие операции - дилер и выше
	dealer := api.NewRoute().Subrouter()
	dealer.Use(middleware.RequireRole(models.RoleDealer))
	dealer.HandleFunc("/accounts", h.HandleCreateAccount).Methods("POST")
	dealer.HandleFunc("/accounts/{login:[0-9]+}/group", h.HandleChangeGroup).Methods("PUT")
	dealer.HandleFunc("/accounts/{login:[0-9]+}/password", h.HandleChangePassword).Methods("PUT")
	dealer.HandleFunc("/accounts/{login:[0-9]+}/reset-password", h.HandleResetPassword).Methods("POST")
	dealer.HandleFunc("/customers", h.HandleCreateCustomer).Methods("POST")
	dealer.HandleFunc("/balance", h.HandleCreateBalanceOperation).Methods("POST")

	// Balance journal
	api.HandleFunc("/balance", h.HandleListBalanceOperations).Methods("GET")
	api.HandleFunc("/balance/net-deposit", h.HandleNetDepositSummary).Methods("GET")

	// Reports
	api.HandleFunc("/reports/daily", h.HandleGetDailyReports).Methods("GET")
	api.HandleFunc("/reports/deals", h.HandleGetDealHistory).Methods("GET")
	api.HandleFunc("/reports/trades", h.HandleGetTradeDeals).Methods("GET")
	api.HandleFunc("/reports/pnl", h.HandleCalculatePnL).Methods("GET")
	api.HandleFunc("/reports/pnl/range", h.HandleCalculatePnLRange).Methods("GET")
	api.HandleFunc("/reports/pnl/stored", h.HandleGetStoredPnL).Methods("GET")

	// Positions
	api.HandleFunc("/positions", h.HandleGetOpenPositions).Methods("GET")
	api.HandleFunc("/positions/net", h.HandleGetNetPositions).Methods("GET")
	api.HandleFunc("/positions/history", h.HandleGetPositionHistory).Methods("GET")

	// Realtime
	api.HandleFunc("/realtime", h.HandleGetRealtime).Methods("GET")
	api.HandleFunc("/ws/account/{login:[0-9]+}", h.HandleAccountWS).Methods("GET")
	api.HandleFunc("/ws/dashboard", h.HandleDashboardWS).Methods("GET")

	return r
}

// HandleHealth возвращает состояние сервиса и подключения к MT5
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.gateway.HealthCheck(r.Context())

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}

	h.respondJSON(w, code, status)
}
