package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mt5_backoffice/internal/middleware"
	"mt5_backoffice/internal/models"
	"mt5_backoffice/internal/mt5"
)

// HandleGetAccounts возвращает локально заведенные торговые аккаунты
func (h *Handler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.storage.GetAccounts()
	if err != nil {
		h.logger.Error("Failed to list accounts", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondJSON(w, http.StatusOK, accounts)
}

// HandleCreateAccount создает аккаунт на сервере MT5 и регистрирует его локально
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Group == "" || req.MasterPassword == "" {
		h.respondError(w, http.StatusBadRequest, "Group and master password are required")
		return
	}

	if req.Leverage <= 0 {
		req.Leverage = 100
	}

	if req.InvestorPassword == "" {
		req.InvestorPassword = req.MasterPassword
	}

	snapshot, err := h.gateway.CreateAccount(r.Context(), mt5.NewAccount{
		Group:            req.Group,
		Leverage:         req.Leverage,
		Name:             req.Name,
		Email:            req.Email,
		MasterPassword:   req.MasterPassword,
		InvestorPassword: req.InvestorPassword,
	})
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	account, err := h.storage.AddAccount(&models.MT5Account{
		CustomerID:  req.CustomerID,
		Login:       snapshot.Login,
		Group:       snapshot.Group,
		Leverage:    snapshot.Leverage,
		Currency:    currency,
		Status:      models.AccountActive,
		DisplayName: req.Name,
	})
	if err != nil {
		// Аккаунт на сервере уже создан, локальную запись можно
		// досоздать вручную по логину из лога
		h.logger.Error("❌ MT5 account created but local registration failed",
			"login", snapshot.Login, "error", err)
		h.respondError(w, http.StatusInternalServerError, "Account created on server, local registration failed")

		return
	}

	h.audit(r, "account.create", "MT5 account created", snapshot.Login)
	h.respondSuccess(w, "Account created", account)
}

// HandleGetAccountInfo возвращает состояние аккаунта с сервера MT5
func (h *Handler) HandleGetAccountInfo(w http.ResponseWriter, r *http.Request) {
	login, ok := h.loginVar(w, r)
	if !ok {
		return
	}

	info, err := h.gateway.GetAccountInfo(r.Context(), login)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, info)
}

// HandleChangeGroup переводит аккаунт в другую группу
func (h *Handler) HandleChangeGroup(w http.ResponseWriter, r *http.Request) {
	login, ok := h.loginVar(w, r)
	if !ok {
		return
	}

	var req models.ChangeGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" {
		h.respondError(w, http.StatusBadRequest, "Group is required")
		return
	}

	if err := h.gateway.ChangeGroup(r.Context(), login, req.Group); err != nil {
		h.respondGatewayError(w, err)
		return
	}

	if err := h.storage.UpdateAccountGroup(login, req.Group); err != nil {
		h.logger.Error("Failed to update local account group", "login", login, "error", err)
	}

	h.audit(r, "account.change_group", "Group changed to "+req.Group, login)
	h.respondSuccess(w, "Group changed", nil)
}

// HandleChangePassword меняет основной или инвесторский пароль аккаунта
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	login, ok := h.loginVar(w, r)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Password) < 8 {
		h.respondError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	var err error
	if req.Investor {
		err = h.gateway.ChangeInvestorPassword(r.Context(), login, req.Password)
	} else {
		err = h.gateway.ChangeMainPassword(r.Context(), login, req.Password)
	}

	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.audit(r, "account.change_password", "Password changed", login)
	h.respondSuccess(w, "Password changed", nil)
}

// HandleResetPassword сбрасывает основной пароль аккаунта
func (h *Handler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	login, ok := h.loginVar(w, r)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Password) < 8 {
		h.respondError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	if err := h.gateway.ResetPassword(r.Context(), login, req.Password); err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.audit(r, "account.reset_password", "Password reset", login)
	h.respondSuccess(w, "Password reset", nil)
}

// HandleGetGroups возвращает список групп сервера
func (h *Handler) HandleGetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.gateway.GetGroups(r.Context())
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, groups)
}

// HandleGetCustomers возвращает клиентов
func (h *Handler) HandleGetCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.storage.GetCustomers()
	if err != nil {
		h.logger.Error("Failed to list customers", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondJSON(w, http.StatusOK, customers)
}

// HandleCreateCustomer заводит нового клиента
func (h *Handler) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	customer, err := h.storage.CreateCustomer(req.Name, req.Email, req.Phone, req.AgentName)
	if err != nil {
		h.logger.Error("Failed to create customer", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondSuccess(w, "Customer created", customer)
}

// HandleGetLogs возвращает журнал действий
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.storage.GetLogs(limit)
	if err != nil {
		h.logger.Error("Failed to list logs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondJSON(w, http.StatusOK, logs)
}

// loginVar достает логин из пути запроса
func (h *Handler) loginVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	login, err := strconv.ParseInt(mux.Vars(r)["login"], 10, 64)
	if err != nil || login <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid login")
		return 0, false
	}

	return login, true
}

// audit пишет действие пользователя в журнал
func (h *Handler) audit(r *http.Request, action, message string, login int64) {
	userID, _ := middleware.GetUserID(r.Context())

	details := ""
	if login != 0 {
		details = "login=" + strconv.FormatInt(login, 10)
	}

	if err := h.storage.AddLog(userID, "info", action, message, details); err != nil {
		h.logger.Warn("Failed to write audit log", "action", action, "error", err)
	}
}
