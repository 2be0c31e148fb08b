package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mt5_backoffice/internal/ledger"
	"mt5_backoffice/internal/middleware"
	"mt5_backoffice/internal/models"
	"mt5_backoffice/internal/mt5"
)

// HandleCreateBalanceOperation проводит балансовую операцию через журнал.
// Idempotency key берется из тела запроса или заголовка Idempotency-Key.
func (h *Handler) HandleCreateBalanceOperation(w http.ResponseWriter, r *http.Request) {
	var req models.BalanceOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	userID, _ := middleware.GetUserID(r.Context())

	op, err := h.guard.Apply(r.Context(), ledger.Request{
		Login:          req.Login,
		Type:           req.Type,
		Amount:         req.Amount,
		Comment:        req.Comment,
		IdempotencyKey: req.IdempotencyKey,
		RequestedBy:    userID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidRequest):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrUnknownAccount):
			h.respondError(w, http.StatusNotFound, "Account not registered")
		default:
			h.respondGatewayError(w, err)
		}

		return
	}

	h.audit(r, "balance."+req.Type, "Balance operation", req.Login)
	h.respondSuccess(w, "Operation completed", op)
}

// HandleListBalanceOperations возвращает журнал балансовых операций
func (h *Handler) HandleListBalanceOperations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	login, _ := strconv.ParseInt(query.Get("login"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))

	ops, err := h.storage.ListBalanceOperations(login, query.Get("status"), limit)
	if err != nil {
		h.logger.Error("Failed to list balance operations", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondJSON(w, http.StatusOK, ops)
}

// HandleNetDepositSummary считает сводку вводов/выводов за период
// по балансовым транзакциям сервера
func (h *Handler) HandleNetDepositSummary(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	login, _ := strconv.ParseInt(r.URL.Query().Get("login"), 10, 64)

	deals, err := h.gateway.GetDealHistory(r.Context(), login, from, to)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	summary := models.NetDepositSummary{
		From:  from.Format("2006-01-02"),
		To:    to.Format("2006-01-02"),
		Login: login,
	}

	for i := range deals {
		d := &deals[i]

		switch d.Tag {
		case mt5.TagDeposit:
			summary.Deposit += d.Amount
			summary.NetDeposit += d.Amount
			summary.Count++
		case mt5.TagWithdrawal:
			summary.Withdrawal += -d.Amount
			summary.NetDeposit += d.Amount
			summary.Count++
		}
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// dateRange читает параметры from/to (YYYY-MM-DD); to по умолчанию - сегодня,
// from - неделя назад. Даты всегда трактуются как UTC.
func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	query := r.URL.Query()

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -7)
	to := now

	if raw := query.Get("from"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}

		from = parsed
	}

	if raw := query.Get("to"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}

		to = parsed
	}

	if to.Before(from) {
		h.respondError(w, http.StatusBadRequest, "to must not be before from")
		return time.Time{}, time.Time{}, false
	}

	return from, to, true
}
