package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"mt5_backoffice/internal/pnl"
)

// HandleGetDailyReports возвращает дневные отчеты сервера за период
func (h *Handler) HandleGetDailyReports(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	login, _ := strconv.ParseInt(query.Get("login"), 10, 64)

	reports, err := h.gateway.GetDailyReports(r.Context(), login, from, to, query.Get("group"))
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, reports)
}

// HandleGetDealHistory возвращает балансовые транзакции за период
func (h *Handler) HandleGetDealHistory(w http.ResponseWriter, r *http.Request) {
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

	h.respondJSON(w, http.StatusOK, deals)
}

// HandleGetTradeDeals возвращает рыночные сделки за период
func (h *Handler) HandleGetTradeDeals(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	login, _ := strconv.ParseInt(r.URL.Query().Get("login"), 10, 64)

	deals, err := h.gateway.GetTradeDeals(r.Context(), login, from, to)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, deals)
}

// HandleCalculatePnL считает P&L на лету: login задан - один аккаунт за день
// или период, иначе все аккаунты за день плюс агрегат организации
func (h *Handler) HandleCalculatePnL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	date := time.Now().UTC().AddDate(0, 0, -1)

	if raw := query.Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}

		date = parsed
	}

	login, _ := strconv.ParseInt(query.Get("login"), 10, 64)

	if login != 0 {
		if rawFrom := query.Get("from"); rawFrom != "" {
			from, to, ok := h.dateRange(w, r)
			if !ok {
				return
			}

			results, err := h.engine.CalculateRange(r.Context(), from, to, login)
			if err != nil {
				h.respondGatewayError(w, err)
				return
			}

			h.respondJSON(w, http.StatusOK, results)

			return
		}

		result, err := h.engine.CalculateDaily(r.Context(), date, login)
		if err != nil {
			if errors.Is(err, pnl.ErrNoReport) {
				h.respondError(w, http.StatusNotFound, err.Error())
				return
			}

			h.respondGatewayError(w, err)

			return
		}

		h.respondJSON(w, http.StatusOK, result)

		return
	}

	perAccount, err := h.engine.CalculateAllAccounts(r.Context(), date)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"accounts":    perAccount,
		"institution": pnl.AggregateInstitution(perAccount, date),
	})
}

// HandleCalculatePnLRange считает P&L одного аккаунта за период
func (h *Handler) HandleCalculatePnLRange(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	login, _ := strconv.ParseInt(r.URL.Query().Get("login"), 10, 64)
	if login <= 0 {
		h.respondError(w, http.StatusBadRequest, "Login is required")
		return
	}

	results, err := h.engine.CalculateRange(r.Context(), from, to, login)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, results)
}

// HandleGetStoredPnL возвращает сохраненные расчеты P&L за период.
// login=0 - агрегат организации, login=-1 - все записи.
func (h *Handler) HandleGetStoredPnL(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	login := int64(-1)
	if raw := r.URL.Query().Get("login"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid login")
			return
		}

		login = parsed
	}

	records, err := h.storage.ListDailyPnL(from.Format("2006-01-02"), to.Format("2006-01-02"), login)
	if err != nil {
		h.logger.Error("Failed to list stored pnl", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondJSON(w, http.StatusOK, records)
}

// HandleGetOpenPositions возвращает открытые позиции
func (h *Handler) HandleGetOpenPositions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	login, _ := strconv.ParseInt(query.Get("login"), 10, 64)

	positions, err := h.gateway.GetOpenPositions(r.Context(), login, query.Get("symbol"))
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, positions)
}

// HandleGetNetPositions возвращает нетто-экспозицию по символам
func (h *Handler) HandleGetNetPositions(w http.ResponseWriter, r *http.Request) {
	nets, err := h.gateway.GetNetPositions(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, nets)
}

// HandleGetPositionHistory возвращает закрытые позиции за период
func (h *Handler) HandleGetPositionHistory(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}

	login, _ := strconv.ParseInt(r.URL.Query().Get("login"), 10, 64)

	closed, err := h.gateway.GetPositionHistory(r.Context(), login, from, to)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, closed)
}

// HandleGetRealtime возвращает одноразовый снимок состояния аккаунтов
func (h *Handler) HandleGetRealtime(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	login, _ := strconv.ParseInt(query.Get("login"), 10, 64)

	snapshots, err := h.gateway.GetRealtimeSnapshot(r.Context(), login, query.Get("group"))
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, snapshots)
}
