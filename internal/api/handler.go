// Package api - HTTP и WebSocket интерфейс back-office
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mt5_backoffice/internal/auth"
	"mt5_backoffice/internal/ledger"
	"mt5_backoffice/internal/mt5"
	"mt5_backoffice/internal/pnl"
	"mt5_backoffice/internal/storage"
	"mt5_backoffice/internal/stream"
)

// Handler обрабатывает API запросы
type Handler struct {
	storage     *storage.Storage
	authService *auth.Service
	gateway     *mt5.Session
	engine      *pnl.Engine
	guard       *ledger.Guard
	streamer    *stream.Streamer
	logger      *slog.Logger
}

func New(
	storage *storage.Storage,
	authService *auth.Service,
	gateway *mt5.Session,
	engine *pnl.Engine,
	guard *ledger.Guard,
	streamer *stream.Streamer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		storage:     storage,
		authService: authService,
		gateway:     gateway,
		engine:      engine,
		guard:       guard,
		streamer:    streamer,
		logger:      logger,
	}
}

// Helper функции для JSON ответов

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handler) respondSuccess(w http.ResponseWriter, message string, data any) {
	h.respondJSON(w, http.StatusOK, SuccessResponse{
		Message: message,
		Data:    data,
	})
}

// respondGatewayError переводит ошибки шлюза в HTTP статусы
func (h *Handler) respondGatewayError(w http.ResponseWriter, err error) {
	switch {
	case mt5.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, "Account not found on MT5 server")
	case errors.Is(err, mt5.ErrInvalidOperation):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mt5.ErrCircuitOpen):
		h.respondError(w, http.StatusServiceUnavailable, "MT5 server temporarily unavailable")
	default:
		h.logger.Error("Gateway operation failed", "error", err)
		h.respondError(w, http.StatusBadGateway, "MT5 server error")
	}
}
