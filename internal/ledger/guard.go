// Package ledger - журнал балансовых операций с защитой от двойного проведения
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mt5_backoffice/internal/metrics"
	"mt5_backoffice/internal/models"
	"mt5_backoffice/internal/mt5"
)

var (
	// ErrUnknownAccount - логин не заведен в локальной базе
	ErrUnknownAccount = errors.New("ledger: account not registered")

	// ErrInvalidRequest - некорректный тип операции или сумма
	ErrInvalidRequest = errors.New("ledger: invalid operation request")
)

// Store - нужные журналу операции хранилища
type Store interface {
	GetAccountByLogin(login int64) (*models.MT5Account, error)
	GetBalanceOperationByKey(key string) (*models.BalanceOperation, error)
	CreateBalanceOperation(op *models.BalanceOperation) (*models.BalanceOperation, error)
}

// Gateway - проведение операции на сервере MT5
type Gateway interface {
	ApplyBalanceOperation(ctx context.Context, login int64, opType string, amount float64, comment string) (int64, error)
}

// Guard проводит балансовые операции: проверяет аккаунт, отсекает повторы
// по idempotency key, идет на сервер и только после успеха пишет запись
// в журнал. Ключ уникален на уровне базы, так что даже гонка двух
// одинаковых запросов не породит две записи.
type Guard struct {
	store   Store
	gateway Gateway
	logger  *slog.Logger
}

func NewGuard(store Store, gateway Gateway, logger *slog.Logger) *Guard {
	return &Guard{store: store, gateway: gateway, logger: logger}
}

// Request - запрос на проведение операции
type Request struct {
	Login          int64
	Type           string
	Amount         float64
	Comment        string
	IdempotencyKey string
	RequestedBy    int64
}

// Apply проводит операцию. Повторный запрос с тем же ключом возвращает
// существующую запись без похода на сервер.
func (g *Guard) Apply(ctx context.Context, req Request) (*models.BalanceOperation, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	switch req.Type {
	case mt5.OpDeposit, mt5.OpWithdrawal, mt5.OpCreditIn, mt5.OpCreditOut:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type)
	}

	if req.IdempotencyKey != "" {
		existing, err := g.store.GetBalanceOperationByKey(req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}

		if existing != nil {
			g.logger.Info("⚠️  Duplicate balance operation suppressed",
				slog.String("key", req.IdempotencyKey),
				slog.Int64("login", req.Login))

			metrics.BalanceOperations.WithLabelValues(req.Type, "duplicate").Inc()

			return existing, nil
		}
	}

	account, err := g.store.GetAccountByLogin(req.Login)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if account == nil {
		return nil, fmt.Errorf("%w: login %d", ErrUnknownAccount, req.Login)
	}

	dealID, err := g.gateway.ApplyBalanceOperation(ctx, req.Login, req.Type, req.Amount, req.Comment)
	if err != nil {
		// Запись не создается: неуспешная операция не должна выглядеть
		// проведенной при повторе с тем же ключом
		metrics.BalanceOperations.WithLabelValues(req.Type, "failed").Inc()

		return nil, err
	}

	// Проведение одношаговое: дилер, запросивший операцию, ее и утверждает
	op, err := g.store.CreateBalanceOperation(&models.BalanceOperation{
		AccountID:      account.ID,
		Login:          req.Login,
		Type:           req.Type,
		Amount:         req.Amount,
		Comment:        req.Comment,
		Status:         models.OperationCompleted,
		IdempotencyKey: req.IdempotencyKey,
		DealID:         dealID,
		RequestedBy:    req.RequestedBy,
		ApprovedBy:     req.RequestedBy,
	})
	if err != nil {
		// Операция на сервере уже прошла, потеря записи - повод для алерта
		g.logger.Error("❌ Balance operation applied but journal write failed",
			slog.Int64("login", req.Login),
			slog.Int64("deal_id", dealID),
			slog.Any("error", err))

		return nil, fmt.Errorf("journal balance operation (deal %d): %w", dealID, err)
	}

	metrics.BalanceOperations.WithLabelValues(req.Type, "completed").Inc()

	g.logger.Info("✅ Balance operation journaled",
		slog.Int64("login", req.Login),
		slog.String("type", req.Type),
		slog.Float64("amount", req.Amount),
		slog.Int64("deal_id", dealID))

	return op, nil
}
