package mt5

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mt5_backoffice/internal/metrics"
)

// execute выполняет удалённую операцию с ретраями под защитой circuit breaker'а.
// Перед каждой попыткой проверяется breaker (открыт - мгновенный ErrCircuitOpen
// без похода в сеть) и восстанавливается соединение. Ошибка попытки помечает
// сессию отключенной и пишется в breaker, пауза перед следующей попыткой
// растет экспоненциально: base, base*2, base*4...
// Детерминированные ошибки (ErrAccountNotFound, ErrInvalidOperation)
// возвращаются сразу, повтор им не поможет.
func execute[T any](ctx context.Context, s *Session, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.GatewayRetries.Inc()
		}

		if !s.breaker.CanExecute() {
			metrics.GatewayCalls.WithLabelValues(operation, "circuit_open").Inc()
			metrics.SetBreakerState(s.breaker.State())

			return zero, ErrCircuitOpen
		}

		if err := s.Connect(ctx); err != nil {
			lastErr = err

			s.logger.Warn("⚠️  Reconnect failed",
				slog.String("operation", operation),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))

			if !sleepBackoff(ctx, s.backoffBase, attempt, s.maxRetries) {
				return zero, ctx.Err()
			}

			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		result, err := op(callCtx)
		cancel()

		if err == nil {
			s.breaker.RecordSuccess()
			metrics.GatewayCalls.WithLabelValues(operation, "success").Inc()
			metrics.SetBreakerState(s.breaker.State())

			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			metrics.GatewayCalls.WithLabelValues(operation, "rejected").Inc()

			return zero, err
		}

		s.breaker.RecordFailure()
		s.markDisconnected()
		metrics.GatewayCalls.WithLabelValues(operation, "error").Inc()
		metrics.SetBreakerState(s.breaker.State())

		s.logger.Warn("⚠️  Remote operation failed",
			slog.String("operation", operation),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", s.maxRetries),
			slog.Any("error", err))

		if !sleepBackoff(ctx, s.backoffBase, attempt, s.maxRetries) {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%w: %s after %d attempts: %w",
		ErrRetriesExhausted, operation, s.maxRetries, lastErr)
}

// sleepBackoff ждет base * 2^attempt перед следующей попыткой.
// После последней попытки не ждет. Возвращает false, если контекст отменен.
func sleepBackoff(ctx context.Context, base time.Duration, attempt, maxRetries int) bool {
	if attempt >= maxRetries-1 {
		return true
	}

	delay := base * time.Duration(1<<attempt)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsNotFound сообщает, означает ли ошибка отсутствие аккаунта
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
