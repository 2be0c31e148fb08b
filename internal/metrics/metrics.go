// Package metrics содержит Prometheus метрики приложения
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayCalls считает удалённые вызовы к серверу MT5 по операциям
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mt5_gateway_calls_total",
		Help: "Remote MT5 calls by operation and status",
	}, []string{"operation", "status"})

	// GatewayRetries считает повторные попытки удалённых вызовов
	GatewayRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mt5_gateway_retries_total",
		Help: "Retry attempts for remote MT5 calls",
	})

	// BreakerState - текущее состояние circuit breaker'а (0=closed, 1=half_open, 2=open)
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mt5_circuit_breaker_state",
		Help: "Circuit breaker state: 0=closed, 1=half_open, 2=open",
	})

	// StreamSubscribers - количество активных WebSocket подписок
	StreamSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_stream_subscribers",
		Help: "Active realtime stream subscriptions",
	}, []string{"kind"})

	// PnLJobRuns считает прогоны расчета дневного P&L
	PnLJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnl_job_runs_total",
		Help: "Daily P&L job runs by status",
	}, []string{"status"})

	// BalanceOperations считает балансовые операции по типу и статусу
	BalanceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_operations_total",
		Help: "Balance operations by type and status",
	}, []string{"type", "status"})
)

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBreakerState переводит строковое состояние breaker'а в значение gauge
func SetBreakerState(state string) {
	switch state {
	case "open":
		BreakerState.Set(2)
	case "half_open":
		BreakerState.Set(1)
	default:
		BreakerState.Set(0)
	}
}
