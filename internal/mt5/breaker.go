package mt5

import (
	"sync"
	"time"
)

// Состояния circuit breaker'а
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half_open"
)

// CircuitBreaker защищает от лавины вызовов к недоступному серверу MT5.
// После failureThreshold подряд идущих ошибок переходит в open и отклоняет
// вызовы, пока не пройдет coolDown. Затем half-open пропускает пробный вызов:
// успех закрывает breaker, ошибка снова открывает.
// Сам breaker ничего не вызывает, только считает.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	coolDown         time.Duration
	failureCount     int
	lastFailureTime  time.Time
	state            string
}

func NewCircuitBreaker(failureThreshold int, coolDown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		coolDown:         coolDown,
		state:            BreakerClosed,
	}
}

// CanExecute сообщает, можно ли выполнять вызов.
// В open по истечении coolDown переходит в half-open и пропускает пробу.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.lastFailureTime) >= b.coolDown {
			b.state = BreakerHalfOpen
			return true
		}

		return false
	default: // half_open
		return true
	}
}

// RecordSuccess сбрасывает счетчик и закрывает breaker
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = BreakerClosed
}

// RecordFailure увеличивает счетчик; по достижении порога открывает breaker.
// Ошибка в half-open тоже открывает (счетчик уже на пороге).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = time.Now()

	if b.failureCount >= b.failureThreshold {
		b.state = BreakerOpen
	}
}

// State возвращает текущее состояние (closed / open / half_open)
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Failures возвращает текущий счетчик подряд идущих ошибок
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.failureCount
}
