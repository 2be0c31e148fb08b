package mt5

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection - не удалось установить или удержать соединение с сервером
	ErrConnection = errors.New("mt5: connection failed")

	// ErrCircuitOpen - circuit breaker открыт, вызов не выполнялся
	ErrCircuitOpen = errors.New("mt5: circuit breaker is open")

	// ErrAccountNotFound - логин не существует на сервере
	ErrAccountNotFound = errors.New("mt5: account not found")

	// ErrInvalidOperation - некорректный тип операции или параметры
	ErrInvalidOperation = errors.New("mt5: invalid operation")

	// ErrCreateAccount - сервер отклонил создание аккаунта
	ErrCreateAccount = errors.New("mt5: account creation failed")

	// ErrBalanceOperation - сервер отклонил балансовую операцию
	ErrBalanceOperation = errors.New("mt5: balance operation failed")

	// ErrRetriesExhausted - операция не удалась после всех попыток
	ErrRetriesExhausted = errors.New("mt5: retries exhausted")
)

// RemoteError - ошибка, возвращённая сервером MT5 (код + текст)
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mt5: remote error %d: %s", e.Code, e.Message)
}

// Код возврата сервера "запись не найдена"
const retNotFound = 13

// isNotFound проверяет, что удалённая ошибка означает отсутствие записи
func isNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == retNotFound
}

// isRetryable - детерминированные ошибки не ретраим, повтор им не поможет
func isRetryable(err error) bool {
	return !errors.Is(err, ErrAccountNotFound) && !errors.Is(err, ErrInvalidOperation)
}
