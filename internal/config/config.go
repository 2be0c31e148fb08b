package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	// MT5 Manager API
	MT5Host        string
	MT5Port        int
	MT5Login       uint64
	MT5Password    string
	MT5CallTimeout time.Duration // Таймаут одного удалённого вызова
	MT5MaxRetries  int           // Количество попыток для удалённых операций

	// Circuit breaker
	BreakerThreshold int           // Сколько подряд ошибок до открытия
	BreakerCoolDown  time.Duration // Пауза перед half-open пробой

	// Realtime streaming
	PollInterval time.Duration // Интервал опроса для WebSocket подписок

	DBPath    string
	JWTSecret string
	Address   string // Address для HTTP сервера (e.g., 0.0.0.0:8080)

	// Daily P&L job
	PnLJobInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения
func Load(logger *slog.Logger) *Config {
	host := os.Getenv("MT5_MANAGER_HOST")
	if host == "" {
		logger.Error("❌ MT5_MANAGER_HOST not set")
		os.Exit(1)
	}

	port := getEnvInt(logger, "MT5_MANAGER_PORT", 443)

	login := uint64(getEnvInt(logger, "MT5_MANAGER_LOGIN", 0))
	if login == 0 {
		logger.Error("❌ MT5_MANAGER_LOGIN not set")
		os.Exit(1)
	}

	password := os.Getenv("MT5_MANAGER_PASSWORD")
	if password == "" {
		logger.Error("❌ MT5_MANAGER_PASSWORD not set")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "default-secret-change-me-in-production" // В продакшене использовать настоящий секрет!

		logger.Warn("⚠️  JWT_SECRET not set, using default (insecure!)")
	}

	address := os.Getenv("ADDRESS")
	if address == "" {
		address = "0.0.0.0:8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./backoffice.db"
	}

	cfg := &Config{
		MT5Host:          host,
		MT5Port:          port,
		MT5Login:         login,
		MT5Password:      password,
		MT5CallTimeout:   getEnvDuration(logger, "MT5_CALL_TIMEOUT", 30*time.Second),
		MT5MaxRetries:    getEnvInt(logger, "MT5_MAX_RETRIES", 3),
		BreakerThreshold: getEnvInt(logger, "BREAKER_THRESHOLD", 5),
		BreakerCoolDown:  getEnvDuration(logger, "BREAKER_COOLDOWN", 60*time.Second),
		PollInterval:     getEnvDuration(logger, "POLL_INTERVAL", 500*time.Millisecond),
		DBPath:           dbPath,
		JWTSecret:        jwtSecret,
		Address:          address,
		PnLJobInterval:   getEnvDuration(logger, "PNL_JOB_INTERVAL", 24*time.Hour),
	}

	logger.Info("🔧 Config loaded",
		slog.String("mt5_host", cfg.MT5Host),
		slog.Int("mt5_port", cfg.MT5Port),
		slog.Int("max_retries", cfg.MT5MaxRetries),
		slog.Duration("poll_interval", cfg.PollInterval))

	return cfg
}

// getEnvInt читает целочисленную переменную окружения с дефолтом
func getEnvInt(logger *slog.Logger, key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("⚠️  Invalid value, using default",
			slog.String("key", key),
			slog.String("value", raw))

		return def
	}

	return value
}

// getEnvDuration читает duration переменную окружения с дефолтом
func getEnvDuration(logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("⚠️  Invalid duration, using default",
			slog.String("key", key),
			slog.String("value", raw))

		return def
	}

	return value
}
