// Пакет config — загрузка и валидация конфигурации scanbridge
// из переменных окружения. Опционально читает .env файл.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации scanbridge.
type Config struct {
	// Порт HTTP-сервера агента
	AgentPort int
	// Хост устройства (bridge server), обычно 127.0.0.1
	BridgeHost string
	// Стартовый порт поиска bridge server
	BridgeDefaultPort int
	// Количество дополнительных портов после стартового
	BridgePortRange int
	// Версия протокола handshake (сегмент URL /api/scanner/connect/{version})
	ProtocolVersion string
	// Максимальный возраст сохранённой сессии
	SessionMaxAge time.Duration
	// Путь к файлу снапшота сессии
	SnapshotPath string
	// Таймаут HTTP-запросов к bridge server (0 — без таймаута, скан может быть долгим)
	BridgeTimeout time.Duration
	// Таймаут best-effort запроса disconnect
	DisconnectTimeout time.Duration
	// Максимальный размер кэша превью (записей)
	CacheSize int
	// TTL записи кэша превью
	CacheTTL time.Duration
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера агента
	ShutdownTimeout time.Duration
	// Интервал проверки доступности bridge server (topologymetrics)
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Архивация сканов в S3-совместимое хранилище (опционально)
	ArchiveEnabled   bool
	ArchiveEndpoint  string
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveBucket    string
	ArchiveUseSSL    bool
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
// Если рядом есть .env файл — переменные подхватываются из него
// (существующие переменные окружения имеют приоритет).
func Load() (*Config, error) {
	// .env опционален, отсутствие файла — не ошибка
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// SB_AGENT_PORT — порт HTTP-сервера агента (по умолчанию 8080)
	cfg.AgentPort, err = getEnvInt("SB_AGENT_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SB_AGENT_PORT: %w", err)
	}
	if cfg.AgentPort < 1 || cfg.AgentPort > 65535 {
		return nil, fmt.Errorf("SB_AGENT_PORT: значение %d вне диапазона 1-65535", cfg.AgentPort)
	}

	// SB_BRIDGE_HOST — хост bridge server (по умолчанию 127.0.0.1)
	cfg.BridgeHost = getEnvDefault("SB_BRIDGE_HOST", "127.0.0.1")

	// SB_BRIDGE_DEFAULT_PORT — стартовый порт поиска (по умолчанию 45537)
	cfg.BridgeDefaultPort, err = getEnvInt("SB_BRIDGE_DEFAULT_PORT", 45537)
	if err != nil {
		return nil, fmt.Errorf("SB_BRIDGE_DEFAULT_PORT: %w", err)
	}

	// SB_BRIDGE_PORT_RANGE — количество портов после стартового (по умолчанию 14)
	cfg.BridgePortRange, err = getEnvInt("SB_BRIDGE_PORT_RANGE", 14)
	if err != nil {
		return nil, fmt.Errorf("SB_BRIDGE_PORT_RANGE: %w", err)
	}
	if cfg.BridgePortRange < 0 {
		return nil, fmt.Errorf("SB_BRIDGE_PORT_RANGE: значение должно быть неотрицательным")
	}

	// SB_PROTOCOL_VERSION — версия протокола handshake (по умолчанию v1)
	cfg.ProtocolVersion = getEnvDefault("SB_PROTOCOL_VERSION", "v1")

	// SB_SESSION_MAX_AGE — максимальный возраст сессии (по умолчанию 24h)
	cfg.SessionMaxAge, err = getEnvDuration("SB_SESSION_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SB_SESSION_MAX_AGE: %w", err)
	}

	// SB_SNAPSHOT_PATH — путь к файлу снапшота сессии
	cfg.SnapshotPath = getEnvDefault("SB_SNAPSHOT_PATH", defaultSnapshotPath())

	// SB_BRIDGE_TIMEOUT — таймаут запросов к устройству (по умолчанию 0:
	// физическое сканирование не ограничивается клиентским таймаутом)
	cfg.BridgeTimeout, err = getEnvDuration("SB_BRIDGE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("SB_BRIDGE_TIMEOUT: %w", err)
	}

	// SB_DISCONNECT_TIMEOUT — таймаут beacon-запроса disconnect (по умолчанию 2s)
	cfg.DisconnectTimeout, err = getEnvDuration("SB_DISCONNECT_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_DISCONNECT_TIMEOUT: %w", err)
	}

	// SB_CACHE_SIZE — размер LRU-кэша превью (по умолчанию 64)
	cfg.CacheSize, err = getEnvInt("SB_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("SB_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("SB_CACHE_SIZE: значение должно быть положительным")
	}

	// SB_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("SB_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_CACHE_TTL: %w", err)
	}

	// SB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SB_LOG_LEVEL: %w", err)
	}

	// SB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// SB_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_SHUTDOWN_TIMEOUT: %w", err)
	}

	// SB_DEPHEALTH_CHECK_INTERVAL — интервал проверки устройства (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("SB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// SB_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("SB_DEPHEALTH_GROUP", "scanbridge")

	// SB_ARCHIVE_ENABLED — архивация сканов в S3 (по умолчанию выключена)
	cfg.ArchiveEnabled = getEnvDefault("SB_ARCHIVE_ENABLED", "false") == "true"
	if cfg.ArchiveEnabled {
		cfg.ArchiveEndpoint, err = getEnvRequired("SB_ARCHIVE_ENDPOINT")
		if err != nil {
			return nil, err
		}
		cfg.ArchiveAccessKey, err = getEnvRequired("SB_ARCHIVE_ACCESS_KEY")
		if err != nil {
			return nil, err
		}
		cfg.ArchiveSecretKey, err = getEnvRequired("SB_ARCHIVE_SECRET_KEY")
		if err != nil {
			return nil, err
		}
		cfg.ArchiveBucket = getEnvDefault("SB_ARCHIVE_BUCKET", "scans")
		cfg.ArchiveUseSSL = getEnvDefault("SB_ARCHIVE_USE_SSL", "false") == "true"
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// defaultSnapshotPath возвращает путь снапшота по умолчанию
// в пользовательской директории конфигурации.
func defaultSnapshotPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "scanbridge-session.json"
	}
	return dir + "/scanbridge/session.json"
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
