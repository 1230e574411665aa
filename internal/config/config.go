// Пакет config — загрузка и валидация конфигурации Ingest Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Ingest Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Локальное хранилище ---

	// Директория staging — файлы между загрузкой и успешным OCR
	StagingDir string
	// Директория постоянного хранения документов
	StorageDir string

	// --- Синхронизация ---

	// Количество параллельных обработчиков файлов внутри цикла
	SyncConcurrency int
	// Интервал автоматической синхронизации (0 — отключена)
	AutoSyncInterval time.Duration
	// Таймаут установки SMB-подключения
	ConnectTimeout time.Duration
	// Таймаут сканирования одной backup-папки
	ScanTimeout time.Duration
	// Таймаут загрузки одного файла
	DownloadTimeout time.Duration

	// --- OCR ---

	// Путь к бинарю ocrmypdf
	OCRBinary string
	// Язык распознавания (tesseract language code)
	OCRLanguage string
	// Таймаут OCR одного файла
	OCRTimeout time.Duration
	// Максимальная длина превью документа в символах
	PreviewLength int

	// --- Кэш CSV-вложений ---

	// Максимальное количество записей LRU-кэша разобранных CSV
	CSVCacheSize int
	// TTL записи кэша
	CSVCacheTTL time.Duration

	// --- topologymetrics ---

	// Имя группы в метриках dephealth
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// IM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("IM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("IM_PORT: %w", err)
	}
	if cfg.Port < 8040 || cfg.Port > 8049 {
		return nil, fmt.Errorf("IM_PORT: значение %d вне допустимого диапазона 8040-8049", cfg.Port)
	}

	// IM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IM_LOG_LEVEL: %w", err)
	}

	// IM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("IM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// IM_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("IM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_HTTP_READ_TIMEOUT: %w", err)
	}

	// IM_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 10m,
	// синхронный sync-запрос может работать долго)
	cfg.HTTPWriteTimeout, err = getEnvDuration("IM_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// IM_HTTP_IDLE_TIMEOUT — таймаут idle-соединений (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("IM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// IM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("IM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// IM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("IM_DB_HOST")
	if err != nil {
		return nil, err
	}

	// IM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("IM_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("IM_DB_PORT: %w", err)
	}

	// IM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("IM_DB_NAME")
	if err != nil {
		return nil, err
	}

	// IM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("IM_DB_USER")
	if err != nil {
		return nil, err
	}

	// IM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("IM_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// IM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("IM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("IM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Локальное хранилище ---

	// IM_STAGING_DIR — staging-директория (по умолчанию /data/staging)
	cfg.StagingDir = getEnvDefault("IM_STAGING_DIR", "/data/staging")

	// IM_STORAGE_DIR — директория хранения документов (по умолчанию /data/documents)
	cfg.StorageDir = getEnvDefault("IM_STORAGE_DIR", "/data/documents")

	// --- Синхронизация ---

	// IM_SYNC_CONCURRENCY — параллелизм обработки файлов (по умолчанию 4)
	cfg.SyncConcurrency, err = getEnvInt("IM_SYNC_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("IM_SYNC_CONCURRENCY: %w", err)
	}
	if cfg.SyncConcurrency < 1 || cfg.SyncConcurrency > 32 {
		return nil, fmt.Errorf("IM_SYNC_CONCURRENCY: значение %d вне допустимого диапазона 1-32", cfg.SyncConcurrency)
	}

	// IM_AUTO_SYNC_INTERVAL — интервал авто-синхронизации (по умолчанию 0 — отключена)
	cfg.AutoSyncInterval, err = getEnvDuration("IM_AUTO_SYNC_INTERVAL", 0)
	if err != nil {
		return nil, fmt.Errorf("IM_AUTO_SYNC_INTERVAL: %w", err)
	}

	// IM_CONNECT_TIMEOUT — таймаут SMB-подключения (по умолчанию 10s)
	cfg.ConnectTimeout, err = getEnvDuration("IM_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_CONNECT_TIMEOUT: %w", err)
	}

	// IM_SCAN_TIMEOUT — таймаут сканирования папки (по умолчанию 30s)
	cfg.ScanTimeout, err = getEnvDuration("IM_SCAN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_SCAN_TIMEOUT: %w", err)
	}

	// IM_DOWNLOAD_TIMEOUT — таймаут загрузки файла (по умолчанию 2m)
	cfg.DownloadTimeout, err = getEnvDuration("IM_DOWNLOAD_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_DOWNLOAD_TIMEOUT: %w", err)
	}

	// --- OCR ---

	// IM_OCR_BINARY — путь к ocrmypdf (по умолчанию ocrmypdf из PATH)
	cfg.OCRBinary = getEnvDefault("IM_OCR_BINARY", "ocrmypdf")

	// IM_OCR_LANGUAGE — язык распознавания (по умолчанию deu)
	cfg.OCRLanguage = getEnvDefault("IM_OCR_LANGUAGE", "deu")

	// IM_OCR_TIMEOUT — таймаут OCR одного файла (по умолчанию 5m)
	cfg.OCRTimeout, err = getEnvDuration("IM_OCR_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_OCR_TIMEOUT: %w", err)
	}

	// IM_PREVIEW_LENGTH — длина превью (по умолчанию 300)
	cfg.PreviewLength, err = getEnvInt("IM_PREVIEW_LENGTH", 300)
	if err != nil {
		return nil, fmt.Errorf("IM_PREVIEW_LENGTH: %w", err)
	}
	if cfg.PreviewLength < 1 || cfg.PreviewLength > 2000 {
		return nil, fmt.Errorf("IM_PREVIEW_LENGTH: значение %d вне допустимого диапазона 1-2000", cfg.PreviewLength)
	}

	// --- Кэш CSV-вложений ---

	// IM_CSV_CACHE_SIZE — размер LRU-кэша (по умолчанию 128)
	cfg.CSVCacheSize, err = getEnvInt("IM_CSV_CACHE_SIZE", 128)
	if err != nil {
		return nil, fmt.Errorf("IM_CSV_CACHE_SIZE: %w", err)
	}
	if cfg.CSVCacheSize < 1 {
		return nil, fmt.Errorf("IM_CSV_CACHE_SIZE: значение %d должно быть положительным", cfg.CSVCacheSize)
	}

	// IM_CSV_CACHE_TTL — TTL записи кэша (по умолчанию 10m)
	cfg.CSVCacheTTL, err = getEnvDuration("IM_CSV_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_CSV_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	// IM_DEPHEALTH_GROUP — имя группы (по умолчанию pdms)
	cfg.DephealthGroup = getEnvDefault("IM_DEPHEALTH_GROUP", "pdms")

	// IM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("IM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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
