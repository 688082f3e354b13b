// Пакет config — загрузка и валидация конфигурации SmartSite
// из переменных окружения.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации SmartSite.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Файл для дублирования логов с ротацией (опционально)
	LogFile string
	// Разрешённые CORS origins
	CORSAllowedOrigins []string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений
	DBMaxConns int

	// --- Source of Truth ---

	// Корень файлового SOT-хранилища (внутри создаётся businesses/)
	SOTDir string
	// Базовый URL для embed-кода
	EmbedBaseURL string
	// Идентификатор экземпляра (попадает в метаданные экспорта и профиля)
	InstanceID string
	// Дополнительные модули, разрешённые к экспорту (кроме announcement-модулей)
	ExportModules []string

	// --- Внешние системы ---

	// Guardian — журнал аудита экспорта (GUARDIAN_API_URL, опционально)
	GuardianURL string
	// Vault — хранилище Blueprint (VAULT_API_URL, опционально)
	VaultURL string
	// Endpoint синхронизации профиля клиента (опционально)
	SOTSyncURL string
	// Таймаут одного вызова Guardian/Vault/SOT
	SyncTimeout time.Duration
	// Путь к CA-сертификату для внешних вызовов (опционально)
	SyncCACertPath string
	// Интервал фоновой синхронизации профилей
	ProfileSyncInterval time.Duration

	// --- Тенанты ---

	// Размер LRU-кэша проверки тенантов
	TenantCacheSize int
	// TTL записи в кэше проверки тенантов
	TenantCacheTTL time.Duration

	// --- JWT (опционально: пустой JWKS URL отключает проверку токенов) ---

	JWTJWKSURL string
	JWTIssuer  string
	// Claim с идентификатором тенанта
	JWTTenantClaim string
	// Роль, которой разрешён доступ к любому тенанту
	JWTSuperAdminRole string
	// Интервал обновления JWKS
	JWTJWKSRefreshInterval time.Duration
	// Допуск расхождения часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("SS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.LogFile = getEnvDefault("SS_LOG_FILE", "")
	cfg.CORSAllowedOrigins = parseCSV(getEnvDefault("SS_CORS_ALLOWED_ORIGINS", "*"))

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("SS_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("SS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_PORT: %w", err)
	}

	cfg.DBName, err = getEnvRequired("SS_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBUser, err = getEnvRequired("SS_DB_USER")
	if err != nil {
		return nil, err
	}

	cfg.DBPassword, err = getEnvRequired("SS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("SS_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SS_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	cfg.DBMaxConns, err = getEnvInt("SS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("SS_DB_MAX_CONNS: значение %d должно быть положительным", cfg.DBMaxConns)
	}

	// --- Source of Truth ---

	cfg.SOTDir = getEnvDefault("SS_SOT_DIR", "./data")
	cfg.EmbedBaseURL = strings.TrimRight(getEnvDefault("SS_EMBED_BASE_URL", "https://smart.nextmonth.io"), "/")
	cfg.InstanceID = getEnvDefault("SS_INSTANCE_ID", hostnameOr("smartsite"))
	cfg.ExportModules = parseCSV(os.Getenv("SS_EXPORT_MODULES"))

	// --- Внешние системы ---

	// Имена GUARDIAN_API_URL и VAULT_API_URL — контракт с внешними системами, без префикса.
	cfg.GuardianURL, err = getEnvURL("GUARDIAN_API_URL")
	if err != nil {
		return nil, err
	}
	cfg.VaultURL, err = getEnvURL("VAULT_API_URL")
	if err != nil {
		return nil, err
	}
	cfg.SOTSyncURL, err = getEnvURL("SS_SOT_SYNC_URL")
	if err != nil {
		return nil, err
	}

	cfg.SyncTimeout, err = getEnvDuration("SS_SYNC_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_SYNC_TIMEOUT: %w", err)
	}
	if cfg.SyncTimeout <= 0 {
		return nil, fmt.Errorf("SS_SYNC_TIMEOUT: таймаут должен быть положительным")
	}

	cfg.SyncCACertPath = getEnvDefault("SS_SYNC_CA_CERT_PATH", "")

	cfg.ProfileSyncInterval, err = getEnvDuration("SS_PROFILE_SYNC_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SS_PROFILE_SYNC_INTERVAL: %w", err)
	}

	// --- Тенанты ---

	cfg.TenantCacheSize, err = getEnvInt("SS_TENANT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SS_TENANT_CACHE_SIZE: %w", err)
	}
	if cfg.TenantCacheSize < 1 {
		return nil, fmt.Errorf("SS_TENANT_CACHE_SIZE: значение %d должно быть положительным", cfg.TenantCacheSize)
	}

	cfg.TenantCacheTTL, err = getEnvDuration("SS_TENANT_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_TENANT_CACHE_TTL: %w", err)
	}

	// --- JWT ---

	cfg.JWTJWKSURL = getEnvDefault("SS_JWT_JWKS_URL", "")
	cfg.JWTIssuer = getEnvDefault("SS_JWT_ISSUER", "")
	cfg.JWTTenantClaim = getEnvDefault("SS_JWT_TENANT_CLAIM", "tenant_id")
	cfg.JWTSuperAdminRole = getEnvDefault("SS_JWT_SUPER_ADMIN_ROLE", "super_admin")

	cfg.JWTJWKSRefreshInterval, err = getEnvDuration("SS_JWT_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SS_JWT_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWTJWKSRefreshInterval < time.Minute {
		return nil, fmt.Errorf("SS_JWT_JWKS_REFRESH_INTERVAL: интервал должен быть не меньше 1m")
	}

	cfg.JWTLeeway, err = getEnvDuration("SS_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_JWT_LEEWAY: %w", err)
	}
	if cfg.JWTLeeway < 0 {
		return nil, fmt.Errorf("SS_JWT_LEEWAY: значение не может быть отрицательным")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SS_DEPHEALTH_GROUP", "smartsite")
	cfg.DephealthCheckInterval, err = getEnvDuration("SS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("SS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_SHUTDOWN_TIMEOUT: %w", err)
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

// DatabaseURL возвращает URL PostgreSQL в формате postgres://.
// Используется в метках topologymetrics, пароль не включается.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// JWTEnabled сообщает, включена ли проверка JWT для admin API.
func (c *Config) JWTEnabled() bool {
	return c.JWTJWKSURL != ""
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// При заданном SS_LOG_FILE логи дублируются в файл с ротацией.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // мегабайт
			MaxBackups: 5,
			MaxAge:     30, // дней
			Compress:   true,
		})
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
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

// getEnvURL возвращает необязательный абсолютный URL без завершающего слэша.
func getEnvURL(key string) (string, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return "", nil
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%s: некорректный URL %q", key, val)
	}
	return strings.TrimRight(val, "/"), nil
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func hostnameOr(fallback string) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return fallback
	}
	return h
}
