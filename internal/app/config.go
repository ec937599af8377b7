package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// Поддерживаемые хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Переменные окружения сервиса.
const (
	envHTTPAddr                    = "MARKETPLACE_HTTP_ADDR"
	envGRPCAddr                    = "MARKETPLACE_GRPC_ADDR"
	envMetricsAddr                 = "MARKETPLACE_METRICS_ADDR"
	envStorageDriver               = "MARKETPLACE_STORAGE_DRIVER"
	envPostgresDSN                 = "MARKETPLACE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "MARKETPLACE_POSTGRES_AUTO_MIGRATE"
	envPostgresIsolation           = "MARKETPLACE_POSTGRES_ISOLATION"
	envRedisAddr                   = "MARKETPLACE_REDIS_ADDR"
	envCartCacheTTL                = "MARKETPLACE_CART_CACHE_TTL"
	envKafkaBrokers                = "MARKETPLACE_KAFKA_BROKERS"
	envKafkaClientID               = "MARKETPLACE_KAFKA_CLIENT_ID"
	envCurrency                    = "MARKETPLACE_CURRENCY"
	envRequestTimeout              = "MARKETPLACE_REQUEST_TIMEOUT"
	envSeedDemoCatalog             = "MARKETPLACE_SEED_DEMO_CATALOG"
	envOutboxPollInterval          = "MARKETPLACE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "MARKETPLACE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "MARKETPLACE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "MARKETPLACE_OUTBOX_RETRY_DELAY"
	envIdempotencyCleanupInterval  = "MARKETPLACE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "MARKETPLACE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envQuoteExpiryInterval         = "MARKETPLACE_QUOTE_EXPIRY_INTERVAL"
	envQuoteExpiryBatchSize        = "MARKETPLACE_QUOTE_EXPIRY_BATCH_SIZE"
)

// Config описывает настройки запуска сервиса.
// Все поля скалярные, поэтому конфигурации сравнимы через ==.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// PostgresIsolation: read-committed, repeatable-read или serializable.
	PostgresIsolation string
	// SeedDemoCatalog заполняет каталог демонстрационными продавцами и товарами.
	SeedDemoCatalog bool

	// RedisAddr включает кеш сводки корзины; пустое значение отключает кеш.
	RedisAddr    string
	CartCacheTTL time.Duration

	// KafkaBrokers — список брокеров через запятую; пустое значение отключает публикацию outbox.
	KafkaBrokers  string
	KafkaClientID string

	Currency       string
	RequestTimeout time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	QuoteExpiryInterval  time.Duration
	QuoteExpiryBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresIsolation:           "serializable",
		SeedDemoCatalog:             true,
		CartCacheTTL:                5 * time.Minute,
		Currency:                    "MYR",
		RequestTimeout:              15 * time.Second,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		QuoteExpiryInterval:         time.Minute,
		QuoteExpiryBatchSize:        100,
	}
}

// Validate проверяет значения, без которых сервис не может стартовать.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%s is required for postgres storage", envPostgresDSN)
		}
		if _, err := postgres.ParseIsolation(c.PostgresIsolation); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		return fmt.Errorf("invalid currency %q: %w", c.Currency, err)
	}
	return nil
}

// envLookup совпадает по сигнатуре с os.LookupEnv.
type envLookup func(key string) (string, bool)

// LoadConfigFromEnv читает MARKETPLACE_* переменные поверх DefaultConfig.
// Некорректные значения не прерывают запуск: поле сохраняет значение
// по умолчанию, а описание проблемы попадает в warnings.
func LoadConfigFromEnv() (Config, []string) {
	return readConfigFromEnv(os.LookupEnv)
}

func readConfigFromEnv(lookup envLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	positiveInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, allowZero bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		valid, constraint := func(d time.Duration) bool { return d > 0 }, "must be > 0"
		if allowZero {
			valid, constraint = func(d time.Duration) bool { return d >= 0 }, "must be >= 0"
		}
		parsed, err := parseDuration(v, valid, constraint)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaClientID, &cfg.KafkaClientID)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envPostgresIsolation); ok && strings.TrimSpace(v) != "" {
		if _, err := postgres.ParseIsolation(v); err != nil {
			warn(envPostgresIsolation, v, err)
		} else {
			cfg.PostgresIsolation = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if v, ok := lookup(envCurrency); ok && strings.TrimSpace(v) != "" {
		unit, err := currency.ParseISO(strings.TrimSpace(v))
		if err != nil {
			warn(envCurrency, v, err)
		} else {
			cfg.Currency = unit.String()
		}
	}

	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	boolean(envSeedDemoCatalog, &cfg.SeedDemoCatalog)

	duration(envCartCacheTTL, &cfg.CartCacheTTL, false)
	duration(envRequestTimeout, &cfg.RequestTimeout, false)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, false)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, true)
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, false)
	duration(envQuoteExpiryInterval, &cfg.QuoteExpiryInterval, false)

	positiveInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	positiveInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	positiveInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)
	positiveInt(envQuoteExpiryBatchSize, &cfg.QuoteExpiryBatchSize)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, constraint string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, constraint)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, constraint)
	}
	return value, nil
}
