package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса корзины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int
	// SeedCatalog наполняет in-memory каталог демонстрационными товарами.
	SeedCatalog bool

	// KafkaBrokers — список брокеров через запятую; пустое значение отключает публикацию.
	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending — порог backlog, после которого /healthz сообщает degraded.
	OutboxMaxPending int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CatalogBaseURL string
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,
		SeedCatalog:         true,

		KafkaTopic:    "eshop.order.events",
		KafkaDLQTopic: "eshop.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		CatalogBaseURL: "http://localhost:5106",
	}
}

// LoadConfigFromEnv накладывает переменные окружения ESHOP_* на DefaultConfig.
// Все ошибки разбора возвращаются вместе.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(os.LookupEnv)
}

func loadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	p := envParser{lookupFn: lookup}

	p.str("ESHOP_HTTP_ADDR", &cfg.HTTPAddr)
	p.str("ESHOP_GRPC_ADDR", &cfg.GRPCAddr)
	p.str("ESHOP_METRICS_ADDR", &cfg.MetricsAddr)

	p.str("ESHOP_STORAGE_DRIVER", &cfg.StorageDriver)
	p.str("ESHOP_POSTGRES_DSN", &cfg.PostgresDSN)
	p.boolean("ESHOP_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	p.integer("ESHOP_POSTGRES_MAX_CONNS", &cfg.PostgresMaxConns)
	p.boolean("ESHOP_SEED_CATALOG", &cfg.SeedCatalog)

	p.str("ESHOP_KAFKA_BROKERS", &cfg.KafkaBrokers)
	p.str("ESHOP_KAFKA_TOPIC", &cfg.KafkaTopic)
	p.str("ESHOP_KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	p.duration("ESHOP_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	p.integer("ESHOP_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	p.integer("ESHOP_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	p.duration("ESHOP_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	p.integer("ESHOP_OUTBOX_MAX_PENDING", &cfg.OutboxMaxPending)

	p.duration("ESHOP_IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	p.duration("ESHOP_IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	p.integer("ESHOP_IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	p.str("ESHOP_CATALOG_BASE_URL", &cfg.CatalogBaseURL)

	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envParser struct {
	lookupFn func(string) (string, bool)
	errs     []error
}

func (p *envParser) lookup(name string) (string, bool) {
	raw, ok := p.lookupFn(name)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (p *envParser) str(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *envParser) boolean(name string, dst *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	*dst = parsed
}

func (p *envParser) integer(name string, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	if parsed <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: must be positive, got %d", name, parsed))
		return
	}
	*dst = parsed
}

func (p *envParser) duration(name string, dst *time.Duration) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", name, err))
		return
	}
	if parsed < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: must not be negative, got %s", name, parsed))
		return
	}
	*dst = parsed
}
