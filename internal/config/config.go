// Package config loads per-binary settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Postgres struct {
	URL    string `env:"POSTGRES_URL,required"`
	Schema string `env:"POSTGRES_SCHEMA" envDefault:"shop"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
}

// Enabled reports whether any broker was configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

type Telemetry struct {
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"0.1.0"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	TracesEnabled  bool   `env:"OTEL_TRACES_ENABLED" envDefault:"true"`
}

// Level maps LogLevel to a slog level, defaulting to info.
func (t Telemetry) Level() slog.Level {
	switch strings.ToLower(t.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Payment struct {
	BaseURL   string        `env:"XENDIT_BASE_URL" envDefault:"https://api.xendit.co"`
	SecretKey string        `env:"XENDIT_SECRET_KEY,required"`
	Currency  string        `env:"PAYMENT_CURRENCY" envDefault:"IDR"`
	Timeout   time.Duration `env:"XENDIT_TIMEOUT" envDefault:"15s"`
}

type BlobStore struct {
	URL        string        `env:"SUPABASE_URL,required"`
	ServiceKey string        `env:"SUPABASE_SERVICE_ROLE_KEY,required"`
	Bucket     string        `env:"PRODUCT_IMAGES_BUCKET" envDefault:"product-images"`
	Timeout    time.Duration `env:"SUPABASE_TIMEOUT" envDefault:"10s"`
}

type Orders struct {
	Port              string `env:"PORT" envDefault:"8081"`
	WebhookToken      string `env:"PAYMENT_WEBHOOK_TOKEN"`
	OrderCreatedTopic string `env:"ORDER_CREATED_TOPIC" envDefault:"order.created"`
	StatusTopic       string `env:"ORDER_STATUS_TOPIC" envDefault:"order.status_changed"`
	Postgres          Postgres
	Kafka             Kafka
	Payment           Payment
	Telemetry         Telemetry
}

type Catalog struct {
	Port      string `env:"PORT" envDefault:"8082"`
	Postgres  Postgres
	BlobStore BlobStore
	Telemetry Telemetry
}

type Gateway struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	OrdersServiceURL  string        `env:"ORDERS_SERVICE_URL,required"`
	CatalogServiceURL string        `env:"CATALOG_SERVICE_URL,required"`
	Timeout           time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	Telemetry         Telemetry
}

type Worker struct {
	Brokers         []string      `env:"KAFKA_BROKERS,required" envSeparator:","`
	Topic           string        `env:"ORDER_STATUS_TOPIC" envDefault:"order.status_changed"`
	GroupID         string        `env:"KAFKA_GROUP_ID" envDefault:"payment-notifier"`
	EmailServiceURL string        `env:"EMAIL_SERVICE_URL,required"`
	NotifyEmail     string        `env:"NOTIFY_EMAIL" envDefault:"admin@example.com"`
	Timeout         time.Duration `env:"EMAIL_TIMEOUT" envDefault:"10s"`
	Telemetry       Telemetry
}

type MailSink struct {
	Port      string `env:"PORT" envDefault:"8083"`
	Telemetry Telemetry
}

type Migrate struct {
	PostgresURL    string `env:"POSTGRES_URL,required"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`
}

func LoadOrders() (*Orders, error)   { return load[Orders]() }
func LoadCatalog() (*Catalog, error) { return load[Catalog]() }
func LoadGateway() (*Gateway, error) { return load[Gateway]() }
func LoadWorker() (*Worker, error)   { return load[Worker]() }
func LoadMigrate() (*Migrate, error) { return load[Migrate]() }

func LoadMailSink() (*MailSink, error) { return load[MailSink]() }

func load[T any]() (*T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return &cfg, nil
}
