package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/shopdash/internal/config"
	"github.com/joao-fontenele/shopdash/internal/messaging"
	"github.com/joao-fontenele/shopdash/internal/notify"
	"github.com/joao-fontenele/shopdash/internal/telemetry"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "payment-notifier", cfg.Telemetry.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, shutdownTelemetry, err := telemetry.Init(ctx, "payment-notifier", cfg.Telemetry.ServiceVersion, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.TracesEnabled)
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID,
		messaging.WithStartOffset(kafka.FirstOffset),
		messaging.WithSkipOnError(logger),
	)
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	notifier := notify.NewPaymentNotifier(cfg.EmailServiceURL, cfg.NotifyEmail, httpClient, logger)

	logger.Info("starting payment notifier", "brokers", cfg.Brokers, "topic", cfg.Topic)

	if err := consumer.Consume(ctx, notifier.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
