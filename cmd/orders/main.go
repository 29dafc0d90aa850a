package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/shopdash/internal/catalog"
	"github.com/joao-fontenele/shopdash/internal/config"
	"github.com/joao-fontenele/shopdash/internal/messaging"
	"github.com/joao-fontenele/shopdash/internal/orders"
	"github.com/joao-fontenele/shopdash/internal/payment"
	"github.com/joao-fontenele/shopdash/internal/telemetry"
	"github.com/joao-fontenele/shopdash/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadOrders()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "orders", cfg.Telemetry.Level())

	metricsHandler, shutdownTelemetry, err := telemetry.Init(ctx, "orders", cfg.Telemetry.ServiceVersion, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.TracesEnabled)
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTelemetry(ctx) }()

	db, err := telemetry.OpenDB(cfg.Postgres.URL, cfg.Postgres.Schema)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var publisher orders.EventPublisher
	if cfg.Kafka.Enabled() {
		producer := messaging.NewProducer(cfg.Kafka.Brokers)
		defer func() { _ = producer.Close() }()
		publisher = producer
	}

	gatewayClient := &http.Client{
		Timeout:   cfg.Payment.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	xendit := payment.NewXenditClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.Currency, gatewayClient)

	repo := orders.NewOrderRepository(db)
	products := catalog.NewProductRepository(db)

	service, err := orders.NewService(repo, products, xendit, publisher, cfg.OrderCreatedTopic, logger)
	if err != nil {
		logger.Error("failed to create order service", "error", err)
		os.Exit(1)
	}
	handler := orders.NewHandler(service, logger)

	reconciler := webhook.NewReconciler(repo, publisher, cfg.StatusTopic, logger)
	webhookHandler, err := webhook.NewHandler(reconciler, cfg.WebhookToken, logger)
	if err != nil {
		logger.Error("failed to create webhook handler", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("POST /orders/{id}/payment", telemetry.WithHTTPRoute(handler.HandleRequestPayment))
	mux.HandleFunc("/payment/webhook", telemetry.WithHTTPRoute(webhookHandler.HandleNotification))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "orders", otelhttp.WithSpanNameFormatter(telemetry.SpanNameFromPattern)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Payment.Timeout + 5*time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "kafka", cfg.Kafka.Enabled())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
