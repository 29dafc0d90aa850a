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

	"github.com/joao-fontenele/shopdash/internal/blobstore"
	"github.com/joao-fontenele/shopdash/internal/catalog"
	"github.com/joao-fontenele/shopdash/internal/config"
	"github.com/joao-fontenele/shopdash/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadCatalog()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "catalog", cfg.Telemetry.Level())

	metricsHandler, shutdownTelemetry, err := telemetry.Init(ctx, "catalog", cfg.Telemetry.ServiceVersion, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.TracesEnabled)
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

	storageClient := &http.Client{
		Timeout:   cfg.BlobStore.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	images := blobstore.NewClient(cfg.BlobStore.URL, cfg.BlobStore.ServiceKey, cfg.BlobStore.Bucket, storageClient)

	repo := catalog.NewProductRepository(db)
	handler := catalog.NewHandler(repo, images, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleListProducts))
	mux.HandleFunc("POST /products", telemetry.WithHTTPRoute(handler.HandleCreateProduct))
	mux.HandleFunc("DELETE /products/{id}", telemetry.WithHTTPRoute(handler.HandleDeleteProduct))
	mux.HandleFunc("POST /products/image-upload-url", telemetry.WithHTTPRoute(handler.HandleCreateImageUploadURL))
	mux.HandleFunc("GET /categories", telemetry.WithHTTPRoute(handler.HandleListCategories))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(mux, "catalog", otelhttp.WithSpanNameFormatter(telemetry.SpanNameFromPattern)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting catalog service", "port", cfg.Port, "bucket", images.Bucket())
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
