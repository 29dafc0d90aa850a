package telemetry

import (
	"context"
	"errors"
	"net/http"
)

// Init installs the global meter provider and, when tracesEnabled, the OTLP
// tracer provider. The returned handler serves /metrics and shutdown flushes
// both providers.
func Init(ctx context.Context, serviceName, serviceVersion, endpoint string, tracesEnabled bool) (http.Handler, func(context.Context) error, error) {
	metricsHandler, shutdownMeter, err := InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		return nil, nil, err
	}

	if !tracesEnabled {
		return metricsHandler, shutdownMeter, nil
	}

	shutdownTracer, err := InitTracerProvider(ctx, serviceName, serviceVersion, endpoint)
	if err != nil {
		_ = shutdownMeter(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(shutdownTracer(ctx), shutdownMeter(ctx))
	}
	return metricsHandler, shutdown, nil
}
