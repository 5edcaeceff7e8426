// Package observe configures OpenTelemetry for the daemon: trace and
// metric providers with grpc or stdout exporters, the logr bridge into
// zerolog, and HTTP instrumentation for the admin mux and the outgoing
// API transport.
package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mujykun/ucube/internal/config"
)

// Configure sets up the global telemetry providers according to
// configuration. The returned function shuts the providers down, flushing
// anything buffered; it is safe to call when telemetry is disabled.
func Configure(ctx context.Context, cfg config.ObserveConfig) (func(context.Context) error, error) {
	configureLogger(cfg)

	if !cfg.Enabled {
		log.Info().Msg("telemetry: disabled")
		return func(context.Context) error { return nil }, nil
	}

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			errs = append(errs, fn(ctx))
		}
		shutdownFuncs = nil
		return errors.Join(errs...)
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := traceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(time.Duration(cfg.TraceBatchTimeoutSeconds)*time.Second),
		),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.MetricsEnabled {
		reader, err := metricReader(ctx, cfg)
		if err != nil {
			// tear down the trace provider that is already registered
			return nil, errors.Join(err, shutdown(ctx))
		}

		meterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		)
		shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
		otel.SetMeterProvider(meterProvider)
	}

	log.Info().
		Str("service", cfg.ServiceName).
		Str("exporter", cfg.Type).
		Bool("metrics", cfg.MetricsEnabled).
		Msg("telemetry: configured")

	return shutdown, nil
}

// HTTPTransport wraps a transport with OTel HTTP instrumentation,
// optionally including connection-level client tracing. Disabled
// configurations get the base transport back untouched.
func HTTPTransport(base http.RoundTripper, cfg config.ObserveConfig) http.RoundTripper {
	if !cfg.Enabled || !cfg.HTTPTransportEnabled {
		return base
	}

	var opts []otelhttp.Option
	if cfg.HTTPConnectionTraceEnabled {
		opts = append(opts, otelhttp.WithClientTrace(
			func(ctx context.Context) *httptrace.ClientTrace {
				return otelhttptrace.NewClientTrace(ctx)
			},
		))
	}

	return otelhttp.NewTransport(base, opts...)
}

// configureLogger routes the OTel SDK's internal logging through zerolog,
// at its own level so SDK noise can be silenced independently of the
// daemon's logging.
func configureLogger(cfg config.ObserveConfig) {
	level, err := zerolog.ParseLevel(cfg.SDKLogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	otelLogger := log.Logger.Level(level).With().Str("component", "otel").Logger()
	otel.SetLogger(logr.New(zerologr.NewLogSink(&otelLogger)))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		otelLogger.Warn().Err(err).Msg("telemetry error")
	}))
}

func traceExporter(ctx context.Context, cfg config.ObserveConfig) (sdktrace.SpanExporter, error) {
	if cfg.Type == "stdout" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return otlptracegrpc.New(ctx)
}

func metricReader(ctx context.Context, cfg config.ObserveConfig) (sdkmetric.Reader, error) {
	interval := time.Duration(cfg.MetricReadIntervalSeconds) * time.Second

	if cfg.Type == "stdout" {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
	}

	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}
