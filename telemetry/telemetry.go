// Package telemetry installs the OpenTelemetry tracer provider.
//
// Spans are emitted by the router ("router.route"), the agent channel
// ("a2a.chat"), the turn executor ("flow.turn", "flow.model.generate") and the
// HTTP server. When telemetry is disabled the global no-op provider stays in
// place and nothing is exported.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/hupe1980/teammesh/logging"
)

// Version is reported as service.version.
const Version = "0.1.0"

// Config configures Init.
type Config struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	// SampleRatio in (0, 1]; 0 samples everything.
	SampleRatio float64
	Logger      logging.Logger
}

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

// Init sets up tracing with an OTLP gRPC exporter and registers it globally.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	if !cfg.Enabled || cfg.Endpoint == "" {
		logger.Info("telemetry.disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "teammesh"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry.initialized", "endpoint", cfg.Endpoint, "service", name)

	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
