// Package observability provides OpenTelemetry tracing and RED metrics for
// the SITA server.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scope = "sita.demo"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // host:port of the collector's gRPC receiver
	SampleRate     float64 // 0.0 to 1.0
	// FlushInterval bounds both span batching and metric export.
	FlushInterval time.Duration
	Enabled       bool
	Insecure      bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "sita-os",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		FlushInterval:  5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider owns the process tracer and meter and the HTTP RED instruments.
type Provider struct {
	tracer    trace.Tracer
	meter     metric.Meter
	logger    *slog.Logger
	shutdowns []func(context.Context) error

	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

// New creates a provider. When cfg is disabled no exporter is started and
// the global tracer and meter are used as they are.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{logger: logger.With("component", "observability")}

	if cfg.Enabled {
		if err := p.export(ctx, cfg); err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}
		p.logger.InfoContext(ctx, "telemetry exporting",
			"service", cfg.ServiceName,
			"endpoint", cfg.OTLPEndpoint,
			"sample_rate", cfg.SampleRate,
		)
	} else {
		p.logger.InfoContext(ctx, "telemetry export disabled")
	}

	p.tracer = otel.Tracer(scope, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	p.meter = otel.Meter(scope, metric.WithInstrumentationVersion(cfg.ServiceVersion))
	if err := p.instruments(); err != nil {
		return nil, fmt.Errorf("observability: instruments: %w", err)
	}
	return p, nil
}

// export installs OTLP trace and metric pipelines as the global providers.
func (p *Provider) export(ctx context.Context, cfg *Config) error {
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 5 * time.Second
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return fmt.Errorf("observability: resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("observability: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spans, sdktrace.WithBatchTimeout(flush)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	p.shutdowns = append(p.shutdowns, tp.Shutdown)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	points, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("observability: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(points, sdkmetric.WithInterval(flush))),
	)
	p.shutdowns = append(p.shutdowns, mp.Shutdown)
	otel.SetMeterProvider(mp)
	return nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func (p *Provider) instruments() error {
	var errs [4]error
	p.requests, errs[0] = p.meter.Int64Counter("sita.http.requests",
		metric.WithDescription("HTTP requests served"), metric.WithUnit("{request}"))
	p.errors, errs[1] = p.meter.Int64Counter("sita.http.errors",
		metric.WithDescription("HTTP requests answered with a 5xx status or failed operations"), metric.WithUnit("{error}"))
	p.duration, errs[2] = p.meter.Float64Histogram("sita.http.duration",
		metric.WithDescription("Request and operation duration"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.025, 0.1, 0.25, 1, 2.5, 10))
	p.inflight, errs[3] = p.meter.Int64UpDownCounter("sita.http.inflight",
		metric.WithDescription("Requests in flight, including open event streams"), metric.WithUnit("{request}"))
	return errors.Join(errs[:]...)
}

// Shutdown flushes and stops the exporters. It is safe on a disabled provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		if err := p.shutdowns[i](ctx); err != nil {
			p.logger.ErrorContext(ctx, "telemetry shutdown", "error", err)
			errs = append(errs, err)
		}
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Meter returns the provider's meter.
func (p *Provider) Meter() metric.Meter { return p.meter }

// TrackOperation starts an internal span. The returned func ends it and
// records the duration, and the error if any.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		set := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
		p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(set...))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.errors.Add(ctx, 1, metric.WithAttributes(set...))
		}
		span.End()
	}
}
