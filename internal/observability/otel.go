package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type OtelConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"journeys"`
	Environment string  `env:"APP_ENV" envDefault:"development"`
	Version     string  `env:"APP_VERSION"`
	SampleRatio float64 `env:"OTEL_SAMPLER_RATIO" envDefault:"0.1"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// Headers is a comma separated key=value list.
	Headers  map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envKeyValSeparator:"="`
	Insecure bool              `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

var (
	otelOnce     sync.Once
	otelShutdown = func(context.Context) error { return nil }
)

// InitOTel installs the global tracer provider once per process and returns
// its shutdown. Spans from the journey aggregate and otelgin flow through it.
// Without an OTLP endpoint spans are pretty-printed to stdout.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	otelOnce.Do(func() {
		if !cfg.Enabled {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "journeys"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(strings.TrimSpace(cfg.Version)),
			attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
		))
		if err != nil && log != nil {
			log.Warn("OTel resource incomplete", "error", err)
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clamp01(cfg.SampleRatio)))),
			sdktrace.WithResource(res),
		}
		exp, err := newSpanExporter(ctx, cfg)
		switch {
		case err != nil:
			if log != nil {
				log.Warn("OTel exporter unavailable, spans will be dropped", "error", err)
			}
		default:
			opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
		otelShutdown = tp.Shutdown
		if log != nil {
			log.Info("OTel tracing enabled", "service", name, "endpoint", cfg.Endpoint, "sample_ratio", clamp01(cfg.SampleRatio))
		}
	})
	return otelShutdown
}

func newSpanExporter(ctx context.Context, cfg OtelConfig) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return otlptracehttp.New(ctx, opts...)
}
