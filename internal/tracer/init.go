package tracer

import (
	"context"
	"log"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const serviceName = "edu-chatbot-be"

// Settings is read from the OTEL_* environment.
type Settings struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

func SettingsFromEnv() Settings {
	s := Settings{
		Enabled:     os.Getenv("OTEL_ENABLED") == "true",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if s.Endpoint == "" {
		s.Endpoint = "localhost:4318"
	}
	if v, err := strconv.ParseFloat(os.Getenv("OTEL_SAMPLE_RATIO"), 64); err == nil && v >= 0 && v <= 1 {
		s.SampleRatio = v
	}
	return s
}

// InitTracer installs the OTLP/HTTP tracer provider. Orchestrator states and
// HTTP requests become spans. Returns the shutdown function; tracing is off
// unless OTEL_ENABLED=true.
func InitTracer() func(context.Context) error {
	return Init(context.Background(), SettingsFromEnv())
}

func Init(ctx context.Context, s Settings) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !s.Enabled {
		log.Println("OpenTelemetry tracing is disabled (set OTEL_ENABLED=true to enable)")
		return noop
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(s.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		log.Printf("Warning: Failed to create OTLP exporter: %v (tracing disabled)", err)
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.SampleRatio))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	log.Printf("✅ OpenTelemetry tracer initialized (endpoint: %s, sample ratio: %.2f)", s.Endpoint, s.SampleRatio)

	return tp.Shutdown
}
