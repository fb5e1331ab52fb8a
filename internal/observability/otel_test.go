package observability

import (
	"context"
	"testing"
)

func TestNewSpanExporterHonoursEndpoint(t *testing.T) {
	ctx := context.Background()
	stdout, err := newSpanExporter(ctx, OtelConfig{})
	if err != nil || stdout == nil {
		t.Fatalf("stdout exporter: %v", err)
	}
	otlp, err := newSpanExporter(ctx, OtelConfig{
		Endpoint: "collector:4318",
		Insecure: true,
		Headers:  map[string]string{"x-tenant": "journeys"},
	})
	if err != nil || otlp == nil {
		t.Fatalf("otlp exporter: %v", err)
	}
	_ = otlp.Shutdown(ctx)
}
