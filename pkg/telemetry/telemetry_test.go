package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Disable: true})
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
}

func TestEndToleratesNilSpan(t *testing.T) {
	End(nil, errors.New("boom"))
}

func TestEndWithNoopSpan(t *testing.T) {
	_, span := Tracer("test").Start(context.Background(), "op")
	End(span, nil)
}

func TestInitExportsSpansToWriter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{ServiceName: "adaptive-rag-test", Writer: &buf})
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	_, span := Tracer("test").Start(context.Background(), "adaptive.turn")
	End(span, errors.New("generation failed"))
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "adaptive.turn") {
		t.Fatalf("exported spans do not contain the turn span: %s", out)
	}
	if !strings.Contains(out, "generation failed") {
		t.Errorf("exported span is missing the recorded error: %s", out)
	}
}

func TestSamplerRatioBounds(t *testing.T) {
	for _, ratio := range []float64{0, 1, 2, -1} {
		if got := sampler(ratio).Description(); got != "AlwaysOnSampler" {
			t.Errorf("sampler(%v) = %s, want AlwaysOnSampler", ratio, got)
		}
	}
	if got := sampler(0.5).Description(); !strings.HasPrefix(got, "ParentBased") {
		t.Errorf("sampler(0.5) = %s, want ParentBased", got)
	}
}
