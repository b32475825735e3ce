package observability

import (
	"context"
	"errors"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	if err := Init(Config{Enabled: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Spans must still be usable as no-ops.
	ctx, span := StartSpan(context.Background(), "test.span", map[string]any{
		"string": "value",
		"int":    42,
		"bool":   true,
	})
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	span.End()
}

func TestInit_UnknownExporter(t *testing.T) {
	err := Init(Config{Enabled: true, ExporterType: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown exporter type")
	}
}

func TestInit_StdoutExporter(t *testing.T) {
	if err := Init(Config{Enabled: true, ExporterType: "stdout"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() {
		_ = Shutdown(context.Background())
	}()

	_, span := StartSpan(context.Background(), "test.span", nil)
	RecordError(span, errors.New("recorded"))
	span.End()
}

func TestParseHeaders(t *testing.T) {
	headers := parseHeaders("Authorization=Basic abc, X-Extra=1")
	if headers["Authorization"] != "Basic abc" {
		t.Errorf("unexpected Authorization header: %q", headers["Authorization"])
	}
	if headers["X-Extra"] != "1" {
		t.Errorf("unexpected X-Extra header: %q", headers["X-Extra"])
	}
	if parseHeaders("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestShutdown_NotInitialized(t *testing.T) {
	tracerProvider = nil
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
