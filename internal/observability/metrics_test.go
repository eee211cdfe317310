package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/engines", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/engine", 201, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/engine/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/engine/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "DELETE", "/engine/abc123", 204, 0.100)
	metrics.RecordHTTPRequest(ctx, "POST", "/engine/abc123/stop", 409, 0.001)
}

func TestRecordEngineMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordEngineCreated(ctx, "Spark")
	metrics.RecordTransition(ctx, "Spark", "TriggerStart")
	metrics.RecordCASConflict(ctx, "Spark")
	metrics.RecordReconcileTick(ctx, 0.25)
	metrics.RecordReconcileError(ctx, "Spark")
	metrics.RecordEngineRemoved(ctx, "Spark")
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/engines", "/engines"},
		{"/engine/abc123", "/engine/{id}"},
		{"/engine/xyz-789-def", "/engine/{id}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
