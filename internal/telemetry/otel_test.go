package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"valid configuration", Config{ServiceName: "test-service", Endpoint: "localhost:4318", Insecure: true}},
		{"default service name", Config{Endpoint: "localhost:4318", Insecure: true}},
		{"sampled", Config{Endpoint: "localhost:4318", Insecure: true, SampleRatio: 0.25}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("InitTracer() error = %v", err)
			}

			// Nothing was exported, so shutdown does not contact the collector.
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := Shutdown(shutdownCtx, tp); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); !strings.Contains(got, tt.want) {
			t.Errorf("sampler(%v) = %s, want it to contain %s", tt.ratio, got, tt.want)
		}
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}
