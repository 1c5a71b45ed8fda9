package otel_test

import (
	"context"
	"testing"

	"github.com/mcdev12/studysprint/go/internal/platform/otel"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		enabled  string
	}{
		{name: "no endpoint", endpoint: "", enabled: ""},
		{name: "explicitly disabled", endpoint: "http://localhost:4318", enabled: "false"},
		// Non-routable address so nothing is exported.
		{name: "exporter configured", endpoint: "http://192.0.2.1:4318", enabled: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STUDYSPRINT_OTEL_ENDPOINT", tt.endpoint)
			t.Setenv("STUDYSPRINT_OTEL_ENABLED", tt.enabled)

			shutdown, err := otel.Setup(context.Background(), "studysprint-test")
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown error: %v", err)
			}
		})
	}
}
