package runtime

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/credence/config"
)

func TestSetupTelemetryDisabled(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{}, TelemetryOptions{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if tel.Registry == nil || tel.Meter == nil {
		t.Fatalf("telemetry missing registry or meter: %+v", tel)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTelemetryExportsMetrics(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), config.TelemetryConfig{Enabled: true}, TelemetryOptions{ServiceName: "credence-test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer tel.Shutdown(context.Background())

	counter, err := tel.Meter.Int64Counter("credence_test_events_total")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "credence_test_events_total") {
		t.Fatalf("metric not exported:\n%s", body)
	}
}
