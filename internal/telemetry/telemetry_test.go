package telemetry

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"pkt.systems/pslog"
)

func TestResolveOTLPTarget(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw      string
		protocol string
		endpoint string
		path     string
		insecure bool
	}{
		{raw: "collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "collector:9000", protocol: "grpc", endpoint: "collector:9000", insecure: true},
		{raw: "grpc://collector", protocol: "grpc", endpoint: "collector:4317", insecure: true},
		{raw: "grpcs://collector:443", protocol: "grpc", endpoint: "collector:443"},
		{raw: "http://collector", protocol: "http", endpoint: "collector:4318", insecure: true},
		{raw: "https://collector/otlp/v1/traces/", protocol: "http", endpoint: "collector:4318", path: "/otlp/v1/traces"},
	}
	for _, tc := range cases {
		got, err := resolveOTLPTarget(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got.protocol != tc.protocol || got.endpoint != tc.endpoint || got.path != tc.path || got.insecure != tc.insecure {
			t.Fatalf("%s: got %+v", tc.raw, got)
		}
	}
}

func TestResolveOTLPTargetRejectsUnknownScheme(t *testing.T) {
	t.Parallel()
	if _, err := resolveOTLPTarget("ftp://collector"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
	if _, err := resolveOTLPTarget(""); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestSetupDisabled(t *testing.T) {
	t.Parallel()
	bundle, err := Setup(context.Background(), Config{}, pslog.NoopLogger())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if bundle != nil {
		t.Fatalf("expected nil bundle when telemetry is disabled")
	}
	if err := bundle.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
}

func TestRuntimeMetricsNeedListener(t *testing.T) {
	t.Parallel()
	if _, err := Setup(context.Background(), Config{RuntimeMetrics: true}, pslog.NoopLogger()); err == nil {
		t.Fatalf("expected error without metrics listen address")
	}
}

// Installs global providers, so it does not run in parallel.
func TestSetupServesMetrics(t *testing.T) {
	bundle, err := Setup(context.Background(), Config{MetricsListen: "127.0.0.1:0", Version: "test"}, pslog.NoopLogger())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bundle.Shutdown(ctx)
	})

	counter, err := otel.Meter("telemetry_test").Int64Counter("novadb.test.calls")
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	counter.Add(context.Background(), 3)

	resp, err := http.Get("http://" + bundle.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "novadb_test_calls") {
		t.Fatalf("metric missing from scrape:\n%s", body)
	}
}
