package streamd

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

func TestRouterHealthz(t *testing.T) {
	router := newRouter(NewMetrics(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouterUnknownPath(t *testing.T) {
	router := newRouter(NewMetrics(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMetricsFromHooksAndStats(t *testing.T) {
	metrics := NewMetrics()
	bus := hook.NewBus()
	bus.Register(metrics)

	registry := stream.NewRegistry(stream.Options{Bus: bus})
	_ = bus.Emit(hook.Event{Kind: hook.PostConnect, SessionID: "1"})
	if err := registry.RegisterPublisher(stream.Key{App: "live", Name: "test"}, "1", nil); err != nil {
		t.Fatal(err)
	}
	registry.Subscribe(stream.Key{App: "live", Name: "test"}, "2")
	_ = bus.Emit(hook.Event{Kind: hook.RelayLaunchFailed, StreamPath: "/live/test"})

	scraped := false
	router := newRouter(metrics, func() {
		scraped = true
		metrics.SetStats(registry.Stats(), 2)
	})

	srv := httptest.NewServer(router)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !scraped {
		t.Error("gauges were not refreshed before scrape")
	}
	for _, want := range []string{
		"streamd_connections_total 1",
		"streamd_publishes_total 1",
		"streamd_relay_launch_failures_total 1",
		"streamd_active_sessions 2",
		"streamd_active_streams 1",
		"streamd_active_publishers 1",
		"streamd_active_subscribers 1",
	} {
		if !bytes.Contains(body, []byte(want)) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewLoggerWritesSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug)
	logger.Debug("hello", "key", "value")

	out := buf.String()
	for _, want := range []string{"hello", "value", "http_test.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %q", want, out)
		}
	}
}
