package streamd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// responseWriter captures the status code and size for the access log.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// requestLogger는 요청마다 method, path, status, 소요 시간을 기록한다.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrap, r)
		slog.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrap.status),
			slog.Int("duration_ms", int(time.Since(start).Milliseconds())),
			slog.Int("size", wrap.size),
		)
	})
}

// newRouter는 /metrics와 /healthz만 제공한다.
func newRouter(metrics *Metrics, updateGauges func()) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(updateGauges))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

type metricsServer struct {
	srv *http.Server
}

func startMetricsServer(port int, handler http.Handler) (*metricsServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics port %d: %w", port, err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server error", "err", err)
		}
	}()

	slog.Info("Metrics server started", "addr", ln.Addr().String())
	return &metricsServer{srv: srv}, nil
}

func (m *metricsServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		slog.Error("Metrics server shutdown error", "err", err)
	}
}
