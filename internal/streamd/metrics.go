package streamd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

// Metrics holds Prometheus counters fed by the hook bus and gauges refreshed
// from the stream registry on every scrape.
type Metrics struct {
	registry *prometheus.Registry

	connections       prometheus.Counter
	connectionsClosed prometheus.Counter
	publishes         prometheus.Counter
	plays             prometheus.Counter
	relayFailures     prometheus.Counter
	activeSessions    prometheus.Gauge
	activeStreams     prometheus.Gauge
	activePublishers  prometheus.Gauge
	activeSubscribers prometheus.Gauge
	droppedMessages   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamd_connections_total",
			Help: "Total number of accepted RTMP connect commands",
		}),
		connectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamd_connections_closed_total",
			Help: "Total number of RTMP connections closed after connect",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamd_publishes_total",
			Help: "Total number of streams published",
		}),
		plays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamd_plays_total",
			Help: "Total number of play sessions started",
		}),
		relayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamd_relay_launch_failures_total",
			Help: "Total number of relay processes that failed to start",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamd_active_sessions",
			Help: "Number of open RTMP sessions",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamd_active_streams",
			Help: "Number of stream keys with a publisher or subscribers",
		}),
		activePublishers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamd_active_publishers",
			Help: "Number of streams currently being published",
		}),
		activeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamd_active_subscribers",
			Help: "Number of players currently subscribed",
		}),
		droppedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamd_dropped_messages",
			Help: "Messages dropped from full player queues since start",
		}),
	}

	m.registry.MustRegister(
		m.connections,
		m.connectionsClosed,
		m.publishes,
		m.plays,
		m.relayFailures,
		m.activeSessions,
		m.activeStreams,
		m.activePublishers,
		m.activeSubscribers,
		m.droppedMessages,
	)
	return m
}

// OnEvent counts lifecycle events. Metrics is registered on the hook bus.
func (m *Metrics) OnEvent(ev hook.Event) error {
	switch ev.Kind {
	case hook.PostConnect:
		m.connections.Inc()
	case hook.DoneConnect:
		m.connectionsClosed.Inc()
	case hook.PostPublish:
		m.publishes.Inc()
	case hook.PostPlay:
		m.plays.Inc()
	case hook.RelayLaunchFailed:
		m.relayFailures.Inc()
	}
	return nil
}

// SetStats updates the registry gauges.
func (m *Metrics) SetStats(stats stream.Stats, sessions int) {
	m.activeSessions.Set(float64(sessions))
	m.activeStreams.Set(float64(stats.Streams))
	m.activePublishers.Set(float64(stats.Publishers))
	m.activeSubscribers.Set(float64(stats.Subscribers))
	m.droppedMessages.Set(float64(stats.Dropped))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
