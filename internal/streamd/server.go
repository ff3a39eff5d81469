package streamd

import (
	"context"
	"log/slog"
	"time"

	"streamd/pkg/hook"
	"streamd/pkg/relay"
	"streamd/pkg/rtmp"
	"streamd/pkg/stream"
)

const statsInterval = time.Minute

type Server struct {
	config   *Config
	bus      *hook.Bus
	registry *stream.Registry
	rtmp     *rtmp.Server
	relay    *relay.Manager
	metrics  *Metrics
	http     *metricsServer

	ctx        context.Context
	cancel     context.CancelFunc
	ticker     *time.Ticker
	done       chan struct{} // 종료 신호 채널
	unregister []func()
}

func NewServer(config *Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	bus := hook.NewBus()

	registry := stream.NewRegistry(stream.Options{
		GOPCache:     config.RTMP.GopCache,
		GOPCacheSize: config.RTMP.GopCacheSize,
		QueueSize:    config.RTMP.QueueSize,
		Bus:          bus,
	})

	rtmpServer := rtmp.NewServer(rtmp.Config{
		Port:            config.RTMP.Port,
		ChunkSize:       uint32(config.RTMP.ChunkSize),
		PingInterval:    config.RTMP.Ping,
		PingTimeout:     config.RTMP.PingTimeout,
		StrictHandshake: config.RTMP.StrictHandshake,
	}, registry, bus)

	s := &Server{
		config:   config,
		bus:      bus,
		registry: registry,
		rtmp:     rtmpServer,
		metrics:  NewMetrics(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if len(config.Relay.Tasks) > 0 {
		rules := make([]relay.Rule, 0, len(config.Relay.Tasks))
		for _, task := range config.Relay.Tasks {
			rules = append(rules, relay.Rule{App: task.App, Mode: task.Mode, Edge: task.Edge})
		}
		s.relay = relay.NewManager(ctx, relay.NewExecLauncher(config.Relay.FFmpeg), bus, config.RTMP.Port, rules)
	}
	return s
}

// Bus exposes the hook bus so callers can register their own observers
// (for example publish authorization) before Start.
func (s *Server) Bus() *hook.Bus {
	return s.bus
}

func (s *Server) Start() error {
	slog.Info("Start Server", "rtmpPort", s.config.RTMP.Port, "gopCache", s.config.RTMP.GopCache, "relayTasks", len(s.config.Relay.Tasks))

	s.unregister = append(s.unregister,
		s.bus.Register(hook.NewLogObserver(slog.Default())),
		s.bus.Register(s.metrics),
	)
	if s.relay != nil {
		s.unregister = append(s.unregister, s.bus.Register(s.relay))
	}

	if err := s.rtmp.Start(); err != nil {
		return err
	}

	if s.config.Metrics.Port != 0 {
		srv, err := startMetricsServer(s.config.Metrics.Port, newRouter(s.metrics, s.updateGauges))
		if err != nil {
			s.rtmp.Stop()
			return err
		}
		s.http = srv
	}

	s.ticker = time.NewTicker(statsInterval)
	go s.eventLoop()
	return nil
}

func (s *Server) updateGauges() {
	s.metrics.SetStats(s.registry.Stats(), s.rtmp.SessionCount())
}

func (s *Server) Stop() {
	slog.Info("Stopping server...")

	// 1. 새 연결 차단 및 세션 종료
	s.rtmp.Stop()

	// 2. 릴레이 프로세스 종료
	s.cancel()
	if s.relay != nil {
		s.relay.Close()
	}

	// 3. 메트릭 서버 종료
	if s.http != nil {
		s.http.stop()
	}

	// 4. 이벤트 루프 종료
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.done)
	}

	for _, unregister := range s.unregister {
		unregister()
	}
	slog.Info("Server stopped successfully")
}

func (s *Server) eventLoop() {
	for {
		select {
		case <-s.ticker.C:
			stats := s.registry.Stats()
			slog.Info("Server stats",
				"sessions", s.rtmp.SessionCount(),
				"streams", stats.Streams,
				"publishers", stats.Publishers,
				"subscribers", stats.Subscribers,
				"dropped", stats.Dropped)
		case <-s.done:
			slog.Debug("Event loop stopping")
			return
		}
	}
}
