package rtmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

const (
	DefaultPort         = 1935
	DefaultPingInterval = 30 * time.Second
	DefaultPingTimeout  = 60 * time.Second
)

type Config struct {
	Port            int
	ChunkSize       uint32 // 서버가 보내는 청크 크기
	PingInterval    time.Duration
	PingTimeout     time.Duration
	StrictHandshake bool
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	return c
}

// Terminated는 세션이 종료되었음을 이벤트 루프에 알린다.
type Terminated struct {
	Id string
}

type Server struct {
	cfg      Config
	registry *stream.Registry
	bus      *hook.Bus

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*session
	nextID   atomic.Uint64

	channel chan interface{}
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewServer(cfg Config, registry *stream.Registry, bus *hook.Bus) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg.withDefaults(),
		registry: registry,
		bus:      bus,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
		channel:  make(chan interface{}, 64),
		done:     make(chan struct{}),
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.Serve(ln)
}

// Serve는 주어진 리스너로 연결을 받기 시작한다. 블로킹하지 않는다.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("rtmp server already started")
	}
	s.listener = ln
	s.mu.Unlock()

	slog.Info("RTMP server started", "addr", ln.Addr().String())

	s.wg.Add(2)
	go s.eventLoop()
	go s.acceptConnections(ln)
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every session, then waits for them to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.listener
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	s.cancel()
	if ln != nil {
		closeWithLog(ln)
	}
	for _, sess := range sessions {
		_ = sess.Close()
	}

	s.wg.Wait()
	slog.Info("RTMP server stopped")
}

func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case data := <-s.channel:
			s.channelHandler(data)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) channelHandler(data interface{}) {
	switch v := data.(type) {
	case Terminated:
		s.TerminatedEventHandler(v.Id)
	default:
		slog.Error("Received unknown event type", "type", fmt.Sprintf("%T", v))
	}
}

func (s *Server) TerminatedEventHandler(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	remaining := len(s.sessions)
	s.mu.Unlock()
	slog.Debug("Session removed", "sessionId", id, "sessions", remaining)
}

// sessionTerminated는 세션 고루틴에서 호출된다.
func (s *Server) sessionTerminated(id string) {
	select {
	case s.channel <- Terminated{Id: id}:
	case <-s.ctx.Done():
		// 이벤트 루프가 끝났으면 직접 제거
		s.TerminatedEventHandler(id)
	}
}

func (s *Server) acceptConnections(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("Accept failed", "err", err)
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn runs one RTMP session on conn until it closes.
func (s *Server) ServeConn(conn net.Conn) {
	id := strconv.FormatUint(s.nextID.Add(1), 10)
	sess := newSession(s.ctx, id, conn, s.cfg, s.registry, s.bus, s.sessionTerminated)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	sess.logger.Info("Connection accepted")
	sess.run()
}

func closeWithLog(c io.Closer) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("Error closing resource", "err", err)
	}
}
