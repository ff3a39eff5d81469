package rtmp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

type State int32

const (
	StateHandshaking State = iota
	StateIdle
	StatePublishing
	StatePlaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateIdle:
		return "idle"
	case StatePublishing:
		return "publishing"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// countingReader는 ack 전송을 위해 수신 바이트 수를 센다.
type countingReader struct {
	r io.Reader
	n atomic.Uint32
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(uint32(n))
	return n, err
}

// handshakeConn은 핸드셰이크 동안 읽기와 버퍼링된 쓰기를 묶는다.
type handshakeConn struct {
	io.Reader
	*bufio.Writer
}

type session struct {
	id       string
	conn     net.Conn
	cfg      Config
	registry *stream.Registry
	bus      *hook.Bus
	logger   *slog.Logger
	onClose  func(id string)

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	counter *countingReader
	reader  *chunkReader

	writeMu sync.Mutex
	bw      *bufio.Writer
	writer  *chunkWriter

	// 아래 필드는 mu로 보호
	mu           sync.Mutex
	state        State
	connected    bool
	app          string
	streamKey    stream.Key
	streamID     uint32
	sub          *stream.Subscription
	paused       bool
	nextStreamID uint32

	// 읽기 고루틴 전용
	peerWindow uint32
	lastAck    uint32
}

func newSession(ctx context.Context, id string, conn net.Conn, cfg Config, registry *stream.Registry, bus *hook.Bus, onClose func(string)) *session {
	ctx, cancel := context.WithCancel(ctx)
	counter := &countingReader{r: conn}
	bw := bufio.NewWriter(conn)

	return &session{
		id:       id,
		conn:     conn,
		cfg:      cfg,
		registry: registry,
		bus:      bus,
		logger:   slog.With("sessionId", id, "remote", conn.RemoteAddr().String()),
		onClose:  onClose,
		ctx:      ctx,
		cancel:   cancel,
		counter:  counter,
		reader:   newChunkReader(bufio.NewReader(counter)),
		bw:       bw,
		writer:   newChunkWriter(bw),
		state:    StateHandshaking,
	}
}

// run은 연결이 끝날 때까지 읽기 루프를 돈다.
func (s *session) run() {
	defer s.Close()

	// 컨텍스트가 먼저 끝나면 블로킹된 읽기를 깨운다
	go func() {
		<-s.ctx.Done()
		_ = s.conn.SetReadDeadline(time.Now())
	}()

	s.renewReadDeadline()
	mode, err := serverHandshake(handshakeConn{Reader: s.counter, Writer: s.bw}, s.cfg.StrictHandshake)
	if err != nil {
		s.logReadError("Handshake failed", err)
		return
	}
	s.logger.Debug("Handshake completed", "mode", mode.String())
	s.setState(StateIdle)

	for {
		s.renewReadDeadline()
		msg, err := s.reader.readMessage()
		if err != nil {
			s.logReadError("Read failed", err)
			return
		}

		if err := s.sendAckIfNeeded(); err != nil {
			s.logger.Warn("Failed to send acknowledgement", "err", err)
			return
		}

		if err := s.handleMessage(msg); err != nil {
			if !errors.Is(err, errConnectRejected) {
				s.logger.Warn("Closing session", "err", err)
			}
			return
		}
	}
}

func (s *session) logReadError(msg string, err error) {
	switch {
	case s.ctx.Err() != nil:
		// Close에 의한 종료
	case errors.Is(err, io.EOF):
		s.logger.Info("Connection closed by peer")
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.logger.Info("Session timed out", "err", ErrTimeout, "timeout", s.cfg.PingTimeout)
	default:
		s.logger.Warn(msg, "err", err)
	}
}

func (s *session) renewReadDeadline() {
	if s.cfg.PingTimeout <= 0 {
		return
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PingTimeout))
}

// 상대가 알려준 window 크기만큼 받을 때마다 Acknowledgement 전송
func (s *session) sendAckIfNeeded() error {
	if s.peerWindow == 0 {
		return nil
	}
	received := s.counter.n.Load()
	if received-s.lastAck < s.peerWindow {
		return nil
	}
	s.lastAck = received
	return s.writeMessages(newAcknowledgementMessage(received))
}

// writeMessages는 메시지들을 한 번에 flush한다. 여러 고루틴에서 호출된다.
func (s *session) writeMessages(msgs ...*Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if s.cfg.PingTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.PingTimeout))
	}
	for _, msg := range msgs {
		if err := s.writer.writeMessage(msg); err != nil {
			return err
		}
	}
	return s.bw.Flush()
}

// setOutChunkSize는 Set Chunk Size를 보낸 뒤 이후 메시지부터 새 크기를 적용한다.
func (s *session) setOutChunkSize(size uint32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writer.writeMessage(newSetChunkSizeMessage(size)); err != nil {
		return err
	}
	s.writer.setChunkSize(size)
	return nil
}

func (s *session) pingLoop() {
	if s.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeMessages(newUserControlMessage(UserControlPingRequest, uptimeMillis())); err != nil {
				s.logger.Debug("Ping failed", "err", err)
				s.Close()
				return
			}
		}
	}
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

// Close는 몇 번을 호출해도 정리 작업과 done 이벤트는 한 번만 수행된다.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		closeWithLog(s.conn)

		s.mu.Lock()
		state := s.state
		key := s.streamKey
		sub := s.sub
		connected := s.connected
		app := s.app
		s.state = StateClosed
		s.sub = nil
		s.mu.Unlock()

		switch state {
		case StatePublishing:
			s.registry.UnregisterPublisher(key, s.id)
		case StatePlaying:
			s.registry.Unsubscribe(sub)
			_ = s.bus.Emit(hook.Event{Kind: hook.DonePlay, SessionID: s.id, StreamPath: key.String()})
		}
		if connected {
			_ = s.bus.Emit(hook.Event{Kind: hook.DoneConnect, SessionID: s.id, StreamPath: "/" + app})
		}

		s.logger.Info("Session closed", "state", state.String())
		if s.onClose != nil {
			s.onClose(s.id)
		}
	})
	return nil
}
