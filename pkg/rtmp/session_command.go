package rtmp

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

var errConnectRejected = errors.New("connect rejected")

const (
	fmsVersion   = "FMS/3,0,1,123"
	capabilities = 31
)

func (s *session) writeResult(transactionID float64, values ...any) error {
	msg, err := newCommandMessage(0, append([]any{"_result", transactionID}, values...)...)
	if err != nil {
		return err
	}
	return s.writeMessages(msg)
}

func (s *session) writeError(transactionID float64, info map[string]any) error {
	msg, err := newCommandMessage(0, "_error", transactionID, nil, info)
	if err != nil {
		return err
	}
	return s.writeMessages(msg)
}

func newStatusMessage(streamID uint32, level, code, description string) (*Message, error) {
	return newCommandMessage(streamID, "onStatus", 0.0, nil, statusObject(level, code, description))
}

func (s *session) writeStatus(streamID uint32, level, code, description string) error {
	msg, err := newStatusMessage(streamID, level, code, description)
	if err != nil {
		return err
	}
	return s.writeMessages(msg)
}

// parseStreamName은 "name?k=v" 형태에서 이름과 쿼리 인자를 분리한다.
func parseStreamName(raw string) (string, map[string]any) {
	name, query, _ := strings.Cut(raw, "?")
	values, err := url.ParseQuery(query)
	if err != nil || len(values) == 0 {
		return name, nil
	}
	args := make(map[string]any, len(values))
	for k, v := range values {
		args[k] = v[0]
	}
	return name, args
}

func (s *session) onConnect(cmd *command) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if connected {
		return protocolErrorf("connect", "already connected")
	}

	app, _, _ := strings.Cut(cmd.objectString("app"), "?")
	app = strings.Trim(app, "/")

	ev := hook.Event{Kind: hook.PreConnect, SessionID: s.id, StreamPath: "/" + app, Args: cmd.object}
	if app == "" {
		_ = s.writeError(cmd.transactionID, statusObject("error", "NetConnection.Connect.Rejected", "Application name is empty."))
		return errConnectRejected
	}
	if strings.Contains(app, "/") {
		_ = s.writeError(cmd.transactionID, statusObject("error", "NetConnection.Connect.Rejected", "Invalid application name."))
		return errConnectRejected
	}
	if err := s.bus.Emit(ev); err != nil {
		s.logger.Info("Connect rejected", "app", app, "err", err)
		_ = s.writeError(cmd.transactionID, statusObject("error", "NetConnection.Connect.Rejected", err.Error()))
		return errConnectRejected
	}

	s.mu.Lock()
	s.connected = true
	s.app = app
	s.mu.Unlock()

	objectEncoding, _ := cmd.object["objectEncoding"].(float64)

	if err := s.writeMessages(
		newWindowAckSizeMessage(defaultWindowAckSize),
		newSetPeerBandwidthMessage(defaultPeerBandwidth, peerBandwidthDynamic),
	); err != nil {
		return err
	}
	if err := s.setOutChunkSize(s.cfg.ChunkSize); err != nil {
		return err
	}

	result, err := newCommandMessage(0, "_result", cmd.transactionID,
		map[string]any{
			"fmsVer":       fmsVersion,
			"capabilities": float64(capabilities),
			"mode":         1.0,
		},
		map[string]any{
			"level":          "status",
			"code":           "NetConnection.Connect.Success",
			"description":    "Connection succeeded.",
			"objectEncoding": objectEncoding,
		})
	if err != nil {
		return err
	}
	bwDone, err := newCommandMessage(0, "onBWDone", 0.0, nil)
	if err != nil {
		return err
	}
	if err := s.writeMessages(result, bwDone); err != nil {
		return err
	}

	s.logger.Info("Client connected", "app", app, "tcUrl", cmd.objectString("tcUrl"), "flashVer", cmd.objectString("flashVer"))
	go s.pingLoop()

	ev.Kind = hook.PostConnect
	_ = s.bus.Emit(ev)
	return nil
}

func (s *session) onCreateStream(cmd *command) error {
	s.mu.Lock()
	s.nextStreamID++
	id := s.nextStreamID
	s.mu.Unlock()

	return s.writeResult(cmd.transactionID, nil, float64(id))
}

func (s *session) onFCPublish(cmd *command) error {
	name, _ := cmd.stringArg(0)
	msg, err := newCommandMessage(0, "onFCPublish", 0.0, nil, statusObject("status", "NetStream.Publish.Start", name))
	if err != nil {
		return err
	}
	return s.writeMessages(msg)
}

func (s *session) onFCUnpublish(streamID uint32, cmd *command) error {
	raw, _ := cmd.stringArg(0)
	name, _ := parseStreamName(raw)

	msg, err := newCommandMessage(0, "onFCUnpublish", 0.0, nil, statusObject("status", "NetStream.Unpublish.Success", name))
	if err != nil {
		return err
	}
	if err := s.writeMessages(msg); err != nil {
		return err
	}

	s.mu.Lock()
	publishing := s.state == StatePublishing && s.streamKey.Name == name
	s.mu.Unlock()
	if publishing {
		s.stopStream()
	}
	return nil
}

// streamTarget은 publish/play 공통 검사 후 스트림 키를 만든다.
// ok가 false이면 이미 상태 메시지를 보낸 것이다.
func (s *session) streamTarget(op string, streamID uint32, cmd *command, badName, badConnection string) (stream.Key, map[string]any, bool, error) {
	raw, _ := cmd.stringArg(0)
	name, args := parseStreamName(raw)

	s.mu.Lock()
	connected := s.connected
	state := s.state
	app := s.app
	s.mu.Unlock()

	if !connected {
		return stream.Key{}, nil, false, protocolErrorf(op, "%s before connect", op)
	}
	if name == "" {
		return stream.Key{}, nil, false, s.writeStatus(streamID, "error", badName, "Stream name is empty.")
	}
	if state != StateIdle {
		return stream.Key{}, nil, false, s.writeStatus(streamID, "error", badConnection,
			fmt.Sprintf("Session is already %s.", state))
	}
	return stream.Key{App: app, Name: name}, args, true, nil
}

func (s *session) onPublish(streamID uint32, cmd *command) error {
	key, args, ok, err := s.streamTarget("publish", streamID, cmd, "NetStream.Publish.BadName", "NetStream.Publish.BadConnection")
	if !ok {
		return err
	}

	err = s.registry.RegisterPublisher(key, s.id, args)
	switch {
	case errors.Is(err, stream.ErrConflict):
		s.logger.Info("Stream already publishing", "streamPath", key.String())
		return s.writeStatus(streamID, "error", "NetStream.Publish.BadName", "Stream already publishing")
	case errors.Is(err, stream.ErrRejected):
		s.logger.Info("Publish rejected", "streamPath", key.String(), "err", err)
		return s.writeStatus(streamID, "error", "NetStream.Publish.Unauthorized", "Authorization required.")
	case err != nil:
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		// 등록하는 사이에 Close됨
		s.mu.Unlock()
		s.registry.UnregisterPublisher(key, s.id)
		return ErrSessionClosed
	}
	s.state = StatePublishing
	s.streamKey = key
	s.streamID = streamID
	s.mu.Unlock()

	s.logger.Info("Publish started", "streamPath", key.String())
	return s.writeStatus(streamID, "status", "NetStream.Publish.Start", key.String()+" is now published.")
}

func (s *session) onPlay(streamID uint32, cmd *command) error {
	key, args, ok, err := s.streamTarget("play", streamID, cmd, "NetStream.Play.BadName", "NetStream.Play.BadConnection")
	if !ok {
		return err
	}

	ev := hook.Event{Kind: hook.PrePlay, SessionID: s.id, StreamPath: key.String(), Args: args}
	if err := s.bus.Emit(ev); err != nil {
		s.logger.Info("Play rejected", "streamPath", key.String(), "err", err)
		return s.writeStatus(streamID, "error", "NetStream.Play.Unauthorized", "Authorization required.")
	}

	sub := s.registry.Subscribe(key, s.id)

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.registry.Unsubscribe(sub)
		return ErrSessionClosed
	}
	s.state = StatePlaying
	s.streamKey = key
	s.streamID = streamID
	s.sub = sub
	s.paused = false
	s.mu.Unlock()

	reset, err := newStatusMessage(streamID, "status", "NetStream.Play.Reset", "Playing and resetting "+key.String()+".")
	if err != nil {
		return err
	}
	start, err := newStatusMessage(streamID, "status", "NetStream.Play.Start", "Started playing "+key.String()+".")
	if err != nil {
		return err
	}
	sampleAccess, err := newDataMessage(streamID, "|RtmpSampleAccess", true, true)
	if err != nil {
		return err
	}
	if err := s.writeMessages(
		newUserControlMessage(UserControlStreamBegin, streamID),
		reset,
		start,
		sampleAccess,
	); err != nil {
		return err
	}

	s.logger.Info("Play started", "streamPath", key.String())
	go s.playLoop(sub, streamID)

	ev.Kind = hook.PostPlay
	_ = s.bus.Emit(ev)
	return nil
}

func (s *session) onPause(streamID uint32, cmd *command) error {
	pause, _ := cmd.boolArg(0)

	s.mu.Lock()
	if s.state != StatePlaying || s.paused == pause {
		s.mu.Unlock()
		return nil
	}
	s.paused = pause
	sub := s.sub
	s.mu.Unlock()

	if pause {
		sub.Discard()
		msg, err := newStatusMessage(streamID, "status", "NetStream.Pause.Notify", "Paused live")
		if err != nil {
			return err
		}
		return s.writeMessages(newUserControlMessage(UserControlStreamEOF, streamID), msg)
	}

	msg, err := newStatusMessage(streamID, "status", "NetStream.Unpause.Notify", "Unpaused live")
	if err != nil {
		return err
	}
	return s.writeMessages(newUserControlMessage(UserControlStreamBegin, streamID), msg)
}

// stopStream은 publish/play 중이던 스트림을 정리하고 Idle로 돌아간다.
func (s *session) stopStream() {
	s.mu.Lock()
	state := s.state
	key := s.streamKey
	streamID := s.streamID
	sub := s.sub
	if state == StatePublishing || state == StatePlaying {
		s.state = StateIdle
		s.sub = nil
		s.paused = false
	}
	s.mu.Unlock()

	switch state {
	case StatePublishing:
		s.registry.UnregisterPublisher(key, s.id)
		s.logger.Info("Publish stopped", "streamPath", key.String())
		_ = s.writeStatus(streamID, "status", "NetStream.Unpublish.Success", key.String()+" is now unpublished.")
	case StatePlaying:
		s.registry.Unsubscribe(sub)
		s.logger.Info("Play stopped", "streamPath", key.String())
		_ = s.bus.Emit(hook.Event{Kind: hook.DonePlay, SessionID: s.id, StreamPath: key.String()})
	}
}
