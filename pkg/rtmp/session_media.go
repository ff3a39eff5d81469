package rtmp

import (
	"bytes"
	"errors"

	"streamd/pkg/amf"
	"streamd/pkg/stream"
)

// publishingKey는 Publishing 상태일 때만 스트림 키를 반환한다.
func (s *session) publishingKey() (stream.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamKey, s.state == StatePublishing
}

// handleMedia: Publishing이 아니면 조용히 버린다
func (s *session) handleMedia(msg *Message) {
	key, ok := s.publishingKey()
	if !ok {
		return
	}
	s.registry.PublishMedia(key, &stream.Message{
		Kind:      stream.KindMedia,
		TypeID:    msg.TypeID,
		Timestamp: msg.Timestamp,
		Payload:   msg.Payload,
	})
}

func (s *session) handleData(msg *Message) {
	key, ok := s.publishingKey()
	if !ok {
		return
	}

	payload := msg.Payload
	if msg.TypeID == MsgTypeAMF3Data && len(payload) > 0 && payload[0] == 0x00 {
		payload = payload[1:]
	}

	values, err := amf.DecodeAMF0Sequence(bytes.NewReader(payload))
	if err != nil {
		s.logger.Debug("Ignoring malformed data message", "err", err)
		return
	}
	if len(values) > 0 && values[0] == "@setDataFrame" {
		values = values[1:]
	}
	if len(values) == 0 {
		return
	}

	kind := stream.KindMedia
	if values[0] == "onMetaData" {
		var meta map[string]any
		if len(values) > 1 {
			meta, _ = values[1].(map[string]any)
		}
		values = []any{"onMetaData", amf.ECMAArray(meta)}
		kind = stream.KindMetadata
		s.logger.Debug("Metadata received", "streamPath", key.String(), "metadata", meta)
	}

	encoded, err := amf.EncodeAMF0Sequence(values...)
	if err != nil {
		s.logger.Debug("Failed to re-encode data message", "err", err)
		return
	}
	s.registry.PublishMedia(key, &stream.Message{
		Kind:      kind,
		TypeID:    stream.TypeData,
		Timestamp: msg.Timestamp,
		Payload:   encoded,
	})
}

// playing은 sub가 아직 현재 구독인지와 일시정지 여부를 반환한다.
func (s *session) playing(sub *stream.Subscription) (current bool, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub == sub, s.paused
}

// playLoop는 구독 큐를 비우며 플레이어에게 전송한다.
// 구독이 해제되거나 세션이 닫히면 종료한다.
func (s *session) playLoop(sub *stream.Subscription, streamID uint32) {
	for {
		msg, err := sub.Next(s.ctx)
		if err != nil {
			return
		}
		current, paused := s.playing(sub)
		if !current {
			return
		}

		var out []*Message
		switch msg.Kind {
		case stream.KindPublish:
			notify, err := newStatusMessage(streamID, "status", "NetStream.Play.PublishNotify", sub.Key.String()+" is now published.")
			if err != nil {
				continue
			}
			out = []*Message{newUserControlMessage(UserControlStreamBegin, streamID), notify}
		case stream.KindUnpublish:
			notify, err := newStatusMessage(streamID, "status", "NetStream.Play.UnpublishNotify", sub.Key.String()+" is now unpublished.")
			if err != nil {
				continue
			}
			out = []*Message{notify, newUserControlMessage(UserControlStreamEOF, streamID)}
		default:
			if paused {
				continue
			}
			out = []*Message{newMessage(msg.TypeID, streamID, msg.Timestamp, msg.Payload)}
		}

		if err := s.writeMessages(out...); err != nil {
			if !errors.Is(err, ErrSessionClosed) {
				s.logger.Warn("Failed to write to player", "err", err)
			}
			s.Close()
			return
		}
	}
}
