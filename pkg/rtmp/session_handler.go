package rtmp

import (
	"fmt"
)

// handleMessage는 메시지 타입별 처리기로 분배한다.
// 반환된 에러는 세션을 종료시킨다.
func (s *session) handleMessage(msg *Message) error {
	switch msg.TypeID {
	case MsgTypeSetChunkSize:
		size, err := parseSetChunkSize(msg.Payload)
		if err != nil {
			return err
		}
		s.logger.Debug("Peer chunk size changed", "size", size)
		return s.reader.setChunkSize(size)

	case MsgTypeAbort:
		csid, err := parseUint32Payload("abort", msg.Payload)
		if err != nil {
			return err
		}
		s.reader.abort(csid)
		return nil

	case MsgTypeAcknowledgement:
		return nil

	case MsgTypeUserControl:
		return s.handleUserControl(msg)

	case MsgTypeWindowAckSize:
		size, err := parseUint32Payload("window acknowledgement size", msg.Payload)
		if err != nil {
			return err
		}
		s.peerWindow = size
		return nil

	case MsgTypeSetPeerBW:
		if len(msg.Payload) < 5 {
			return protocolErrorf("set peer bandwidth", "payload too short: %d bytes", len(msg.Payload))
		}
		return nil

	case MsgTypeAudio, MsgTypeVideo:
		s.handleMedia(msg)
		return nil

	case MsgTypeAMF0Data, MsgTypeAMF3Data:
		s.handleData(msg)
		return nil

	case MsgTypeAMF0Command, MsgTypeAMF3Command:
		cmd, err := decodeCommand(msg.TypeID, msg.Payload)
		if err != nil {
			return err
		}
		return s.handleCommand(msg.StreamID, cmd)

	default:
		s.logger.Debug("Ignoring message", "typeId", msg.TypeID, "length", len(msg.Payload))
		return nil
	}
}

func (s *session) handleUserControl(msg *Message) error {
	ev, err := parseUserControl(msg.Payload)
	if err != nil {
		return err
	}

	switch ev.event {
	case UserControlPingRequest:
		timestamp, ok := ev.uint32At(0)
		if !ok {
			return protocolErrorf("user control", "ping request without timestamp")
		}
		return s.writeMessages(newUserControlMessage(UserControlPingResponse, timestamp))
	case UserControlPingResponse:
		s.logger.Debug("Ping response received")
	case UserControlSetBufferLength:
		streamID, _ := ev.uint32At(0)
		bufferMs, _ := ev.uint32At(1)
		s.logger.Debug("Client buffer length", "streamId", streamID, "ms", bufferMs)
	default:
		s.logger.Debug("Ignoring user control event", "event", ev.event)
	}
	return nil
}

func (s *session) handleCommand(streamID uint32, cmd *command) error {
	s.logger.Debug("Command received", "name", cmd.name, "transactionId", cmd.transactionID)

	switch cmd.name {
	case "connect":
		return s.onConnect(cmd)
	case "createStream":
		return s.onCreateStream(cmd)
	case "releaseStream":
		return s.writeResult(cmd.transactionID, nil)
	case "FCPublish":
		return s.onFCPublish(cmd)
	case "FCUnpublish":
		return s.onFCUnpublish(streamID, cmd)
	case "publish":
		return s.onPublish(streamID, cmd)
	case "play":
		return s.onPlay(streamID, cmd)
	case "pause":
		return s.onPause(streamID, cmd)
	case "closeStream":
		s.stopStream()
		return nil
	case "deleteStream":
		s.stopStream()
		return nil
	case "receiveAudio", "receiveVideo", "_result", "_error", "onBWDone", "_checkbw":
		return nil
	default:
		s.logger.Info("Unsupported command", "name", cmd.name)
		return s.writeError(cmd.transactionID, statusObject("error", "NetConnection.Call.Failed",
			fmt.Sprintf("Method not found (%s).", cmd.name)))
	}
}
