package rtmp

// Message는 청크를 모두 재조립한 RTMP 메시지
type Message struct {
	Timestamp uint32
	TypeID    uint8
	StreamID  uint32
	Payload   []byte
}

func newMessage(typeID uint8, streamID uint32, timestamp uint32, payload []byte) *Message {
	return &Message{
		Timestamp: timestamp,
		TypeID:    typeID,
		StreamID:  streamID,
		Payload:   payload,
	}
}

// 메시지 타입에 따라 사용할 청크 스트림 ID를 결정
func chunkStreamIDFor(typeID uint8) uint32 {
	switch typeID {
	case MsgTypeSetChunkSize, MsgTypeAbort, MsgTypeAcknowledgement,
		MsgTypeUserControl, MsgTypeWindowAckSize, MsgTypeSetPeerBW:
		return ChunkStreamProtocol
	case MsgTypeAudio:
		return ChunkStreamAudio
	case MsgTypeVideo:
		return ChunkStreamVideo
	case MsgTypeAMF0Data, MsgTypeAMF3Data:
		return ChunkStreamScript
	default:
		return ChunkStreamCommand
	}
}

type basicHeader struct {
	fmt           byte
	chunkStreamID uint32
}

type messageHeader struct {
	timestamp uint32 // 절대 타임스탬프
	length    uint32
	typeID    uint8
	streamID  uint32
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func readUint24BE(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}
