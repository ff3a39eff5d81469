package stream

// RTMP 메시지 타입 (rtmp 패키지와 동일한 값)
const (
	TypeAudio uint8 = 8
	TypeVideo uint8 = 9
	TypeData  uint8 = 18
)

type MessageKind int

const (
	KindMedia MessageKind = iota
	KindMetadata
	KindPublish   // 퍼블리셔가 붙었음
	KindUnpublish // 퍼블리셔가 떠났음
)

// Message는 퍼블리셔에서 구독자로 전달되는 단위.
// 여러 구독자가 같은 Message를 공유하므로 Payload를 수정하면 안 된다.
type Message struct {
	Kind      MessageKind
	TypeID    uint8
	Timestamp uint32
	Payload   []byte
}

// IsKeyframe은 비디오 프레임 타입이 1(keyframe)인지 확인한다.
func (m *Message) IsKeyframe() bool {
	return m.TypeID == TypeVideo && len(m.Payload) > 0 && m.Payload[0]>>4 == 1
}

// isVideoSequenceHeader: AVC(7)/HEVC(12) keyframe 중 AVCPacketType 0
func (m *Message) isVideoSequenceHeader() bool {
	if !m.IsKeyframe() || len(m.Payload) < 2 {
		return false
	}
	codec := m.Payload[0] & 0x0F
	return (codec == 7 || codec == 12) && m.Payload[1] == 0
}

// isAudioSequenceHeader: AAC(10) 중 AACPacketType 0
func (m *Message) isAudioSequenceHeader() bool {
	if m.TypeID != TypeAudio || len(m.Payload) < 2 {
		return false
	}
	return m.Payload[0]>>4 == 10 && m.Payload[1] == 0
}
