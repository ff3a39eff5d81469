package rtmp

import (
	"encoding/binary"
	"io"
	"log/slog"
)

// 한 번에 미리 잡아두는 재조립 버퍼 최대 크기
const maxPreallocPayload = 64 * 1024

// chunkStreamState는 청크 스트림 ID별 수신 상태
type chunkStreamState struct {
	header    messageHeader
	delta     uint32 // 마지막 헤더의 timestamp 필드 값 (fmt0이면 절대값)
	extended  bool   // 마지막 fmt0/1/2 헤더가 확장 타임스탬프를 사용했는지
	payload   []byte
	remaining uint32
	inMessage bool
}

// chunkReader는 청크 스트림을 메시지 단위로 재조립한다.
type chunkReader struct {
	r         io.Reader
	chunkSize uint32
	streams   map[uint32]*chunkStreamState
	buf       [11]byte
}

func newChunkReader(r io.Reader) *chunkReader {
	return &chunkReader{
		r:         r,
		chunkSize: DefaultChunkSize,
		streams:   make(map[uint32]*chunkStreamState),
	}
}

// setChunkSize는 다음 청크부터 적용된다.
func (cr *chunkReader) setChunkSize(size uint32) error {
	if size < 1 || size > MaxChunkSize {
		return protocolErrorf("set chunk size", "chunk size %d out of range", size)
	}
	cr.chunkSize = size
	return nil
}

// abort는 해당 청크 스트림에서 조립 중이던 메시지를 버린다.
func (cr *chunkReader) abort(chunkStreamID uint32) {
	state, ok := cr.streams[chunkStreamID]
	if !ok {
		return
	}
	state.payload = nil
	state.remaining = 0
	state.inMessage = false
}

// readMessage는 완성된 메시지가 나올 때까지 청크를 읽는다.
func (cr *chunkReader) readMessage() (*Message, error) {
	for {
		msg, err := cr.readChunk()
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// readChunk는 청크 하나를 읽고, 그 청크로 메시지가 완성되면 반환한다.
func (cr *chunkReader) readChunk() (*Message, error) {
	bh, err := cr.readBasicHeader()
	if err != nil {
		return nil, err
	}

	state, ok := cr.streams[bh.chunkStreamID]
	if !ok {
		if bh.fmt != FmtType0 {
			return nil, protocolErrorf("read chunk", "fmt %d chunk on unknown chunk stream %d", bh.fmt, bh.chunkStreamID)
		}
		state = &chunkStreamState{}
		cr.streams[bh.chunkStreamID] = state
	}

	if err := cr.readMessageHeader(bh, state); err != nil {
		return nil, err
	}

	size := state.remaining
	if size > cr.chunkSize {
		size = cr.chunkSize
	}
	if size > 0 {
		start := len(state.payload)
		state.payload = append(state.payload, make([]byte, size)...)
		if _, err := io.ReadFull(cr.r, state.payload[start:]); err != nil {
			return nil, &ProtocolError{Op: "read chunk payload", Err: err}
		}
		state.remaining -= size
	}

	if state.remaining > 0 {
		return nil, nil
	}

	msg := newMessage(state.header.typeID, state.header.streamID, state.header.timestamp, state.payload)
	state.payload = nil
	state.inMessage = false
	return msg, nil
}

func (cr *chunkReader) readBasicHeader() (basicHeader, error) {
	b := cr.buf[:1]
	if _, err := io.ReadFull(cr.r, b); err != nil {
		// 메시지 경계에서의 EOF는 정상 종료
		return basicHeader{}, err
	}

	format := b[0] >> 6
	chunkStreamID := uint32(b[0] & 0x3F)

	switch chunkStreamID {
	case 0:
		ext := cr.buf[:1]
		if _, err := io.ReadFull(cr.r, ext); err != nil {
			return basicHeader{}, &ProtocolError{Op: "read basic header", Err: err}
		}
		chunkStreamID = 64 + uint32(ext[0])
	case 1:
		ext := cr.buf[:2]
		if _, err := io.ReadFull(cr.r, ext); err != nil {
			return basicHeader{}, &ProtocolError{Op: "read basic header", Err: err}
		}
		chunkStreamID = 64 + uint32(binary.LittleEndian.Uint16(ext))
	}

	return basicHeader{fmt: format, chunkStreamID: chunkStreamID}, nil
}

func (cr *chunkReader) readMessageHeader(bh basicHeader, state *chunkStreamState) error {
	if bh.fmt != FmtType3 && state.inMessage {
		// 새 헤더가 오면 조립 중이던 메시지는 버린다
		slog.Warn("discarding partial message", "chunkStreamId", bh.chunkStreamID, "missing", state.remaining)
		state.payload = nil
		state.inMessage = false
	}

	switch bh.fmt {
	case FmtType0:
		return cr.readFmt0MessageHeader(state)
	case FmtType1:
		return cr.readFmt1MessageHeader(state)
	case FmtType2:
		return cr.readFmt2MessageHeader(state)
	default:
		return cr.readFmt3MessageHeader(state)
	}
}

func (cr *chunkReader) readFmt0MessageHeader(state *chunkStreamState) error {
	buf := cr.buf[:11]
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return &ProtocolError{Op: "read fmt0 header", Err: err}
	}

	timestamp := readUint24BE(buf[0:3])
	state.header.length = readUint24BE(buf[3:6])
	state.header.typeID = buf[6]
	state.header.streamID = binary.LittleEndian.Uint32(buf[7:11])

	state.extended = timestamp == ExtendedTimestampThreshold
	if state.extended {
		var err error
		if timestamp, err = cr.readExtendedTimestamp(); err != nil {
			return err
		}
	}

	state.header.timestamp = timestamp
	state.delta = timestamp
	cr.beginMessage(state)
	return nil
}

func (cr *chunkReader) readFmt1MessageHeader(state *chunkStreamState) error {
	buf := cr.buf[:7]
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return &ProtocolError{Op: "read fmt1 header", Err: err}
	}

	delta := readUint24BE(buf[0:3])
	state.header.length = readUint24BE(buf[3:6])
	state.header.typeID = buf[6]

	state.extended = delta == ExtendedTimestampThreshold
	if state.extended {
		var err error
		if delta, err = cr.readExtendedTimestamp(); err != nil {
			return err
		}
	}

	// streamID는 이전 헤더에서 유지
	state.header.timestamp += delta
	state.delta = delta
	cr.beginMessage(state)
	return nil
}

func (cr *chunkReader) readFmt2MessageHeader(state *chunkStreamState) error {
	buf := cr.buf[:3]
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return &ProtocolError{Op: "read fmt2 header", Err: err}
	}

	delta := readUint24BE(buf)
	state.extended = delta == ExtendedTimestampThreshold
	if state.extended {
		var err error
		if delta, err = cr.readExtendedTimestamp(); err != nil {
			return err
		}
	}

	// 길이, typeID, streamID는 이전 헤더 유지
	state.header.timestamp += delta
	state.delta = delta
	cr.beginMessage(state)
	return nil
}

func (cr *chunkReader) readFmt3MessageHeader(state *chunkStreamState) error {
	// 이전 헤더가 확장 타임스탬프를 썼다면 fmt3 청크에도 4바이트가 붙는다
	if state.extended {
		ts, err := cr.readExtendedTimestamp()
		if err != nil {
			return err
		}
		if !state.inMessage {
			state.delta = ts
		}
	}

	if state.inMessage {
		return nil
	}

	// 새 메시지: 이전 delta를 그대로 적용
	state.header.timestamp += state.delta
	cr.beginMessage(state)
	return nil
}

func (cr *chunkReader) beginMessage(state *chunkStreamState) {
	state.remaining = state.header.length
	state.payload = make([]byte, 0, min(state.header.length, maxPreallocPayload))
	state.inMessage = true
}

func (cr *chunkReader) readExtendedTimestamp() (uint32, error) {
	buf := cr.buf[:4]
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return 0, &ProtocolError{Op: "read extended timestamp", Err: err}
	}
	return binary.BigEndian.Uint32(buf), nil
}
