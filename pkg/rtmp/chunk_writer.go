package rtmp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// 청크 스트림별 마지막 전송 상태
type chunkWriterState struct {
	header   messageHeader
	delta    uint32
	extended bool
}

// chunkWriter는 메시지를 협상된 청크 크기로 잘라 전송한다.
// 같은 청크 스트림의 이전 헤더와 비교해 가능한 한 짧은 헤더 형식을 고른다.
type chunkWriter struct {
	w         io.Writer
	chunkSize uint32
	states    map[uint32]*chunkWriterState
	scratch   []byte
}

func newChunkWriter(w io.Writer) *chunkWriter {
	return &chunkWriter{
		w:         w,
		chunkSize: DefaultChunkSize,
		states:    make(map[uint32]*chunkWriterState),
		scratch:   make([]byte, 0, 18),
	}
}

// setChunkSize는 다음 메시지부터 적용된다.
// 상대에게 Set Chunk Size를 먼저 보낸 뒤에 호출해야 한다.
func (cw *chunkWriter) setChunkSize(size uint32) {
	cw.chunkSize = size
}

func (cw *chunkWriter) writeMessage(msg *Message) error {
	return cw.writeMessageOn(chunkStreamIDFor(msg.TypeID), msg)
}

// writeMessageOn은 지정한 청크 스트림으로 메시지를 전송한다.
func (cw *chunkWriter) writeMessageOn(chunkStreamID uint32, msg *Message) error {
	if chunkStreamID < minChunkStreamID || chunkStreamID > maxChunkStreamID {
		return fmt.Errorf("chunk stream ID %d out of range", chunkStreamID)
	}
	if len(msg.Payload) > 0xFFFFFF {
		return fmt.Errorf("message too large: %d bytes", len(msg.Payload))
	}

	header := messageHeader{
		timestamp: msg.Timestamp,
		length:    uint32(len(msg.Payload)),
		typeID:    msg.TypeID,
		streamID:  msg.StreamID,
	}

	state, ok := cw.states[chunkStreamID]
	format := cw.determineChunkFormat(state, ok, header)
	if !ok {
		state = &chunkWriterState{}
		cw.states[chunkStreamID] = state
	}

	// 헤더에 쓸 timestamp 필드 값 (fmt0: 절대값, 그 외: delta)
	field := header.timestamp
	if format != FmtType0 {
		field = header.timestamp - state.header.timestamp
	}
	if format != FmtType3 {
		state.extended = field >= ExtendedTimestampThreshold
	}
	state.header = header
	state.delta = field

	// 첫 청크
	buf := cw.appendBasicHeader(cw.scratch[:0], format, chunkStreamID)
	buf = cw.appendMessageHeader(buf, format, header, field, state.extended)
	if _, err := cw.w.Write(buf); err != nil {
		return err
	}

	payload := msg.Payload
	for {
		n := min(uint32(len(payload)), cw.chunkSize)
		if n > 0 {
			if _, err := cw.w.Write(payload[:n]); err != nil {
				return err
			}
		}
		payload = payload[n:]
		if len(payload) == 0 {
			return nil
		}

		// 연속 청크: fmt3 (확장 타임스탬프는 반복)
		buf = cw.appendBasicHeader(cw.scratch[:0], FmtType3, chunkStreamID)
		if state.extended {
			buf = binary.BigEndian.AppendUint32(buf, field)
		}
		if _, err := cw.w.Write(buf); err != nil {
			return err
		}
	}
}

func (cw *chunkWriter) determineChunkFormat(last *chunkWriterState, exists bool, current messageHeader) byte {
	// 첫 메시지, 스트림 변경, 타임스탬프 역행은 전체 헤더
	if !exists || current.streamID != last.header.streamID || current.timestamp < last.header.timestamp {
		return FmtType0
	}

	if current.length != last.header.length || current.typeID != last.header.typeID {
		return FmtType1
	}

	if current.timestamp-last.header.timestamp != last.delta {
		return FmtType2
	}

	return FmtType3
}

func (cw *chunkWriter) appendBasicHeader(buf []byte, format byte, chunkStreamID uint32) []byte {
	switch {
	case chunkStreamID < 64:
		return append(buf, format<<6|byte(chunkStreamID))
	case chunkStreamID < 320:
		return append(buf, format<<6, byte(chunkStreamID-64))
	default:
		v := chunkStreamID - 64
		return append(buf, format<<6|1, byte(v), byte(v>>8))
	}
}

func (cw *chunkWriter) appendMessageHeader(buf []byte, format byte, h messageHeader, field uint32, extended bool) []byte {
	var ts [3]byte
	if extended {
		putUint24(ts[:], ExtendedTimestampThreshold)
	} else {
		putUint24(ts[:], field)
	}

	switch format {
	case FmtType0:
		var rest [8]byte
		putUint24(rest[0:3], h.length)
		rest[3] = h.typeID
		binary.LittleEndian.PutUint32(rest[4:8], h.streamID)
		buf = append(buf, ts[:]...)
		buf = append(buf, rest[:]...)
	case FmtType1:
		var rest [4]byte
		putUint24(rest[0:3], h.length)
		rest[3] = h.typeID
		buf = append(buf, ts[:]...)
		buf = append(buf, rest[:]...)
	case FmtType2:
		buf = append(buf, ts[:]...)
	}

	if extended {
		buf = binary.BigEndian.AppendUint32(buf, field)
	}
	return buf
}
