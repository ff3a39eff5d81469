package rtmp

import (
	"encoding/binary"
)

// 프로토콜 제어 메시지 생성

func newSetChunkSizeMessage(size uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size&0x7FFFFFFF)
	return newMessage(MsgTypeSetChunkSize, 0, 0, payload)
}

func newAcknowledgementMessage(sequence uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, sequence)
	return newMessage(MsgTypeAcknowledgement, 0, 0, payload)
}

func newWindowAckSizeMessage(size uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, size)
	return newMessage(MsgTypeWindowAckSize, 0, 0, payload)
}

func newSetPeerBandwidthMessage(size uint32, limitType byte) *Message {
	payload := make([]byte, 5)
	binary.BigEndian.PutUint32(payload, size)
	payload[4] = limitType
	return newMessage(MsgTypeSetPeerBW, 0, 0, payload)
}

func newUserControlMessage(event uint16, data ...uint32) *Message {
	payload := make([]byte, 2, 2+4*len(data))
	binary.BigEndian.PutUint16(payload, event)
	for _, d := range data {
		payload = binary.BigEndian.AppendUint32(payload, d)
	}
	return newMessage(MsgTypeUserControl, 0, 0, payload)
}

// 프로토콜 제어 메시지 해석

func parseUint32Payload(op string, payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, protocolErrorf(op, "payload too short: %d bytes", len(payload))
	}
	return binary.BigEndian.Uint32(payload[:4]), nil
}

func parseSetChunkSize(payload []byte) (uint32, error) {
	size, err := parseUint32Payload("set chunk size", payload)
	if err != nil {
		return 0, err
	}
	// 최상위 비트는 반드시 0
	if size&0x80000000 != 0 || size == 0 {
		return 0, protocolErrorf("set chunk size", "invalid chunk size 0x%x", size)
	}
	return size, nil
}

type userControlEvent struct {
	event uint16
	data  []byte
}

func parseUserControl(payload []byte) (userControlEvent, error) {
	if len(payload) < 2 {
		return userControlEvent{}, protocolErrorf("user control", "payload too short: %d bytes", len(payload))
	}
	return userControlEvent{
		event: binary.BigEndian.Uint16(payload[:2]),
		data:  payload[2:],
	}, nil
}

func (e userControlEvent) uint32At(i int) (uint32, bool) {
	off := i * 4
	if len(e.data) < off+4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(e.data[off : off+4]), true
}
