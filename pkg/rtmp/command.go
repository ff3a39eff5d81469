package rtmp

import (
	"bytes"
	"fmt"

	"streamd/pkg/amf"
)

// command는 AMF0으로 인코딩된 명령 메시지
// (이름, 트랜잭션 ID, command object, 추가 인자)
type command struct {
	name          string
	transactionID float64
	object        map[string]any
	args          []any
}

// decodeCommand는 AMF0/AMF3 command 메시지 payload를 해석한다.
func decodeCommand(typeID uint8, payload []byte) (*command, error) {
	if typeID == MsgTypeAMF3Command && len(payload) > 0 && payload[0] == 0x00 {
		// AMF3 command는 첫 바이트 0x00 뒤에 AMF0 값이 온다
		payload = payload[1:]
	}

	values, err := amf.DecodeAMF0Sequence(bytes.NewReader(payload))
	if err != nil {
		return nil, &ProtocolError{Op: "decode command", Err: err}
	}
	if len(values) < 2 {
		return nil, protocolErrorf("decode command", "expected at least 2 values, got %d", len(values))
	}

	name, ok := values[0].(string)
	if !ok {
		return nil, protocolErrorf("decode command", "invalid command name type %T", values[0])
	}
	transactionID, ok := values[1].(float64)
	if !ok {
		return nil, protocolErrorf("decode command", "invalid transaction ID type %T", values[1])
	}

	cmd := &command{name: name, transactionID: transactionID}
	if len(values) > 2 {
		if obj, ok := values[2].(map[string]any); ok {
			cmd.object = obj
		}
		cmd.args = values[3:]
	}
	return cmd, nil
}

// stringArg는 i번째 추가 인자를 문자열로 반환한다.
func (c *command) stringArg(i int) (string, bool) {
	if i >= len(c.args) {
		return "", false
	}
	s, ok := c.args[i].(string)
	return s, ok
}

func (c *command) boolArg(i int) (bool, bool) {
	if i >= len(c.args) {
		return false, false
	}
	b, ok := c.args[i].(bool)
	return b, ok
}

func (c *command) objectString(key string) string {
	if c.object == nil {
		return ""
	}
	s, _ := c.object[key].(string)
	return s
}

func newCommandMessage(streamID uint32, values ...any) (*Message, error) {
	payload, err := amf.EncodeAMF0Sequence(values...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return newMessage(MsgTypeAMF0Command, streamID, 0, payload), nil
}

func newDataMessage(streamID uint32, values ...any) (*Message, error) {
	payload, err := amf.EncodeAMF0Sequence(values...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	return newMessage(MsgTypeAMF0Data, streamID, 0, payload), nil
}

func statusObject(level, code, description string) map[string]any {
	return map[string]any{
		"level":       level,
		"code":        code,
		"description": description,
	}
}
