package rtmp

import (
	"errors"
	"fmt"
)

// ProtocolError는 잘못된 핸드셰이크/청크/메시지. 연결을 즉시 종료해야 한다.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "rtmp protocol error: " + e.Op
	}
	return fmt.Sprintf("rtmp protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErrorf(op string, format string, args ...any) error {
	return &ProtocolError{Op: op, Err: fmt.Errorf(format, args...)}
}

// IsProtocolError는 err 체인에 ProtocolError가 있는지 확인한다.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ErrTimeout은 ping timeout 동안 아무 트래픽도 없어 세션을 닫을 때 사용한다.
var ErrTimeout = errors.New("rtmp: session timed out")

// ErrSessionClosed는 이미 닫힌 세션에 쓰기를 시도한 경우
var ErrSessionClosed = errors.New("rtmp: session closed")
