package amf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// DecodeAMF0Sequence는 reader가 끝날 때까지 AMF0 값을 연속으로 디코딩한다.
// 값 경계에서의 EOF만 정상 종료로 취급한다.
func DecodeAMF0Sequence(r io.Reader) ([]any, error) {
	values := make([]any, 0, 5)

	for {
		val, err := DecodeAMF0(r)
		switch {
		case err == nil:
			values = append(values, val)
		case errors.Is(err, io.EOF):
			return values, nil
		default:
			return nil, fmt.Errorf("AMF0 decode failed: %w", err)
		}
	}
}

// DecodeAMF0은 값 하나를 디코딩한다. 마커를 읽기 전 EOF면 io.EOF를 그대로 반환한다.
func DecodeAMF0(r io.Reader) (any, error) {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(r, marker); err != nil {
		return nil, err
	}

	val, err := decodeValue(r, marker[0], 0)
	if errors.Is(err, io.EOF) {
		// 마커 뒤에서 끊긴 경우는 잘린 데이터
		return nil, io.ErrUnexpectedEOF
	}
	return val, err
}

func decodeNested(r io.Reader, depth int) (any, error) {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(r, marker); err != nil {
		return nil, err
	}
	return decodeValue(r, marker[0], depth)
}

func decodeValue(r io.Reader, marker byte, depth int) (any, error) {
	if depth > maxNestingDepth {
		return nil, ErrNestingTooDeep
	}

	switch marker {
	case numberMarker:
		return decodeNumber(r)
	case booleanMarker:
		return decodeBoolean(r)
	case stringMarker:
		return decodeString(r)
	case objectMarker:
		return decodeObject(r, depth+1)
	case nullMarker, undefinedMarker:
		return nil, nil
	case ecmaArrayMarker:
		return decodeECMAArray(r, depth+1)
	case strictArrayMarker:
		return decodeStrictArray(r, depth+1)
	case dateMarker:
		return decodeDate(r)
	case longStringMarker:
		return decodeLongString(r)
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedMarker, marker)
	}
}

func decodeNumber(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

func decodeBoolean(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func decodeString(r io.Reader) (string, error) {
	var length [2]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", err
	}
	return readUTF8(r, uint32(binary.BigEndian.Uint16(length[:])))
}

func decodeLongString(r io.Reader) (string, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", err
	}
	return readUTF8(r, binary.BigEndian.Uint32(length[:]))
}

func readUTF8(r io.Reader, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	// 길이는 상대가 보낸 값이므로 실제 남은 데이터보다 크게 할당하지 않는다
	if lr, ok := r.(interface{ Len() int }); ok {
		if int64(length) > int64(lr.Len()) {
			return "", io.ErrUnexpectedEOF
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", io.ErrUnexpectedEOF
		}
		return string(buf), nil
	}

	buf, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil || uint32(len(buf)) != length {
		return "", io.ErrUnexpectedEOF
	}
	return string(buf), nil
}

func decodeECMAArray(r io.Reader, depth int) (map[string]any, error) {
	// 길이 필드는 힌트일 뿐이고 실제 끝은 object end 마커로 판단
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	return decodeObject(r, depth)
}

func decodeObject(r io.Reader, depth int) (map[string]any, error) {
	obj := make(map[string]any)
	end := make([]byte, 1)

	for {
		key, err := decodeString(r)
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		if len(key) == 0 {
			if _, err := io.ReadFull(r, end); err != nil {
				return nil, io.ErrUnexpectedEOF
			}
			if end[0] == objectEndMarker {
				return obj, nil
			}
			return nil, errors.New("expected object end marker")
		}
		val, err := decodeNested(r, depth)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		obj[key] = val
	}
}

func decodeStrictArray(r io.Reader, depth int) ([]any, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(buf[:])

	// count는 신뢰할 수 없으므로 미리 할당하지 않는다
	arr := make([]any, 0, min(count, 64))
	for i := uint32(0); i < count; i++ {
		v, err := decodeNested(r, depth)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func decodeDate(r io.Reader) (time.Time, error) {
	millis, err := decodeNumber(r)
	if err != nil {
		return time.Time{}, err
	}

	// timezone (항상 무시)
	offset := make([]byte, 2)
	if _, err := io.ReadFull(r, offset); err != nil {
		return time.Time{}, io.ErrUnexpectedEOF
	}

	return time.UnixMilli(int64(millis)).UTC(), nil
}
