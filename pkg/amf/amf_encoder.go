package amf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"
)

// EncodeAMF0Sequence는 값들을 순서대로 AMF0으로 인코딩한다.
func EncodeAMF0Sequence(values ...any) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, val := range values {
		if err := encodeValue(buf, val, 0); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(w io.Writer, value any, depth int) error {
	if depth > maxNestingDepth {
		return ErrNestingTooDeep
	}

	switch v := value.(type) {
	case nil:
		return writeByte(w, nullMarker)
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		_, err := w.Write([]byte{booleanMarker, b})
		return err
	case float64:
		return encodeNumber(w, v)
	case float32:
		return encodeNumber(w, float64(v))
	case int:
		return encodeNumber(w, float64(v))
	case int32:
		return encodeNumber(w, float64(v))
	case int64:
		return encodeNumber(w, float64(v))
	case uint32:
		return encodeNumber(w, float64(v))
	case uint8:
		return encodeNumber(w, float64(v))
	case string:
		return encodeString(w, v)
	case ECMAArray:
		return encodeECMAArray(w, v, depth+1)
	case map[string]any:
		return encodeObject(w, v, depth+1)
	case []any:
		return encodeStrictArray(w, v, depth+1)
	case time.Time:
		return encodeDate(w, v)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, value)
	}
}

func encodeNumber(w io.Writer, v float64) error {
	var buf [9]byte
	buf[0] = numberMarker
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

func encodeString(w io.Writer, s string) error {
	length := len(s)
	if length < 65536 {
		if err := writeByte(w, stringMarker); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint16(length)); err != nil {
			return err
		}
	} else {
		if err := writeByte(w, longStringMarker); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(length)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, s)
	return err
}

func encodeObject(w io.Writer, obj map[string]any, depth int) error {
	if err := writeByte(w, objectMarker); err != nil {
		return err
	}
	return encodeProperties(w, obj, depth)
}

func encodeECMAArray(w io.Writer, arr ECMAArray, depth int) error {
	if err := writeByte(w, ecmaArrayMarker); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(arr))); err != nil {
		return err
	}
	return encodeProperties(w, arr, depth)
}

// 키를 정렬해서 쓰므로 같은 맵은 항상 같은 바이트가 된다
func encodeProperties(w io.Writer, props map[string]any, depth int) error {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := encodeObjectProperty(w, key, props[key], depth); err != nil {
			return err
		}
	}
	// object end marker: 0x00 0x00 0x09
	_, err := w.Write([]byte{0x00, 0x00, objectEndMarker})
	return err
}

func encodeObjectProperty(w io.Writer, key string, val any, depth int) error {
	keyLen := len(key)
	if keyLen > 65535 {
		return errors.New("object key too long")
	}
	if err := binary.Write(w, binary.BigEndian, uint16(keyLen)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, key); err != nil {
		return err
	}
	return encodeValue(w, val, depth)
}

func encodeStrictArray(w io.Writer, arr []any, depth int) error {
	if err := writeByte(w, strictArrayMarker); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(arr))); err != nil {
		return err
	}
	for _, v := range arr {
		if err := encodeValue(w, v, depth); err != nil {
			return err
		}
	}
	return nil
}

func encodeDate(w io.Writer, t time.Time) error {
	if err := writeByte(w, dateMarker); err != nil {
		return err
	}
	ms := float64(t.UnixMilli())
	if err := binary.Write(w, binary.BigEndian, ms); err != nil {
		return err
	}
	// timezone, always 0
	return binary.Write(w, binary.BigEndian, int16(0))
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}
