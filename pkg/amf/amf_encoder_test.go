package amf

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// 특정 바이트 수 이후 에러를 발생시키는 Writer
type errorAfterBytesWriter struct {
	writtenBytes int
	errorAfter   int
}

func (ew *errorAfterBytesWriter) Write(p []byte) (n int, err error) {
	if ew.writtenBytes+len(p) > ew.errorAfter {
		return 0, errors.New("write error after bytes")
	}
	ew.writtenBytes += len(p)
	return len(p), nil
}

func TestEncodeAMF0_Number(t *testing.T) {
	data, err := EncodeAMF0Sequence(3.14)
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{0x00, 0x40, 0x09, 0x1e, 0xb8, 0x51, 0xeb, 0x85, 0x1f}
	if !bytes.Equal(data, expected) {
		t.Errorf("expected %v, got %v", expected, data)
	}
}

func TestEncodeAMF0_IntegerKindsAreNumbers(t *testing.T) {
	for _, v := range []any{int(42), int32(42), int64(42), uint32(42), uint8(42), float32(42)} {
		data, err := EncodeAMF0Sequence(v)
		if err != nil {
			t.Fatalf("%T: %v", v, err)
		}
		got, err := DecodeAMF0(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("%T: %v", v, err)
		}
		if got != 42.0 {
			t.Errorf("%T: expected 42, got %v", v, got)
		}
	}
}

func TestEncodeAMF0_CommandSequence(t *testing.T) {
	obj := map[string]any{
		"level": "status",
		"code":  "NetConnection.Connect.Success",
	}
	data, err := EncodeAMF0Sequence("_result", 1.0, nil, obj)
	if err != nil {
		t.Fatal(err)
	}

	values, err := DecodeAMF0Sequence(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 4 {
		t.Fatalf("expected 4 values, got %d", len(values))
	}
	if values[0] != "_result" || values[1] != 1.0 || values[2] != nil {
		t.Errorf("unexpected header values: %v", values[:3])
	}
	info, ok := values[3].(map[string]any)
	if !ok || info["code"] != "NetConnection.Connect.Success" {
		t.Errorf("unexpected info object: %v", values[3])
	}
}

func TestEncodeAMF0_ObjectKeysSorted(t *testing.T) {
	a, err := EncodeAMF0Sequence(map[string]any{"b": 1, "a": 2, "c": 3})
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeAMF0Sequence(map[string]any{"c": 3, "a": 2, "b": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical encoding for equal maps")
	}
	if a[3] != 'a' {
		t.Errorf("expected first key 'a', got %q", a[3])
	}
}

func TestEncodeAMF0_ECMAArray(t *testing.T) {
	data, err := EncodeAMF0Sequence(ECMAArray{"width": 1280.0, "height": 720.0})
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != ecmaArrayMarker {
		t.Fatalf("expected ecma array marker, got 0x%02x", data[0])
	}
	if data[4] != 2 {
		t.Errorf("expected length hint 2, got %d", data[4])
	}

	val, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	m := val.(map[string]any)
	if m["width"] != 1280.0 || m["height"] != 720.0 {
		t.Errorf("unexpected decoded array: %v", m)
	}
}

func TestEncodeAMF0_LongString(t *testing.T) {
	long := strings.Repeat("x", 70000)
	data, err := EncodeAMF0Sequence(long)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != longStringMarker {
		t.Fatalf("expected long string marker, got 0x%02x", data[0])
	}
	val, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if val != long {
		t.Error("long string did not survive encoding")
	}
}

func TestEncodeAMF0_StrictArray(t *testing.T) {
	data, err := EncodeAMF0Sequence([]any{"a", 1.0, nil, true})
	if err != nil {
		t.Fatal(err)
	}
	val, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	arr := val.([]any)
	if len(arr) != 4 || arr[0] != "a" || arr[1] != 1.0 || arr[2] != nil || arr[3] != true {
		t.Errorf("unexpected array: %v", arr)
	}
}

func TestEncodeAMF0_UnsupportedType(t *testing.T) {
	type unsupportedType struct{}
	_, err := EncodeAMF0Sequence(unsupportedType{})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}

	_, err = EncodeAMF0Sequence(map[string]any{"bad": unsupportedType{}})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType inside object, got %v", err)
	}
}

func TestEncodeValue_WriterErrors(t *testing.T) {
	values := []any{
		nil, true, 1.0, "hello",
		map[string]any{"k": "v"},
		ECMAArray{"k": "v"},
		[]any{"a"},
	}

	for _, v := range values {
		data, err := EncodeAMF0Sequence(v)
		if err != nil {
			t.Fatal(err)
		}
		// 모든 바이트 경계에서 실패시켜 본다
		for limit := 0; limit < len(data); limit++ {
			w := &errorAfterBytesWriter{errorAfter: limit}
			if err := encodeValue(w, v, 0); err == nil {
				t.Errorf("%T: expected error when writer fails after %d bytes", v, limit)
			}
		}
	}
}
