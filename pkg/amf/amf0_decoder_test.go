package amf

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"testing"
	"time"
)

func TestDecodeAMF0Sequence(t *testing.T) {
	data := []byte{0x00,
		0x40, 0x09, 0x1e, 0xb8, 0x51, 0xeb, 0x85, 0x1f,
		0x01, 0x01,
		0x02, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o',
		0x03, 0x00, 0x03, 'f', 'o', 'o', 0x02, 0x00, 0x03, 'b', 'a', 'r', 0x00, 0x00, 0x09}
	values, err := DecodeAMF0Sequence(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 4 {
		t.Fatalf("expected 4 values, got %d", len(values))
	}
	if v, ok := values[0].(float64); !ok || v != 3.14 {
		t.Errorf("expected 3.14, got %v", values[0])
	}
	if v, ok := values[1].(bool); !ok || !v {
		t.Errorf("expected true, got %v", values[1])
	}
	if v, ok := values[2].(string); !ok || v != "hello" {
		t.Errorf("expected hello, got %v", values[2])
	}
	if v, ok := values[3].(map[string]any); !ok || v["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", values[3])
	}
}

func TestDecodeAMF0Sequence_Empty(t *testing.T) {
	values, err := DecodeAMF0Sequence(bytes.NewReader(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 0 {
		t.Errorf("expected no values, got %v", values)
	}
}

// 마커만 있고 값이 없는 경우 정상 종료로 보면 안 된다
func TestDecodeAMF0Sequence_TruncatedAfterMarker(t *testing.T) {
	data := []byte{0x02, 0x00, 0x01, 'a', 0x00}
	_, err := DecodeAMF0Sequence(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected error for value cut after marker")
	}
}

func TestDecodeAMF0_Values(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want any
	}{
		{"number", []byte{0x00, 0x40, 0x09, 0x1e, 0xb8, 0x51, 0xeb, 0x85, 0x1f}, 3.14},
		{"boolean", []byte{0x01, 0x01}, true},
		{"string", []byte{0x02, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}, "hello"},
		{"empty string", []byte{0x02, 0x00, 0x00}, ""},
		{"long string", []byte{0x0c, 0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}, "hello"},
		{"null", []byte{0x05}, nil},
		{"undefined", []byte{0x06}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, err := DecodeAMF0(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatal(err)
			}
			if val != tt.want {
				t.Errorf("expected %v, got %v", tt.want, val)
			}
		})
	}
}

func TestDecodeAMF0_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty reader", nil},
		{"unsupported marker", []byte{0xff}},
		{"short number", []byte{0x00, 0x40, 0x09, 0x1e, 0xb8, 0x51, 0xeb, 0x85}},
		{"number without body", []byte{0x00}},
		{"short boolean", []byte{0x01}},
		{"short string length", []byte{0x02, 0x00}},
		{"short string data", []byte{0x02, 0x00, 0x05, 'h', 'e', 'l'}},
		{"short long string", []byte{0x0c, 0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l'}},
		{"object short key", []byte{0x03, 0x00, 0x03, 'f', 'o'}},
		{"object short value", []byte{0x03, 0x00, 0x03, 'f', 'o', 'o', 0x02, 0x00}},
		{"object missing end", []byte{0x03, 0x00, 0x03, 'f', 'o', 'o', 0x02, 0x00, 0x03, 'b', 'a', 'r', 0x00, 0x00}},
		{"object invalid end", []byte{0x03, 0x00, 0x03, 'f', 'o', 'o', 0x02, 0x00, 0x03, 'b', 'a', 'r', 0x00, 0x00, 0x00}},
		{"ecma short length", []byte{0x08, 0x00, 0x00}},
		{"strict array short length", []byte{0x0A, 0x00, 0x00, 0x00}},
		{"strict array short element", []byte{0x0A, 0x00, 0x00, 0x00, 0x02, 0x02, 0x00, 0x01, 'a', 0x02, 0x00, 0x01}},
		{"strict array huge count", []byte{0x0A, 0xff, 0xff, 0xff, 0xff, 0x05}},
		{"date short", []byte{0x0B, 0x00, 0x01}},
		{"date missing offset", []byte{0x0B, 0, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAMF0(bytes.NewReader(tt.data))
			if err == nil {
				t.Fatal("expected error but got nil")
			}
		})
	}
}

func TestDecodeAMF0_UnsupportedMarkerIsTyped(t *testing.T) {
	_, err := DecodeAMF0(bytes.NewReader([]byte{0x11}))
	if !errors.Is(err, ErrUnsupportedMarker) {
		t.Fatalf("expected ErrUnsupportedMarker, got %v", err)
	}
}

func TestDecodeAMF0_TruncatedIsUnexpectedEOF(t *testing.T) {
	_, err := DecodeAMF0(bytes.NewReader([]byte{0x00}))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecodeAMF0_ECMAArray(t *testing.T) {
	data := []byte{
		0x08,                   // ecmaArrayMarker
		0x00, 0x00, 0x00, 0x01, // length
		0x00, 0x03, 'k', 'e', 'y',
		0x02, 0x00, 0x03, 'v', 'a', 'l',
		0x00, 0x00, 0x09, // end
	}
	val, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := val.(map[string]any)
	if !ok || m["key"] != "val" {
		t.Errorf("expected key=val, got %v", m)
	}
}

func TestDecodeAMF0_StrictArray(t *testing.T) {
	data := []byte{
		0x0A,                   // strictArrayMarker
		0x00, 0x00, 0x00, 0x02, // length = 2
		0x02, 0x00, 0x01, 'a',
		0x02, 0x00, 0x01, 'b',
	}
	val, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := val.([]any)
	if !ok || len(arr) != 2 || arr[0] != "a" || arr[1] != "b" {
		t.Errorf("expected [a b], got %v", val)
	}
}

func TestDecodeAMF0_Date(t *testing.T) {
	expected := time.Date(2023, 3, 28, 19, 40, 0, 123*1e6, time.UTC)

	data, err := EncodeAMF0Sequence(expected)
	if err != nil {
		t.Fatal(err)
	}

	val, err := DecodeAMF0(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := val.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", val)
	}
	if !got.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestDecodeAMF0_NestingTooDeep(t *testing.T) {
	// {"a": {"a": {"a": ...}}}
	var data []byte
	for i := 0; i < maxNestingDepth+2; i++ {
		data = append(data, 0x03, 0x00, 0x01, 'a')
	}
	data = append(data, 0x05)

	_, err := DecodeAMF0(bytes.NewReader(data))
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Fatalf("expected ErrNestingTooDeep, got %v", err)
	}
}

func TestDecodeAMF0_OversizedLengthDoesNotAllocate(t *testing.T) {
	data := []byte{longStringMarker, 0xFF, 0xFF, 0xFF, 0xFF}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := DecodeAMF0Sequence(bytes.NewReader(data))
	runtime.ReadMemStats(&after)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if delta := after.TotalAlloc - before.TotalAlloc; delta > 1<<20 {
		t.Fatalf("allocated %d bytes for a 5-byte input", delta)
	}
}

func TestDecodeAMF0_OversizedLengthWithoutLen(t *testing.T) {
	// Len()이 없는 reader는 실제로 읽은 만큼만 버퍼가 커진다
	data := []byte{longStringMarker, 0xFF, 0xFF, 0xFF, 0xFF, 'a', 'b'}
	_, err := DecodeAMF0(io.MultiReader(bytes.NewReader(data)))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}

	short := []byte{stringMarker, 0x00, 0x05, 'a', 'b'}
	if _, err := DecodeAMF0(io.MultiReader(bytes.NewReader(short))); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}
