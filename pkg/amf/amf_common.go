package amf

import "errors"

// AMF0 타입 마커
const (
	numberMarker      = 0x00
	booleanMarker     = 0x01
	stringMarker      = 0x02
	objectMarker      = 0x03
	nullMarker        = 0x05
	undefinedMarker   = 0x06
	ecmaArrayMarker   = 0x08
	objectEndMarker   = 0x09
	strictArrayMarker = 0x0A
	dateMarker        = 0x0B
	longStringMarker  = 0x0C
)

// 중첩 object/array 최대 깊이
const maxNestingDepth = 64

var (
	ErrUnsupportedType   = errors.New("amf: unsupported AMF0 type")
	ErrUnsupportedMarker = errors.New("amf: unsupported AMF0 marker")
	ErrNestingTooDeep    = errors.New("amf: nesting too deep")
)

// ECMAArray는 object 대신 ECMA array(0x08)로 인코딩되는 맵 (onMetaData 등)
type ECMAArray map[string]any
