package rtmp

// RTMP 메시지 타입
const (
	MsgTypeSetChunkSize     = 1
	MsgTypeAbort            = 2
	MsgTypeAcknowledgement  = 3
	MsgTypeUserControl      = 4
	MsgTypeWindowAckSize    = 5
	MsgTypeSetPeerBW        = 6
	MsgTypeAudio            = 8
	MsgTypeVideo            = 9
	MsgTypeAMF3Data         = 15
	MsgTypeAMF3SharedObject = 16
	MsgTypeAMF3Command      = 17
	MsgTypeAMF0Data         = 18
	MsgTypeAMF0SharedObject = 19
	MsgTypeAMF0Command      = 20
)

// User Control 이벤트 타입
const (
	UserControlStreamBegin      = 0
	UserControlStreamEOF        = 1
	UserControlStreamDry        = 2
	UserControlSetBufferLength  = 3
	UserControlStreamIsRecorded = 4
	UserControlPingRequest      = 6
	UserControlPingResponse     = 7
)

// 청크 스트림 ID
const (
	ChunkStreamProtocol = 2 // 프로토콜 제어 메시지 (Set Chunk Size 등)
	ChunkStreamCommand  = 3 // 명령어 메시지 (connect, publish, play 등)
	ChunkStreamAudio    = 4
	ChunkStreamVideo    = 5
	ChunkStreamScript   = 6 // 스크립트 데이터 (onMetaData 등)
)

const (
	RTMPVersion   = 0x03
	HandshakeSize = 1536
)

const (
	DefaultChunkSize = 128
	MaxChunkSize     = 0x7FFFFFFF // 최상위 비트는 항상 0
)

const ExtendedTimestampThreshold = 0xFFFFFF

// Fmt 타입 (청크 헤더 형식)
const (
	FmtType0 = 0 // 11바이트 - 전체 메시지 헤더
	FmtType1 = 1 // 7바이트 - 스트림 ID 제외
	FmtType2 = 2 // 3바이트 - 타임스탬프 delta만
	FmtType3 = 3 // 0바이트 - 헤더 없음
)

// basic header로 표현 가능한 청크 스트림 ID 범위
const (
	minChunkStreamID = 2
	maxChunkStreamID = 65599
)

// connect 응답 시 서버가 알리는 기본 대역폭 값
const (
	defaultWindowAckSize = 5000000
	defaultPeerBandwidth = 5000000
	peerBandwidthDynamic = 2
)
