package rtmp

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"log/slog"
	"time"
)

type handshakeMode int

const (
	handshakePlain handshakeMode = iota
	handshakeDigest
)

func (m handshakeMode) String() string {
	if m == handshakeDigest {
		return "digest"
	}
	return "plain"
}

const (
	digestLength    = 32
	serverVersion   = 0x0d0e0a0d
	digestBaseFirst = 772 // scheme 1
	digestBaseAlt   = 8   // scheme 0
)

var (
	hsClientFullKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'P', 'l', 'a', 'y', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
	hsServerFullKey = []byte{
		'G', 'e', 'n', 'u', 'i', 'n', 'e', ' ', 'A', 'd', 'o', 'b', 'e', ' ',
		'F', 'l', 'a', 's', 'h', ' ', 'M', 'e', 'd', 'i', 'a', ' ',
		'S', 'e', 'r', 'v', 'e', 'r', ' ',
		'0', '0', '1',
		0xF0, 0xEE, 0xC2, 0x4A, 0x80, 0x68, 0xBE, 0xE8, 0x2E, 0x00, 0xD0, 0xD1,
		0x02, 0x9E, 0x7E, 0x57, 0x6E, 0xEC, 0x5D, 0x2D, 0x29, 0x80, 0x6F, 0xAB,
		0x93, 0xB8, 0xE6, 0x36, 0xCF, 0xEB, 0x31, 0xAE,
	}
	hsClientPartialKey = hsClientFullKey[:30]
	hsServerPartialKey = hsServerFullKey[:36]
)

var processStart = time.Now()

// serverHandshake는 C0/C1 → S0/S1/S2 → C2 순서로 서버측 핸드셰이크를 수행한다.
// C0 버전이 틀리면 아무것도 쓰지 않고 실패한다.
// strict이면 C2가 S1을 올바르게 echo하지 않을 때도 실패한다.
func serverHandshake(rw io.ReadWriter, strict bool) (handshakeMode, error) {
	// C0
	c0 := make([]byte, 1)
	if _, err := io.ReadFull(rw, c0); err != nil {
		return handshakePlain, &ProtocolError{Op: "read C0", Err: err}
	}
	if c0[0] != RTMPVersion {
		return handshakePlain, protocolErrorf("read C0", "unsupported RTMP version: %d", c0[0])
	}

	// C1
	c1 := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(rw, c1); err != nil {
		return handshakePlain, &ProtocolError{Op: "read C1", Err: err}
	}

	// S0 + S1 + S2
	s0s1s2 := make([]byte, 1+HandshakeSize*2)
	s0s1s2[0] = RTMPVersion
	s1 := s0s1s2[1 : 1+HandshakeSize]
	s2 := s0s1s2[1+HandshakeSize:]

	mode := handshakePlain
	var serverDigest []byte
	if clientDigest, ok := hsParseC1(c1); ok {
		mode = handshakeDigest
		serverDigest = hsCreateS1(s1, uptimeMillis())
		hsCreateS2(s2, clientDigest)
	} else {
		hsCreatePlainS1(s1, uptimeMillis())
		copy(s2, c1)
		// time2 필드는 C1을 읽은 시각
		binary.BigEndian.PutUint32(s2[4:8], uptimeMillis())
	}

	if _, err := rw.Write(s0s1s2); err != nil {
		return mode, &ProtocolError{Op: "write S0S1S2", Err: err}
	}
	if f, ok := rw.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return mode, &ProtocolError{Op: "flush S0S1S2", Err: err}
		}
	}

	// C2
	c2 := make([]byte, HandshakeSize)
	if _, err := io.ReadFull(rw, c2); err != nil {
		return mode, &ProtocolError{Op: "read C2", Err: err}
	}

	if !hsValidateC2(mode, c2, s1, serverDigest) {
		if strict {
			return mode, protocolErrorf("read C2", "C2 does not echo S1 (%s handshake)", mode)
		}
		slog.Debug("C2 does not echo S1, accepting anyway", "mode", mode.String())
	}

	return mode, nil
}

func uptimeMillis() uint32 {
	return uint32(time.Since(processStart).Milliseconds())
}

func hsCreatePlainS1(s1 []byte, now uint32) {
	binary.BigEndian.PutUint32(s1[0:4], now)
	binary.BigEndian.PutUint32(s1[4:8], 0)
	_, _ = rand.Read(s1[8:])
}

func hsMakeDigest(key []byte, src []byte, gap int) []byte {
	h := hmac.New(sha256.New, key)
	if gap < 0 {
		h.Write(src)
	} else {
		h.Write(src[:gap])
		h.Write(src[gap+digestLength:])
	}
	return h.Sum(nil)
}

// 다이제스트 위치: base부터 4바이트 합을 728로 나눈 나머지 + base + 4
func hsCalcDigestPos(p []byte, base int) int {
	pos := 0
	for i := 0; i < 4; i++ {
		pos += int(p[base+i])
	}
	return pos%728 + base + 4
}

func hsFindDigest(p []byte, key []byte, base int) int {
	gap := hsCalcDigestPos(p, base)
	digest := hsMakeDigest(key, p, gap)
	if !hmac.Equal(p[gap:gap+digestLength], digest) {
		return -1
	}
	return gap
}

// hsParseC1은 C1에서 클라이언트 다이제스트를 찾는다. 버전 필드가 0이면 plain.
func hsParseC1(c1 []byte) ([]byte, bool) {
	if binary.BigEndian.Uint32(c1[4:8]) == 0 {
		return nil, false
	}
	pos := hsFindDigest(c1, hsClientPartialKey, digestBaseFirst)
	if pos == -1 {
		pos = hsFindDigest(c1, hsClientPartialKey, digestBaseAlt)
	}
	if pos == -1 {
		return nil, false
	}
	return c1[pos : pos+digestLength], true
}

// hsCreateS1은 서버 다이제스트가 포함된 S1을 만들고 그 다이제스트를 반환한다.
func hsCreateS1(s1 []byte, now uint32) []byte {
	_, _ = rand.Read(s1[8:])
	binary.BigEndian.PutUint32(s1[0:4], now)
	binary.BigEndian.PutUint32(s1[4:8], serverVersion)
	gap := hsCalcDigestPos(s1, digestBaseAlt)
	digest := hsMakeDigest(hsServerPartialKey, s1, gap)
	copy(s1[gap:], digest)
	return s1[gap : gap+digestLength]
}

func hsCreateS2(s2 []byte, clientDigest []byte) {
	_, _ = rand.Read(s2)
	key := hsMakeDigest(hsServerFullKey, clientDigest, -1)
	gap := len(s2) - digestLength
	digest := hsMakeDigest(key, s2, gap)
	copy(s2[gap:], digest)
}

func hsValidateC2(mode handshakeMode, c2, s1, serverDigest []byte) bool {
	if mode == handshakePlain {
		return bytes.Equal(c2[8:], s1[8:])
	}
	key := hsMakeDigest(hsClientFullKey, serverDigest, -1)
	gap := len(c2) - digestLength
	return hmac.Equal(c2[gap:], hsMakeDigest(key, c2, gap))
}
