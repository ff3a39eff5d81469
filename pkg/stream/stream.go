package stream

import (
	"slices"
	"sync"
)

// stream은 스트림 키 하나의 상태 (퍼블리셔, 캐시, 구독자)
// 모든 필드는 mu로 보호된다.
type stream struct {
	key Key

	mu          sync.Mutex
	publisher   string
	published   bool
	metadata    *Message
	audioHeader *Message
	videoHeader *Message
	gop         []*Message
	gopWaiting  bool // GOP 상한 초과로 다음 keyframe까지 캐시 중단
	subscribers []*Subscription
}

func newStream(key Key) *stream {
	return &stream{key: key}
}

func (s *stream) bind(sessionID string) bool {
	if s.published {
		return false
	}
	s.publisher = sessionID
	s.published = true
	return true
}

func (s *stream) unbind(sessionID string) bool {
	if !s.published || s.publisher != sessionID {
		return false
	}
	s.publisher = ""
	s.published = false
	s.metadata = nil
	s.audioHeader = nil
	s.videoHeader = nil
	s.resetGOP()
	return true
}

func (s *stream) resetGOP() {
	clear(s.gop)
	s.gop = s.gop[:0]
	s.gopWaiting = false
}

// cache는 재생 시작 시 재전송할 메시지를 갱신한다.
func (s *stream) cache(msg *Message, gopEnabled bool, gopLimit int) {
	switch {
	case msg.Kind == KindMetadata:
		s.metadata = msg
		return
	case msg.isAudioSequenceHeader():
		s.audioHeader = msg
		return
	case msg.isVideoSequenceHeader():
		s.videoHeader = msg
		return
	}

	if !gopEnabled || msg.TypeID == TypeData {
		return
	}

	if msg.IsKeyframe() {
		s.resetGOP()
		s.gop = append(s.gop, msg)
		return
	}

	// keyframe 이전 프레임은 단독으로 디코딩할 수 없으므로 버린다
	if len(s.gop) == 0 || s.gopWaiting {
		return
	}

	s.gop = append(s.gop, msg)
	if len(s.gop) > gopLimit {
		s.resetGOP()
		s.gopWaiting = true
	}
}

// replay는 metadata, sequence header, GOP 순서로 구독자 큐에 넣는다.
func (s *stream) replay(sub *Subscription) {
	if s.metadata != nil {
		sub.q.push(s.metadata)
	}
	if s.audioHeader != nil {
		sub.q.push(s.audioHeader)
	}
	if s.videoHeader != nil {
		sub.q.push(s.videoHeader)
	}
	for _, msg := range s.gop {
		sub.q.push(msg)
	}
}

// broadcast는 구독 순서대로 전달하고 버려진 메시지 수를 반환한다.
func (s *stream) broadcast(msg *Message) int {
	dropped := 0
	for _, sub := range s.subscribers {
		if sub.q.push(msg) {
			dropped++
		}
	}
	return dropped
}

func (s *stream) removeSubscriber(sub *Subscription) bool {
	i := slices.IndexFunc(s.subscribers, func(other *Subscription) bool { return other.id == sub.id })
	if i < 0 {
		return false
	}
	s.subscribers = slices.Delete(s.subscribers, i, i+1)
	return true
}

func (s *stream) idle() bool {
	return !s.published && len(s.subscribers) == 0
}
