// Package stream keeps the table of live streams: which session publishes
// each stream key, which sessions play it, and the cached media a new player
// needs to start decoding immediately.
package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"streamd/pkg/hook"
)

const (
	DefaultGOPCacheSize = 4096
	DefaultQueueSize    = 8192
)

// 재생 시작 시 GOP 외에 추가로 넣는 메시지 (metadata, audio/video sequence header)
const replayExtra = 3

type Options struct {
	GOPCache     bool
	GOPCacheSize int // GOP 캐시에 담을 최대 메시지 수
	QueueSize    int // 구독자별 큐 크기
	Bus          *hook.Bus
}

// Registry maps stream keys to their publisher and subscribers.
// The map has its own lock; each stream has another, so operations on
// different keys only contend for the map lookup.
type Registry struct {
	opts Options
	bus  *hook.Bus

	mu      sync.Mutex
	streams map[Key]*stream

	nextSubID atomic.Uint64
	dropped   atomic.Uint64
}

func NewRegistry(opts Options) *Registry {
	if opts.GOPCacheSize <= 0 {
		opts.GOPCacheSize = DefaultGOPCacheSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	// 재생 시작 시 캐시 전체가 큐에 들어갈 수 있어야 한다
	if opts.GOPCache && opts.QueueSize < opts.GOPCacheSize+replayExtra {
		opts.QueueSize = opts.GOPCacheSize + replayExtra
	}

	return &Registry{
		opts:    opts,
		bus:     opts.Bus,
		streams: make(map[Key]*stream),
	}
}

func (r *Registry) lookup(key Key) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[key]
}

// acquire는 스트림을 찾거나 만들고 잠근 상태로 반환한다.
// 맵 락을 쥔 채로 잠가야 removeIfIdle과 엇갈리지 않는다.
func (r *Registry) acquire(key Key) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[key]
	if !ok {
		s = newStream(key)
		r.streams[key] = s
	}
	s.mu.Lock()
	return s
}

// removeIfIdle은 퍼블리셔와 구독자가 모두 없는 스트림을 맵에서 제거한다.
// 스트림 락보다 맵 락을 먼저 잡는다.
func (r *Registry) removeIfIdle(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[key]
	if !ok {
		return
	}
	s.mu.Lock()
	idle := s.idle()
	s.mu.Unlock()
	if idle {
		delete(r.streams, key)
	}
}

// RegisterPublisher binds sessionID as the publisher of key.
// prePublish observers run first and may reject (ErrRejected); a key that is
// already bound returns ErrConflict. postPublish is emitted on success.
func (r *Registry) RegisterPublisher(key Key, sessionID string, args map[string]any) error {
	ev := hook.Event{Kind: hook.PrePublish, SessionID: sessionID, StreamPath: key.String(), Args: args}
	if err := r.bus.Emit(ev); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	s := r.acquire(key)
	if !s.bind(sessionID) {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", key, ErrConflict)
	}
	s.broadcast(&Message{Kind: KindPublish})
	s.mu.Unlock()

	ev.Kind = hook.PostPublish
	_ = r.bus.Emit(ev)
	return nil
}

// UnregisterPublisher releases key if sessionID is its publisher.
// Cached media is discarded and subscribers receive an unpublish marker.
// donePublish is emitted once per successful bind.
func (r *Registry) UnregisterPublisher(key Key, sessionID string) bool {
	s := r.lookup(key)
	if s == nil {
		return false
	}

	s.mu.Lock()
	if !s.unbind(sessionID) {
		s.mu.Unlock()
		return false
	}
	s.broadcast(&Message{Kind: KindUnpublish})
	s.mu.Unlock()

	r.removeIfIdle(key)
	_ = r.bus.Emit(hook.Event{Kind: hook.DonePublish, SessionID: sessionID, StreamPath: key.String()})
	return true
}

// Subscribe adds a player to key. If the stream is live, the cached
// metadata, sequence headers and GOP are queued before any live message.
// A key with no publisher is valid: the player waits for one.
func (r *Registry) Subscribe(key Key, sessionID string) *Subscription {
	sub := &Subscription{
		Key:       key,
		SessionID: sessionID,
		id:        r.nextSubID.Add(1),
		q:         newQueue(r.opts.QueueSize),
	}

	s := r.acquire(key)
	if s.published {
		s.replay(sub)
	}
	s.subscribers = append(s.subscribers, sub)
	s.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and wakes any goroutine blocked in Next.
// Unknown or already removed subscriptions are ignored.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s := r.lookup(sub.Key)
	if s == nil {
		sub.q.close()
		return
	}

	s.mu.Lock()
	removed := s.removeSubscriber(sub)
	s.mu.Unlock()
	sub.q.close()

	if removed {
		r.removeIfIdle(sub.Key)
	}
}

// PublishMedia caches msg and delivers it to every subscriber of key in
// subscription order. Messages for a key with no publisher are dropped.
func (r *Registry) PublishMedia(key Key, msg *Message) {
	s := r.lookup(key)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.published {
		return
	}

	s.cache(msg, r.opts.GOPCache, r.opts.GOPCacheSize)
	if n := s.broadcast(msg); n > 0 {
		r.dropped.Add(uint64(n))
	}
}

// Publisher returns the session bound as publisher of key.
func (r *Registry) Publisher(key Key) (string, bool) {
	s := r.lookup(key)
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publisher, s.published
}

type Stats struct {
	Streams     int
	Publishers  int
	Subscribers int
	Dropped     uint64
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	streams := make([]*stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	stats := Stats{Streams: len(streams), Dropped: r.dropped.Load()}
	for _, s := range streams {
		s.mu.Lock()
		if s.published {
			stats.Publishers++
		}
		stats.Subscribers += len(s.subscribers)
		s.mu.Unlock()
	}
	return stats
}
