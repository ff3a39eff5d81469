package stream

import (
	"context"
	"sync"
)

// queue는 가득 차면 가장 오래된 항목을 버리는 고정 크기 FIFO.
// push는 절대 블로킹하지 않으므로 느린 구독자가 퍼블리셔를 막지 않는다.
type queue struct {
	mu      sync.Mutex
	items   []*Message
	head    int
	size    int
	dropped uint64
	closed  bool
	notify  chan struct{}
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 1
	}
	return &queue{
		items:  make([]*Message, capacity),
		notify: make(chan struct{}, 1),
	}
}

// push는 항목을 추가하고, 공간 확보를 위해 버린 항목이 있으면 true를 반환한다.
func (q *queue) push(msg *Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	dropped := false
	if q.size == len(q.items) {
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
		q.size--
		q.dropped++
		dropped = true
	}
	q.items[(q.head+q.size)%len(q.items)] = msg
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *queue) tryPop() (*Message, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil, false, q.closed
	}
	msg := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return msg, true, false
}

// pop은 항목이 생길 때까지 기다린다.
// 닫힌 뒤에는 남은 항목을 모두 꺼낸 다음 ErrClosed를 반환한다.
func (q *queue) pop(ctx context.Context) (*Message, error) {
	for {
		msg, ok, closed := q.tryPop()
		if ok {
			return msg, nil
		}
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// discard는 쌓여 있는 항목을 모두 버린다.
func (q *queue) discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	clear(q.items)
	q.head = 0
	q.size = 0
	return n
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *queue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
