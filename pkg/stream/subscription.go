package stream

import (
	"context"
)

// Subscription is a player's view of one stream.
type Subscription struct {
	Key       Key
	SessionID string

	id uint64
	q  *queue
}

// Next blocks until a message is available, the context is done, or the
// subscription is removed from the registry (ErrClosed).
func (s *Subscription) Next(ctx context.Context) (*Message, error) {
	return s.q.pop(ctx)
}

// Discard drops every queued message and returns how many were dropped.
func (s *Subscription) Discard() int {
	return s.q.discard()
}

// Pending returns the number of queued messages.
func (s *Subscription) Pending() int {
	return s.q.len()
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.q.droppedCount()
}
