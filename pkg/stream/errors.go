package stream

import "errors"

var (
	// ErrConflict is returned when a stream key already has a publisher.
	ErrConflict = errors.New("stream already has a publisher")
	// ErrRejected is returned when a prePublish observer vetoes the publish.
	ErrRejected = errors.New("publish rejected")
	// ErrClosed is returned by Subscription.Next after Unsubscribe.
	ErrClosed = errors.New("subscription closed")
)
