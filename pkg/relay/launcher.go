// Package relay forwards published streams to an upstream origin by running
// an external process per stream.
package relay

import (
	"context"
	"errors"
)

// ErrLaunch wraps every failure to start a relay process.
var ErrLaunch = errors.New("relay launch failed")

// Task is a running relay.
type Task interface {
	// Stop asks the process to exit and waits for it.
	Stop() error
	// Done is closed once the process has exited, whatever the reason.
	Done() <-chan struct{}
}

// Launcher starts a relay copying source to destination.
type Launcher interface {
	Start(ctx context.Context, source, destination string) (Task, error)
}
