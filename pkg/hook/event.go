// Package hook delivers lifecycle notifications for connections, publishers
// and players to registered observers.
package hook

import (
	"maps"
)

// Kind identifies one of the fixed lifecycle events.
type Kind int

const (
	PreConnect Kind = iota
	PostConnect
	DoneConnect
	PrePublish
	PostPublish
	DonePublish
	PrePlay
	PostPlay
	DonePlay
	RelayLaunchFailed
)

var kindNames = map[Kind]string{
	PreConnect:        "preConnect",
	PostConnect:       "postConnect",
	DoneConnect:       "doneConnect",
	PrePublish:        "prePublish",
	PostPublish:       "postPublish",
	DonePublish:       "donePublish",
	PrePlay:           "prePlay",
	PostPlay:          "postPlay",
	DonePlay:          "donePlay",
	RelayLaunchFailed: "relayLaunchFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Rejectable reports whether an observer error vetoes the action.
// Only the pre-hooks can reject.
func (k Kind) Rejectable() bool {
	return k == PreConnect || k == PrePublish || k == PrePlay
}

// Event is a single notification. Args carries the connect command object
// or the publish/play query arguments and must be treated as read-only.
type Event struct {
	Kind       Kind
	SessionID  string
	StreamPath string
	Args       map[string]any
	Err        error
}

func (e Event) clone() Event {
	if e.Args != nil {
		e.Args = maps.Clone(e.Args)
	}
	return e
}

// Observer receives events from a Bus.
type Observer interface {
	OnEvent(ev Event) error
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(ev Event) error

func (f ObserverFunc) OnEvent(ev Event) error {
	return f(ev)
}
