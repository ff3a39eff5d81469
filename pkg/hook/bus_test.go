package hook

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Register(ObserverFunc(func(ev Event) error {
		order = append(order, "first")
		return nil
	}))
	bus.Register(ObserverFunc(func(ev Event) error {
		order = append(order, "second")
		return nil
	}))

	if err := bus.Emit(Event{Kind: PostConnect, SessionID: "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Errorf("unexpected order: %v", order)
	}
}

func TestBusPreHookRejects(t *testing.T) {
	bus := NewBus()
	denied := errors.New("denied")
	called := false
	bus.Register(ObserverFunc(func(ev Event) error { return denied }))
	bus.Register(ObserverFunc(func(ev Event) error {
		called = true
		return nil
	}))

	err := bus.Emit(Event{Kind: PrePublish, StreamPath: "/live/test"})
	if !errors.Is(err, denied) {
		t.Fatalf("expected rejection wrapping observer error, got %v", err)
	}
	if called {
		t.Error("observers after a rejection should not run")
	}
}

func TestBusPostHookErrorIgnored(t *testing.T) {
	bus := NewBus()
	calls := 0
	bus.Register(ObserverFunc(func(ev Event) error {
		calls++
		return errors.New("boom")
	}))
	bus.Register(ObserverFunc(func(ev Event) error {
		calls++
		return nil
	}))

	for _, kind := range []Kind{PostConnect, DoneConnect, PostPublish, DonePublish, PostPlay, DonePlay, RelayLaunchFailed} {
		if err := bus.Emit(Event{Kind: kind}); err != nil {
			t.Errorf("%s: unexpected error %v", kind, err)
		}
	}
	if calls != 14 {
		t.Errorf("expected 14 calls, got %d", calls)
	}
}

func TestBusUnregister(t *testing.T) {
	bus := NewBus()
	calls := 0
	unregister := bus.Register(ObserverFunc(func(ev Event) error {
		calls++
		return nil
	}))

	_ = bus.Emit(Event{Kind: PostPlay})
	unregister()
	unregister()
	_ = bus.Emit(Event{Kind: PostPlay})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBusArgsCopiedPerObserver(t *testing.T) {
	bus := NewBus()
	bus.Register(ObserverFunc(func(ev Event) error {
		ev.Args["token"] = "changed"
		return nil
	}))
	var seen any
	bus.Register(ObserverFunc(func(ev Event) error {
		seen = ev.Args["token"]
		return nil
	}))

	args := map[string]any{"token": "abc"}
	_ = bus.Emit(Event{Kind: PostPublish, Args: args})

	if seen != "abc" {
		t.Errorf("second observer saw %v", seen)
	}
	if args["token"] != "abc" {
		t.Errorf("caller args modified: %v", args["token"])
	}
}

func TestNilBusEmit(t *testing.T) {
	var bus *Bus
	if err := bus.Emit(Event{Kind: PrePlay}); err != nil {
		t.Errorf("nil bus should accept everything, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{PreConnect, "preConnect"},
		{DonePublish, "donePublish"},
		{RelayLaunchFailed, "relayLaunchFailed"},
		{Kind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	o := NewLogObserver(logger)

	_ = o.OnEvent(Event{Kind: PostPublish, SessionID: "7", StreamPath: "/live/test"})
	_ = o.OnEvent(Event{Kind: RelayLaunchFailed, StreamPath: "/live/test", Err: errors.New("no ffmpeg")})

	out := buf.String()
	for _, want := range []string{"event=postPublish", "streamPath=/live/test", "level=WARN", "no ffmpeg"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
