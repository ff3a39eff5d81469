package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

type fakeTask struct {
	once    sync.Once
	done    chan struct{}
	stopped chan struct{}
}

func newFakeTask() *fakeTask {
	return &fakeTask{done: make(chan struct{}), stopped: make(chan struct{}, 1)}
}

func (t *fakeTask) Stop() error {
	t.exit()
	t.stopped <- struct{}{}
	return nil
}

func (t *fakeTask) exit() {
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTask) Done() <-chan struct{} {
	return t.done
}

type launch struct {
	source      string
	destination string
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches []launch
	tasks    []*fakeTask
	err      error
}

func (l *fakeLauncher) Start(ctx context.Context, source, destination string) (Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.launches = append(l.launches, launch{source, destination})
	t := newFakeTask()
	l.tasks = append(l.tasks, t)
	return t, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

var rules = []Rule{{App: "live", Mode: "push", Edge: "rtmp://edge.example:1935/live/"}}

func published(path string) hook.Event {
	return hook.Event{Kind: hook.PostPublish, SessionID: "1", StreamPath: path}
}

func unpublished(path string) hook.Event {
	return hook.Event{Kind: hook.DonePublish, SessionID: "1", StreamPath: path}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerStartsAndStopsRelay(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewManager(context.Background(), launcher, hook.NewBus(), 1935, rules)
	key := stream.Key{App: "live", Name: "test"}

	_ = m.OnEvent(published("/live/test"))
	if launcher.count() != 1 {
		t.Fatalf("expected one launch, got %d", launcher.count())
	}
	got := launcher.launches[0]
	if got.source != "rtmp://127.0.0.1:1935/live/test" {
		t.Errorf("source = %q", got.source)
	}
	if got.destination != "rtmp://edge.example:1935/live/test" {
		t.Errorf("destination = %q", got.destination)
	}
	if !m.Active(key) {
		t.Fatal("relay should be active")
	}

	// 같은 키로 다시 와도 하나만 유지
	_ = m.OnEvent(published("/live/test"))
	if launcher.count() != 1 {
		t.Errorf("duplicate launch for the same key")
	}

	_ = m.OnEvent(unpublished("/live/test"))
	select {
	case <-launcher.tasks[0].stopped:
	case <-time.After(time.Second):
		t.Fatal("relay was not stopped on unpublish")
	}
	if m.Active(key) {
		t.Error("relay should be forgotten after unpublish")
	}
	m.Close()
}

func TestManagerIgnoresOtherApps(t *testing.T) {
	launcher := &fakeLauncher{}
	pull := []Rule{{App: "vod", Mode: "pull", Edge: "rtmp://x/vod"}}
	m := NewManager(context.Background(), launcher, hook.NewBus(), 1935, append(pull, rules...))

	_ = m.OnEvent(published("/other/test"))
	_ = m.OnEvent(published("/vod/test"))
	_ = m.OnEvent(hook.Event{Kind: hook.PostPlay, StreamPath: "/live/test"})
	if launcher.count() != 0 {
		t.Errorf("unexpected launches: %d", launcher.count())
	}
}

func TestManagerForgetsExitedProcess(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewManager(context.Background(), launcher, hook.NewBus(), 1935, rules)
	key := stream.Key{App: "live", Name: "test"}

	_ = m.OnEvent(published("/live/test"))
	launcher.tasks[0].exit()
	waitFor(t, func() bool { return !m.Active(key) })

	// 다음 publish에서 다시 시작할 수 있어야 한다
	_ = m.OnEvent(published("/live/test"))
	if launcher.count() != 2 {
		t.Errorf("expected relaunch, got %d launches", launcher.count())
	}
	m.Close()
}

func TestManagerLaunchFailure(t *testing.T) {
	launchErr := errors.New("exec: \"ffmpeg\": executable file not found")
	launcher := &fakeLauncher{err: launchErr}
	bus := hook.NewBus()

	var failures []hook.Event
	bus.Register(hook.ObserverFunc(func(ev hook.Event) error {
		if ev.Kind == hook.RelayLaunchFailed {
			failures = append(failures, ev)
		}
		return nil
	}))
	m := NewManager(context.Background(), launcher, bus, 1935, rules)

	if err := m.OnEvent(published("/live/test")); err != nil {
		t.Fatalf("launch failure must not propagate: %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("expected one relayLaunchFailed event, got %d", len(failures))
	}
	if failures[0].StreamPath != "/live/test" || !errors.Is(failures[0].Err, launchErr) {
		t.Errorf("unexpected event %+v", failures[0])
	}
	if m.Active(stream.Key{App: "live", Name: "test"}) {
		t.Error("failed relay must not be tracked")
	}
}

func TestManagerAsBusObserver(t *testing.T) {
	launcher := &fakeLauncher{}
	bus := hook.NewBus()
	m := NewManager(context.Background(), launcher, bus, 19350, rules)
	bus.Register(m)

	registry := stream.NewRegistry(stream.Options{Bus: bus})
	key := stream.Key{App: "live", Name: "cam"}
	if err := registry.RegisterPublisher(key, "7", nil); err != nil {
		t.Fatal(err)
	}
	if !m.Active(key) {
		t.Fatal("publish through the registry should start a relay")
	}
	registry.UnregisterPublisher(key, "7")
	waitFor(t, func() bool { return !m.Active(key) })
	m.Close()
}

func TestManagerCloseStopsAll(t *testing.T) {
	launcher := &fakeLauncher{}
	m := NewManager(context.Background(), launcher, hook.NewBus(), 1935, rules)
	_ = m.OnEvent(published("/live/a"))
	_ = m.OnEvent(published("/live/b"))

	m.Close()
	for i, task := range launcher.tasks {
		select {
		case <-task.Done():
		default:
			t.Errorf("task %d still running after Close", i)
		}
	}
}

func TestExecLauncherMissingBinary(t *testing.T) {
	l := NewExecLauncher("/nonexistent/ffmpeg-for-test")
	_, err := l.Start(context.Background(), "rtmp://127.0.0.1/live/a", "rtmp://edge/live/a")
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
}
