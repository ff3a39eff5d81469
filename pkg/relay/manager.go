package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"streamd/pkg/hook"
	"streamd/pkg/stream"
)

const ModePush = "push"

// Rule relays every stream published under App to Edge.
type Rule struct {
	App  string
	Mode string
	Edge string
}

type relayTask struct {
	rule Rule
	task Task
}

// Manager starts and stops relays in response to publish events.
// It is registered on the hook bus as an observer.
type Manager struct {
	ctx      context.Context
	launcher Launcher
	bus      *hook.Bus
	rules    []Rule
	port     int

	mu    sync.Mutex
	tasks map[stream.Key]*relayTask
	wg    sync.WaitGroup
}

func NewManager(ctx context.Context, launcher Launcher, bus *hook.Bus, port int, rules []Rule) *Manager {
	return &Manager{
		ctx:      ctx,
		launcher: launcher,
		bus:      bus,
		rules:    rules,
		port:     port,
		tasks:    make(map[stream.Key]*relayTask),
	}
}

func (m *Manager) OnEvent(ev hook.Event) error {
	switch ev.Kind {
	case hook.PostPublish:
		m.onPublish(ev)
	case hook.DonePublish:
		m.onUnpublish(ev)
	}
	return nil
}

// 스트림 하나에는 먼저 매칭된 push 규칙 하나만 적용된다
func (m *Manager) match(app string) (Rule, bool) {
	for _, rule := range m.rules {
		if rule.App == app && strings.EqualFold(rule.Mode, ModePush) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (m *Manager) source(key stream.Key) string {
	return fmt.Sprintf("rtmp://127.0.0.1:%d%s", m.port, key)
}

func destination(rule Rule, key stream.Key) string {
	return strings.TrimSuffix(rule.Edge, "/") + "/" + key.Name
}

func (m *Manager) onPublish(ev hook.Event) {
	key, ok := stream.ParseKey(ev.StreamPath)
	if !ok {
		return
	}
	rule, ok := m.match(key.App)
	if !ok {
		return
	}

	m.mu.Lock()
	if _, exists := m.tasks[key]; exists {
		m.mu.Unlock()
		return
	}

	task, err := m.launcher.Start(m.ctx, m.source(key), destination(rule, key))
	if err == nil {
		rt := &relayTask{rule: rule, task: task}
		m.tasks[key] = rt
		m.wg.Add(1)
		go m.watch(key, rt)
	}
	m.mu.Unlock()

	if err != nil {
		slog.Error("Failed to start relay", "streamPath", ev.StreamPath, "edge", rule.Edge, "err", err)
		// 퍼블리셔에는 영향 없이 이벤트로만 알린다
		_ = m.bus.Emit(hook.Event{
			Kind:       hook.RelayLaunchFailed,
			SessionID:  ev.SessionID,
			StreamPath: ev.StreamPath,
			Args:       map[string]any{"edge": rule.Edge},
			Err:        err,
		})
	}
}

// watch는 프로세스가 스스로 종료되면 맵에서 제거한다.
func (m *Manager) watch(key stream.Key, rt *relayTask) {
	defer m.wg.Done()
	<-rt.task.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[key] == rt {
		delete(m.tasks, key)
	}
}

func (m *Manager) onUnpublish(ev hook.Event) {
	key, ok := stream.ParseKey(ev.StreamPath)
	if !ok {
		return
	}

	m.mu.Lock()
	rt, ok := m.tasks[key]
	if ok {
		delete(m.tasks, key)
	}
	m.mu.Unlock()

	if ok {
		go stopWithLog(rt.task, ev.StreamPath)
	}
}

func stopWithLog(t Task, streamPath string) {
	if err := t.Stop(); err != nil {
		slog.Error("Error stopping relay", "streamPath", streamPath, "err", err)
	}
}

// Active reports whether a relay is running for key.
func (m *Manager) Active(key stream.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	return ok
}

// Close stops every relay and waits for the processes to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	tasks := make(map[stream.Key]*relayTask, len(m.tasks))
	for k, rt := range m.tasks {
		tasks[k] = rt
	}
	clear(m.tasks)
	m.mu.Unlock()

	for key, rt := range tasks {
		stopWithLog(rt.task, key.String())
	}
	m.wg.Wait()
}
