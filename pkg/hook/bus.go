package hook

import (
	"fmt"
	"log/slog"
	"sync"
)

type registration struct {
	id       uint64
	observer Observer
}

// Bus fans events out to observers in registration order.
// Emit is safe to call from any goroutine and never holds the bus lock while
// an observer runs, so observers may register or emit themselves.
type Bus struct {
	mu        sync.RWMutex
	nextID    uint64
	observers []registration
}

func NewBus() *Bus {
	return &Bus{}
}

// Register adds an observer and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Register(o Observer) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, registration{id: id, observer: o})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unregister(id) })
	}
}

func (b *Bus) unregister(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.observers {
		if r.id == id {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return
		}
	}
}

func (b *Bus) snapshot() []registration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]registration(nil), b.observers...)
}

// Emit delivers ev to every observer.
// For pre-hooks the first observer error stops delivery and is returned;
// the caller must abort the action. For all other kinds errors are logged.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	for _, r := range b.snapshot() {
		err := r.observer.OnEvent(ev.clone())
		if err == nil {
			continue
		}
		if ev.Kind.Rejectable() {
			return fmt.Errorf("%s rejected: %w", ev.Kind, err)
		}
		slog.Warn("Observer failed", "event", ev.Kind.String(), "sessionId", ev.SessionID, "err", err)
	}
	return nil
}
