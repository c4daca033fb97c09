package orchestrator

import (
	"sync"

	"github.com/openworkhq/openwork/pkg/models"
)

// defaultEventBuffer is the per-observer channel depth.
const defaultEventBuffer = 100

// eventBus fans task events out to per-task observers. Events for one
// task are published by that task's single worker goroutine, so each
// observer sees them in emission order. Terminal events close the
// task's streams.
type eventBus struct {
	mu sync.Mutex
	// subs holds live observers per task.
	subs map[string][]*emitter
	// terminal remembers the terminal event of each ended task so a
	// late subscriber still gets resolution instead of blocking.
	terminal map[string]models.Event
}

func newEventBus() *eventBus {
	return &eventBus{
		subs:     make(map[string][]*emitter),
		terminal: make(map[string]models.Event),
	}
}

// Subscribe returns an ordered event stream for the task. Subscribing
// to a task that already ended yields its terminal event and a closed
// channel.
func (b *eventBus) Subscribe(taskID string) <-chan models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if last, done := b.terminal[taskID]; done {
		ch := make(chan models.Event, 1)
		ch <- last
		close(ch)
		return ch
	}

	e := newEmitter(defaultEventBuffer)
	b.subs[taskID] = append(b.subs[taskID], e)
	return e.events
}

// Publish delivers an event to every observer of its task. A terminal
// event is recorded and closes the task's streams; at most one terminal
// event is ever delivered per task.
func (b *eventBus) Publish(event models.Event) {
	b.mu.Lock()
	if _, done := b.terminal[event.TaskID]; done {
		b.mu.Unlock()
		return
	}
	observers := b.subs[event.TaskID]
	if event.Kind.Terminal() {
		b.terminal[event.TaskID] = event
		delete(b.subs, event.TaskID)
	}
	b.mu.Unlock()

	for _, e := range observers {
		e.emit(event)
	}
	if event.Kind.Terminal() {
		for _, e := range observers {
			e.close()
		}
	}
}

// DroppedCount sums events dropped across all live observers.
func (b *eventBus) DroppedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total uint64
	for _, observers := range b.subs {
		for _, e := range observers {
			total += e.droppedCount.Load()
		}
	}
	return total
}

// Close closes every live stream, for orchestrator shutdown.
func (b *eventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, observers := range b.subs {
		for _, e := range observers {
			e.close()
		}
	}
	b.subs = make(map[string][]*emitter)
}
