// Package orchestrator manages the task lifecycle: submission, the
// bounded worker pool, cancellation, and the per-task event streams
// observers consume.
package orchestrator

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/openworkhq/openwork/pkg/models"
)

// emitter is one observer's buffered event stream. A slow observer
// drops its own events after a short grace period; it never blocks the
// loop that emits.
type emitter struct {
	events       chan models.Event
	droppedCount atomic.Uint64
	closed       atomic.Bool
}

func newEmitter(bufferSize int) *emitter {
	return &emitter{
		events: make(chan models.Event, bufferSize),
	}
}

// emit sends an event to the observer's channel. If the channel is
// full, it tries with a timeout before dropping the event.
func (e *emitter) emit(event models.Event) {
	if e.closed.Load() {
		return
	}

	select {
	case e.events <- event:
		return
	default:
		// Channel full, try with timeout.
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam.
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): kind=%s task=%s", count, event.Kind, event.TaskID)
		}
	}
}

// close ends the stream. Safe to call once per emitter.
func (e *emitter) close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.events)
	}
}
