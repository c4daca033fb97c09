package orchestrator

import (
	"testing"
	"time"

	"github.com/openworkhq/openwork/pkg/models"
)

func TestEventBusOrderedDelivery(t *testing.T) {
	bus := newEventBus()
	ch := bus.Subscribe("t1")

	kinds := []models.EventKind{
		models.EventQueued,
		models.EventThinking,
		models.EventExecuting,
		models.EventFinished,
	}
	for _, k := range kinds {
		bus.Publish(models.Event{TaskID: "t1", Kind: k})
	}

	var got []models.EventKind
	for e := range ch {
		got = append(got, e.Kind)
	}
	if len(got) != len(kinds) {
		t.Fatalf("got %d events, want %d", len(got), len(kinds))
	}
	for i, k := range kinds {
		if got[i] != k {
			t.Errorf("event %d = %s, want %s", i, got[i], k)
		}
	}
}

func TestEventBusIgnoresPostTerminalEvents(t *testing.T) {
	bus := newEventBus()
	ch := bus.Subscribe("t1")

	bus.Publish(models.Event{TaskID: "t1", Kind: models.EventFinished, Payload: "first"})
	// A racing second terminal or trailing progress event is swallowed.
	bus.Publish(models.Event{TaskID: "t1", Kind: models.EventError, Payload: "second"})
	bus.Publish(models.Event{TaskID: "t1", Kind: models.EventThinking})

	var got []models.Event
	for e := range ch {
		got = append(got, e)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	if got[0].Kind != models.EventFinished || got[0].Payload != "first" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestEventBusLateSubscriber(t *testing.T) {
	bus := newEventBus()
	bus.Publish(models.Event{TaskID: "t1", Kind: models.EventThinking})
	bus.Publish(models.Event{TaskID: "t1", Kind: models.EventError, Payload: "boom"})

	ch := bus.Subscribe("t1")
	e, ok := <-ch
	if !ok {
		t.Fatal("late subscriber got a closed channel with no terminal event")
	}
	if e.Kind != models.EventError || e.Payload != "boom" {
		t.Errorf("event = %+v", e)
	}
	if _, ok := <-ch; ok {
		t.Error("late subscriber stream not closed after the terminal event")
	}
}

func TestEventBusIsolatesTasks(t *testing.T) {
	bus := newEventBus()
	ch1 := bus.Subscribe("t1")
	ch2 := bus.Subscribe("t2")

	bus.Publish(models.Event{TaskID: "t1", Kind: models.EventFinished})
	bus.Publish(models.Event{TaskID: "t2", Kind: models.EventThinking})
	bus.Publish(models.Event{TaskID: "t2", Kind: models.EventFinished})

	if got := len(drainClosed(t, ch1)); got != 1 {
		t.Errorf("t1 events = %d, want 1", got)
	}
	if got := len(drainClosed(t, ch2)); got != 2 {
		t.Errorf("t2 events = %d, want 2", got)
	}
}

func drainClosed(t *testing.T, ch <-chan models.Event) []models.Event {
	t.Helper()
	var events []models.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestEmitterDropsWhenObserverStalls(t *testing.T) {
	e := newEmitter(1)

	e.emit(models.Event{Kind: models.EventThinking})
	// Buffer is full and nobody is reading; this one must drop after the
	// grace period instead of blocking forever.
	done := make(chan struct{})
	go func() {
		e.emit(models.Event{Kind: models.EventExecuting})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emit blocked on a stalled observer")
	}
	if e.droppedCount.Load() != 1 {
		t.Errorf("dropped = %d, want 1", e.droppedCount.Load())
	}
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	e := newEmitter(1)
	e.close()
	e.close()
	e.emit(models.Event{Kind: models.EventThinking})

	if _, ok := <-e.events; ok {
		t.Error("closed emitter delivered an event")
	}
}
