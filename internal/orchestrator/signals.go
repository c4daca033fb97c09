package orchestrator

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SignalWatcher handles out-of-process control via the .openwork
// directory: a `kill` file stops everything, a `cancel-<taskID>` file
// cancels one task. Another process (e.g. `openwork cancel`) writes the
// files; the watcher picks them up immediately.
type SignalWatcher struct {
	signalsDir string

	mu         sync.RWMutex
	stopSignal bool
	onCancel   func(taskID string)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates a watcher over <runtimeDir>/signals,
// creating the directory if needed. Watch failures degrade to the
// stat-based fallback in ShouldStop rather than erroring out.
func NewSignalWatcher(runtimeDir string) (*SignalWatcher, error) {
	signalsDir := filepath.Join(runtimeDir, "signals")
	if err := os.MkdirAll(signalsDir, 0o755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	sw.watcher = watcher

	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		sw.watcher = nil
		return sw, nil
	}

	go sw.watchSignals()

	return sw, nil
}

// SetCancelHandler registers the callback invoked when a
// cancel-<taskID> file appears.
func (sw *SignalWatcher) SetCancelHandler(fn func(taskID string)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.onCancel = fn
}

func (sw *SignalWatcher) watchSignals() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			sw.handleSignalFile(filepath.Base(event.Name))
		case <-sw.watcher.Errors:
			// Ignore errors, keep watching.
		}
	}
}

func (sw *SignalWatcher) handleSignalFile(name string) {
	switch {
	case name == "kill":
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
		log.Printf("[orchestrator] kill signal received")
	case strings.HasPrefix(name, "cancel-"):
		taskID := strings.TrimPrefix(name, "cancel-")
		sw.mu.RLock()
		fn := sw.onCancel
		sw.mu.RUnlock()
		if fn != nil && taskID != "" {
			log.Printf("[orchestrator] cancel signal received for task %s", taskID)
			fn(taskID)
		}
	}
}

// ShouldStop returns true if a stop signal has been received. It also
// stats the kill file directly in case the watcher missed the event.
func (sw *SignalWatcher) ShouldStop() bool {
	killPath := filepath.Join(sw.signalsDir, "kill")
	if _, err := os.Stat(killPath); err == nil {
		sw.mu.Lock()
		sw.stopSignal = true
		sw.mu.Unlock()
	}

	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return sw.stopSignal
}

// SendKill creates the kill signal file.
func (sw *SignalWatcher) SendKill() error {
	path := filepath.Join(sw.signalsDir, "kill")
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0o644)
}

// SendCancel creates a cancel signal file for one task.
func (sw *SignalWatcher) SendCancel(taskID string) error {
	path := filepath.Join(sw.signalsDir, "cancel-"+taskID)
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0o644)
}

// ClearSignals removes all signal files and resets signal state.
func (sw *SignalWatcher) ClearSignals() {
	sw.mu.Lock()
	sw.stopSignal = false
	sw.mu.Unlock()

	entries, err := os.ReadDir(sw.signalsDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.Name() == "kill" || strings.HasPrefix(entry.Name(), "cancel-") {
			os.Remove(filepath.Join(sw.signalsDir, entry.Name()))
		}
	}
}

// Close shuts down the watcher.
func (sw *SignalWatcher) Close() {
	close(sw.done)
	if sw.watcher != nil {
		sw.watcher.Close()
	}
}
