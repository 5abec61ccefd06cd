package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events so a document being copied into
// the drop folder produces one notification, not one per write. Repeat
// events for the same path within the window merge into the latest.
type Debouncer struct {
	window  time.Duration
	pending map[string]time.Time
	mu      sync.Mutex
	output  chan []string
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]time.Time),
		output:  make(chan []string, 10),
	}
}

// Add records activity on path and (re)schedules a flush.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[path] = time.Now()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all settled paths as one batch.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	paths := make([]string, 0, len(d.pending))
	for path := range d.pending {
		paths = append(paths, path)
	}
	d.pending = make(map[string]time.Time)

	// Non-blocking send
	select {
	case d.output <- paths:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(paths)))
	}
}

// Output returns the channel of debounced path batches.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
