package progress

import (
	"sync"
	"time"
)

// FuncReporter is a Reporter that forwards every event to a callback instead of
// rendering a console bar. It is used by the HTTP server to store per-job
// progress for polling clients.
type FuncReporter struct {
	fn        func(ProgressEvent)
	total     int64
	current   int64
	updatesCh chan ProgressEvent
	closed    bool
	mu        sync.Mutex
}

// NewFuncReporter creates a Reporter that invokes fn for each progress event.
// A nil fn is allowed; events are then only available via Updates().
func NewFuncReporter(fn func(ProgressEvent)) *FuncReporter {
	return &FuncReporter{
		fn:        fn,
		updatesCh: make(chan ProgressEvent, 10),
	}
}

// Start records the total and emits a "started" event.
// A completed reporter may be started again for a new phase; the Updates
// channel is renewed.
func (r *FuncReporter) Start(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.updatesCh = make(chan ProgressEvent, 10)
		r.closed = false
	}
	r.total = total
	r.current = 0
	r.emit(ProgressEvent{Status: "started"})
}

// Update records the current progress and emits a "processing" event.
// Values lower than the current progress are ignored.
func (r *FuncReporter) Update(current int64, step, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if current > r.total {
		current = r.total
	}
	if current < r.current {
		return
	}
	r.current = current

	percentage := 0.0
	if r.total > 0 {
		percentage = float64(current) / float64(r.total) * 100
	}
	r.emit(ProgressEvent{
		Status:     "processing",
		Percentage: percentage,
		Step:       step,
		Stage:      stage,
	})
}

// Increment advances the progress by one step.
func (r *FuncReporter) Increment(step, stage string) {
	r.Update(r.current+1, step, stage)
}

// Complete emits the final "completed" event at 100% and closes the Updates channel.
func (r *FuncReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.current = r.total
	r.emit(ProgressEvent{Status: "completed", Percentage: 100})
	r.closed = true
	close(r.updatesCh)
}

// Updates returns the channel for receiving ProgressEvent updates.
// After a restart it returns the renewed channel for the current phase.
func (r *FuncReporter) Updates() <-chan ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updatesCh
}

// emit stamps and delivers an event. Requires lock to be held by caller.
func (r *FuncReporter) emit(ev ProgressEvent) {
	ev.Timestamp = time.Now().Format(time.RFC3339)
	if r.fn != nil {
		r.fn(ev)
	}
	select {
	case r.updatesCh <- ev:
	default:
	}
}
