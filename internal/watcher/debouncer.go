package watcher

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of events per path. Each path has its own
// quiet-period timer; when it fires, the latest event for that path is
// emitted on the timer's goroutine.
type Debouncer struct {
	delay   time.Duration
	emit    func(Event)
	mu      sync.Mutex
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	event  Event
	timer  *time.Timer
	bursts int
}

// NewDebouncer creates a debouncer that calls emit once per quiet path.
func NewDebouncer(delay time.Duration, emit func(Event)) *Debouncer {
	return &Debouncer{
		delay:   delay,
		emit:    emit,
		pending: make(map[string]*pendingEvent),
	}
}

// Add records ev and restarts its path's timer.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[ev.Path]
	if ok {
		p.timer.Stop()
		p.event = mergeEvents(p.event, ev)
		p.bursts++
	} else {
		p = &pendingEvent{event: ev, bursts: 1}
		d.pending[ev.Path] = p
	}

	path := ev.Path
	p.timer = time.AfterFunc(d.delay, func() {
		d.fire(path, p)
	})
}

func (d *Debouncer) fire(path string, p *pendingEvent) {
	d.mu.Lock()
	// A newer Add may have replaced the entry after this timer was armed.
	if d.pending[path] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	ev := p.event
	d.mu.Unlock()

	if d.emit != nil {
		d.emit(ev)
	}
}

// Cancel drops every pending event without emitting it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

// Flush emits every pending event immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	events := make([]Event, 0, len(d.pending))
	for path, p := range d.pending {
		p.timer.Stop()
		events = append(events, p.event)
		delete(d.pending, path)
	}
	d.mu.Unlock()

	if d.emit == nil {
		return
	}
	for _, ev := range events {
		d.emit(ev)
	}
}

// Pending returns the number of paths waiting for their quiet period.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// mergeEvents keeps the latest operation, except that a create followed by
// modifies stays a create.
func mergeEvents(prev, next Event) Event {
	if prev.Type == EventCreate && next.Type == EventModify {
		next.Type = EventCreate
	}
	return next
}
