// Package clock implements the master clock and event scheduler that
// serialises all component activity onto a single timeline.
package clock

import "math"

// Divider pairs for the supported TV systems. The CPU advances by
// CPUDivider master ticks per CPU cycle, the PPU by PPUDivider per dot.
const (
	NTSCCPUDivider = 12
	NTSCPPUDivider = 4

	PALCPUDivider = 16
	PALPPUDivider = 5

	DendyCPUDivider = 15
	DendyPPUDivider = 5
)

// Disabled is the scheduled time of an event that is registered but not
// on the active list.
const Disabled = int64(math.MaxInt64)

// Handler is invoked when an event's time has been reached. A handler may
// reschedule its own event, enable or disable other events, and terminate
// the scheduler.
type Handler func()

// Event is a named entry on the master timeline. Events are created by
// Register and manipulated only through Scheduler methods.
type Event struct {
	name    string
	time    int64
	enabled bool
	handler Handler

	prev, next *Event
}

// Name returns the event name given at registration.
func (e *Event) Name() string { return e.name }

// Time returns the currently scheduled master time of the event.
func (e *Event) Time() int64 { return e.time }

// Enabled reports whether the event is on the active list.
func (e *Event) Enabled() bool { return e.enabled }

// Scheduler orders named events on the master timeline. Active events form
// a doubly-linked list in activation order; at equal times the earliest
// activated event fires first. Iteration keeps a safe-next pointer so a
// handler may disable its successor.
type Scheduler struct {
	events []*Event

	first, last *Event
	safeNext    *Event

	now        int64
	nextEvent  int64
	terminated bool
}

// New creates an empty scheduler at master time zero.
func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a named event with its handler. The event starts disabled
// with time Disabled.
func (s *Scheduler) Register(name string, handler Handler) *Event {
	e := &Event{name: name, time: Disabled, handler: handler}
	s.events = append(s.events, e)
	return e
}

// Enable places the event on the active list. Idempotent.
func (s *Scheduler) Enable(e *Event) {
	if e.enabled {
		return
	}
	e.prev = s.last
	e.next = nil
	if s.last != nil {
		s.last.next = e
	} else {
		s.first = e
	}
	s.last = e
	e.enabled = true
	if e.time < s.nextEvent {
		s.nextEvent = e.time
	}
}

// Disable removes the event from the active list. Idempotent. Safe to call
// from a handler, including on the event that would fire next.
func (s *Scheduler) Disable(e *Event) {
	if !e.enabled {
		return
	}
	if s.safeNext == e {
		s.safeNext = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.last = e.prev
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.first = e.next
	}
	e.prev, e.next = nil, nil
	e.enabled = false
}

// SetTime reschedules the event to fire at master time t. If t precedes the
// cached next-event time the cache is lowered so the new deadline is honoured
// on the current iteration.
func (s *Scheduler) SetTime(e *Event, t int64) {
	e.time = t
	if t < s.nextEvent {
		s.nextEvent = t
	}
}

// Schedule enables the event and sets its time in one step.
func (s *Scheduler) Schedule(e *Event, t int64) {
	s.Enable(e)
	s.SetTime(e, t)
}

// Now returns the current master time.
func (s *Scheduler) Now() int64 { return s.now }

// NextEventTime returns the earliest scheduled deadline known to the
// scheduler.
func (s *Scheduler) NextEventTime() int64 { return s.nextEvent }

// Terminate requests that Run return after the current handler. Cooperative;
// there is no mid-handler abort.
func (s *Scheduler) Terminate() { s.terminated = true }

// Terminated reports whether Terminate has been called on the current run.
func (s *Scheduler) Terminated() bool { return s.terminated }

// Run drives the timeline until Terminate is called. Each pass scans the
// active list: events whose time has been reached fire, the rest lower the
// next-deadline cache. Between passes waitFn advances external clocks (the
// CPU) up to the next deadline.
func (s *Scheduler) Run(waitFn func(until int64)) {
	s.terminated = false
	var cur *Event
	for {
		if cur == nil {
			if s.terminated {
				return
			}
			if waitFn != nil && s.nextEvent > s.now {
				waitFn(s.nextEvent)
			}
			cur = s.first
			s.now = s.nextEvent
			if cur == nil {
				return
			}
		}
		s.safeNext = cur.next
		if cur.time > s.now {
			if s.nextEvent > cur.time || s.nextEvent == s.now {
				s.nextEvent = cur.time
			}
		} else {
			cur.handler()
		}
		cur = s.safeNext
	}
}

// ResetBase subtracts delta from the current time and every registered
// event's deadline. Called periodically so master times stay well clear of
// overflow across long sessions.
func (s *Scheduler) ResetBase(delta int64) {
	for _, e := range s.events {
		if e.time != Disabled {
			e.time -= delta
		}
	}
	s.now -= delta
	s.nextEvent -= delta
}
