package event

import (
	"sync"

	"github.com/google/uuid"
)

// Handler is invoked once per Pending Event during a dispatch pass (spec.md
// §4.1). The dispatcher passes a no-op Handler and evaluates start_on and
// stop_on in its own passes before each Pass.
type Handler func(*Event)

// Store is the ordered registry of active events (spec.md §4.1). Events are
// processed in insertion order; events emitted during a Pass (by a Handler,
// a notified waiter, or a derived failure) are picked up by the next Pass.
type Store struct {
	mutex  sync.Mutex
	order  []uuid.UUID
	byID   map[uuid.UUID]*Event
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[uuid.UUID]*Event)}
}

// Emit allocates an Event in Pending and returns it to the caller, who may
// register a waiter with AddBlocking to be notified once it is removed.
// env must already have passed ValidateEnv.
func (s *Store) Emit(name string, env []string) *Event {
	return s.emit(name, env, false)
}

func (s *Store) emit(name string, env []string, derived bool) *Event {
	e := newEvent(name, env, derived)

	s.mutex.Lock()
	s.order = append(s.order, e.Handle)
	s.byID[e.Handle] = e
	s.mutex.Unlock()

	logger.Infof("emitted event; name: %s, handle: %s", name, e.Handle)
	return e
}

// Block increments e's outstanding-wait count, keeping it alive past
// Finished until a matching Unblock is observed (spec.md §4.1).
func (s *Store) Block(e *Event) {
	e.mutex.Lock()
	e.blockers++
	e.mutex.Unlock()
}

// Unblock decrements e's outstanding-wait count. When the Event has reached
// Finished and blockers drops to zero, it is removed and its blocking list
// is flushed on the next Pass.
func (s *Store) Unblock(e *Event) {
	e.mutex.Lock()
	if e.blockers > 0 {
		e.blockers--
	}
	e.mutex.Unlock()
}

// AddBlocking registers b to be notified when e is removed (reaches
// Finished with zero blockers).
func (s *Store) AddBlocking(e *Event, b Blocked) {
	e.mutex.Lock()
	e.blocking = append(e.blocking, b)
	e.mutex.Unlock()
}

// Pending returns a stable snapshot of currently Pending events, in
// insertion order (spec.md §5: classes are evaluated against a stable
// snapshot taken at pass start).
func (s *Store) Pending() []*Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var pending []*Event
	for _, id := range s.order {
		e := s.byID[id]
		if e == nil {
			continue
		}
		if e.Progress() == Pending {
			pending = append(pending, e)
		}
	}
	return pending
}

// Pass runs one fixed-point-seeking iteration over the event list: every
// Pending event is handed to handle and marked Handling; every Handling
// event with zero blockers is marked Finished; every Finished event with
// zero blockers has its blocking list flushed and is removed. It returns
// whether any state changed, so callers can loop Pass until it returns
// false (spec.md §4.1).
func (s *Store) Pass(handle Handler) bool {
	progressed := false

	for _, e := range s.snapshot() {
		if e.Progress() == Pending {
			handle(e)
			e.setProgress(Handling)
			progressed = true
		}
	}

	for _, e := range s.snapshot() {
		if e.Progress() == Handling && e.Blockers() == 0 {
			e.setProgress(Finished)
			progressed = true
		}
	}

	for _, e := range s.snapshot() {
		if e.Progress() == Finished && e.Blockers() == 0 {
			s.finish(e)
			progressed = true
		}
	}

	return progressed
}

// finish flushes e's blocking list, removes e from the store, and — if e
// represents a failure and is not itself derived — emits the derived
// "<name>/failed" event (spec.md §3.1).
func (s *Store) finish(e *Event) {
	e.mutex.Lock()
	blocking := e.blocking
	e.blocking = nil
	failed := e.Failed
	derived := e.derived
	name := e.Name
	e.mutex.Unlock()

	s.mutex.Lock()
	delete(s.byID, e.Handle)
	s.mutex.Unlock()

	logger.Infof("finished event; name: %s, handle: %s", name, e.Handle)

	for _, b := range blocking {
		b.Notify()
	}

	if failed && !derived {
		fe := s.emit(name+FailedSuffix, nil, true)
		fe.Failed = true
	}
}

// snapshot returns a stable copy of live events in insertion order.
func (s *Store) snapshot() []*Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	events := make([]*Event, 0, len(s.order))
	live := s.order[:0:0]
	for _, id := range s.order {
		if e, ok := s.byID[id]; ok {
			events = append(events, e)
			live = append(live, id)
		}
	}
	s.order = live
	return events
}

func (e *Event) setProgress(p Progress) {
	e.mutex.Lock()
	e.progress = p
	e.mutex.Unlock()
}
