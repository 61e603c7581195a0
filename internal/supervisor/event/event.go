// Package event implements the event store and dispatch lifecycle described
// in spec.md §3.1 and §4.1: an ordered registry of events moving through
// PENDING -> HANDLING -> FINISHED, with a blocking-graph of waiters that are
// notified once an event drains.
package event

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/validator"

	"github.com/google/uuid"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "event")

// envPattern matches a single well-formed "KEY=VALUE" environment entry
// (spec.md §6.1).
var envPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=.*$`)

// Progress is the lifecycle stage of an Event (spec.md §3.1).
type Progress int

const (
	// Pending indicates the Event has not yet been handled by a dispatch pass.
	Pending Progress = iota
	// Handling indicates the dispatcher has run its handlers for this Event
	// exactly once; it now waits for its blockers to drain.
	Handling
	// Finished is terminal; the Event is removed once its blocking set drains.
	Finished
)

func (p Progress) String() string {
	switch p {
	case Pending:
		return "pending"
	case Handling:
		return "handling"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// FailedSuffix is appended to an Event's name to build the name of the
// derived failure event emitted when it completes with Failed set
// (spec.md §3.1).
const FailedSuffix = "/failed"

// Event is a named signal with an environment, consumed at most once per
// operator tree per class, then completed (spec.md §3.1, GLOSSARY).
type Event struct {
	mutex *sync.Mutex

	// Handle uniquely identifies this Event for its lifetime.
	Handle uuid.UUID
	// Name is the event's name, e.g. "starting", "foo/failed".
	Name string
	// Env is the event's environment vector ("KEY=VALUE" strings).
	Env []string
	// Failed indicates the event represents (or derives from) a failure.
	// A failed event that is not itself a derived failure event causes a
	// derived event to be emitted when it finishes, whatever its Name;
	// derived failure events never themselves fan out further failures
	// (spec.md §3.1).
	Failed bool
	// derived indicates this Event is itself a derived failure event.
	derived bool

	progress Progress
	blockers int
	blocking []Blocked
}

// newEvent constructs a Pending Event. Callers should go through
// Store.Emit.
func newEvent(name string, env []string, derived bool) *Event {
	return &Event{
		mutex:   new(sync.Mutex),
		Handle:  uuid.New(),
		Name:    name,
		Env:     env,
		derived: derived,
	}
}

// Progress returns the Event's current lifecycle stage.
func (e *Event) Progress() Progress {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.progress
}

// Blockers returns the current outstanding-wait count.
func (e *Event) Blockers() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.blockers
}

// Notify satisfies the Waiter interface so an Event may itself be the
// subject waited on by another Blocked handle's peer bookkeeping; it is a
// no-op beyond documenting that Events participate in the blocking graph as
// Waiters are always the *other* side of a Blocked edge pointing at this
// Event (event.Store.block/unblock increment/decrement the counters
// directly instead of calling Notify on the Event itself).
func (e *Event) Notify() {}

// ValidateEnv checks that every entry in env is a syntactically valid
// "KEY=VALUE" string and that keys are unique (spec.md §3.1, §6.1).
func ValidateEnv(env []string) error {
	v := validator.New()
	seen := make(map[string]struct{}, len(env))
	for _, kv := range env {
		entry := kv
		v.AssertFunc(func() bool { return envPattern.MatchString(entry) }, fmt.Sprintf("malformed env entry %q", entry))
		if !envPattern.MatchString(entry) {
			continue
		}
		key := entry[:indexByte(entry, '=')]
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w; duplicate env key %q", validator.ErrInvalidInput, key)
		}
		seen[key] = struct{}{}
	}
	return v.Err()
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}
