package event

// Waiter is anything that can be suspended on an Event or a Job reaching a
// stable point: a Job waiting on an event it emitted, an Event waiting on
// the jobs it caused to start/stop, or a pending control-surface reply
// waiting on a Job transition (spec.md §3.6).
//
// Notify is called by the blocker once it completes; it must not block and
// must not re-enter the dispatcher synchronously (spec.md §5 re-entrancy).
type Waiter interface {
	Notify()
}

// Kind identifies the variant of a Blocked handle.
type Kind int

const (
	// KindJob indicates the Blocked handle's Waiter is a Job.
	KindJob Kind = iota
	// KindEvent indicates the Blocked handle's Waiter is an Event.
	KindEvent
	// KindIPCReply indicates the Blocked handle's Waiter is a pending control
	// surface reply (Start/Stop/Restart awaiting completion).
	KindIPCReply
)

func (k Kind) String() string {
	switch k {
	case KindJob:
		return "job"
	case KindEvent:
		return "event"
	case KindIPCReply:
		return "ipc_reply"
	default:
		return "unknown"
	}
}

// Blocked is a uniform handle recording "this waiter is suspended on that
// event" (spec.md §3.6). It is placed in the blocker's blocking list and
// removed once the blocker notifies and completes.
type Blocked struct {
	Kind   Kind
	Waiter Waiter
}

// NewBlocked creates a Blocked handle of the given kind wrapping waiter.
func NewBlocked(kind Kind, waiter Waiter) Blocked {
	return Blocked{Kind: kind, Waiter: waiter}
}

// Notify forwards to the wrapped Waiter.
func (b Blocked) Notify() {
	if b.Waiter != nil {
		b.Waiter.Notify()
	}
}
