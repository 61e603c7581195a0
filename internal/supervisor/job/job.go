// Package job implements the per-instance finite state machine described in
// spec.md §3.5 and §4.6: a Job drives through (Goal, State) transitions,
// invoking process spawning, signalling, and emitting lifecycle events.
package job

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/event"

	"github.com/google/uuid"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "job")

// Goal is the operator's declared desire for a Job, orthogonal to its
// current State (spec.md §3.5, GLOSSARY).
type Goal int

const (
	// Start indicates the job should be brought up and kept running.
	Start Goal = iota
	// Stop indicates the job should be brought down.
	Stop
	// Respawn is a pseudo-goal behaving like Start on the next state entry,
	// used when a MAIN process exits while goal is Start and the respawn
	// budget has not been exhausted (spec.md §4.6).
	Respawn
)

func (g Goal) String() string {
	switch g {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Respawn:
		return "respawn"
	default:
		return "unknown"
	}
}

// State is the current position of a Job in its lifecycle FSM (spec.md §3.5).
type State int

const (
	Waiting State = iota
	Starting
	PreStart
	Spawned
	PostStart
	Running
	PreStop
	Stopping
	Killed
	PostStop
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Starting:
		return "starting"
	case PreStart:
		return "pre-start"
	case Spawned:
		return "spawned"
	case PostStart:
		return "post-start"
	case Running:
		return "running"
	case PreStop:
		return "pre-stop"
	case Stopping:
		return "stopping"
	case Killed:
		return "killed"
	case PostStop:
		return "post-stop"
	default:
		return "unknown"
	}
}

// TraceState is the ptrace fork/daemon-detection state (spec.md §3.5, §4.8).
type TraceState int

const (
	// TraceNone indicates the job is not being traced.
	TraceNone TraceState = iota
	// TraceNew is entered right after spawn, awaiting the initial SIGTRAP to
	// install ptrace options.
	TraceNew
	// TraceNewChild is an intermediate state used when a fork notification
	// for the child arrives before the parent's.
	TraceNewChild
	// TraceNormal counts forks after options are installed.
	TraceNormal
)

// Job is a live occurrence of a JobClass, identified by an expanded instance
// name (spec.md §3.5).
type Job struct {
	mutex *sync.Mutex

	// ID is an internal handle distinct from Name; Name may be empty for a
	// singleton instance and is not by itself a safe map/log key across
	// instances sharing a class.
	ID uuid.UUID

	Class *class.JobClass
	// Name is the result of expanding Class.Instance against the start
	// event's environment; empty for a singleton.
	Name string

	goal  Goal
	state State

	pid [class.NumProcessKinds]int

	// Env is the committed environment, set from StartEnv on entry to
	// Starting. StartEnv/StopEnv are staged environments for the next
	// start/stop pass (spec.md §3.5).
	Env      []string
	StartEnv []string
	StopEnv  []string

	// Blocker is the at-most-one event this instance is currently waiting on
	// (e.g. the "starting"/"stopping" event it just emitted).
	Blocker *event.Event
	// Blocking lists everything waiting on this instance: absorbed events,
	// pending control-surface replies, or other jobs (spec.md §3.6).
	Blocking []event.Blocked

	KillTimer    *time.Timer
	KillProcess  class.ProcessKind
	killArmed    bool

	respawn respawnBudget

	Failed        bool
	FailedProcess class.ProcessKind
	ExitStatus    int

	// phaseDone holds the pending completion callback for a spawned
	// PreStart/PostStart/PreStop/PostStop process, invoked by
	// Controller.ProcessExited once that process exits normally.
	phaseDone [class.NumProcessKinds]func()
	// mainExitedDuringPostStart records that MAIN exited while POST_START
	// was still running, so the FSM defers its reaction until POST_START
	// itself completes rather than cancelling it (spec.md Open Question 2).
	mainExitedDuringPostStart bool

	TraceState TraceState
	TraceForks int

	// destroyed is set once the instance has been fully torn down so
	// duplicate destroy attempts are no-ops.
	destroyed bool

	// onNotify is invoked (if set) whenever Notify is called; NewController
	// sets it so a completed blocker re-enters the Controller's FSM for this
	// job without Job holding a reference to its Controller.
	onNotify func()
}

// New creates a Job in Waiting/Start for the given class and expanded
// instance name.
func New(c *class.JobClass, name string) *Job {
	return &Job{
		mutex: new(sync.Mutex),
		ID:    uuid.New(),
		Class: c,
		Name:  name,
		goal:  Start,
		state: Waiting,
	}
}

// InstanceName satisfies class.Instance.
func (j *Job) InstanceName() string { return j.Name }

// OnNotify registers the callback invoked by Notify.
func (j *Job) OnNotify(fn func()) { j.onNotify = fn }

// Notify satisfies event.Waiter: called when something this Job is blocked
// on (its Blocker event, most often) completes.
func (j *Job) Notify() {
	if j.onNotify != nil {
		j.onNotify()
	}
}

func (j *Job) Goal() Goal {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.goal
}

func (j *Job) SetGoal(g Goal) {
	j.mutex.Lock()
	j.goal = g
	j.mutex.Unlock()
}

func (j *Job) State() State {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.state
}

func (j *Job) setState(s State) {
	j.mutex.Lock()
	j.state = s
	j.mutex.Unlock()
	logger.Infof("job state changed; name: %q, state: %s", j.Name, s)
}

// PID returns the pid recorded for the given process slot, or 0.
func (j *Job) PID(kind class.ProcessKind) int {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.pid[kind]
}

// SetPID records the pid for the given process slot.
func (j *Job) SetPID(kind class.ProcessKind, pid int) {
	j.mutex.Lock()
	j.pid[kind] = pid
	j.mutex.Unlock()
}

// ClearPID clears the pid for the given process slot.
func (j *Job) ClearPID(kind class.ProcessKind) {
	j.SetPID(kind, 0)
}

// AllPIDs returns a snapshot of every live (kind, pid) pair, used by the
// dispatcher to maintain its pid->job index (spec.md §3.5 invariant 5).
func (j *Job) AllPIDs() map[class.ProcessKind]int {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	out := make(map[class.ProcessKind]int)
	for k, pid := range j.pid {
		if pid != 0 {
			out[class.ProcessKind(k)] = pid
		}
	}
	return out
}

// AddBlocking registers b to be notified the next time this Job's blocking
// list is drained: when the Job enters Running, when it comes to rest in
// Waiting, or just before it is destroyed.
func (j *Job) AddBlocking(b event.Blocked) {
	j.mutex.Lock()
	j.Blocking = append(j.Blocking, b)
	j.mutex.Unlock()
}

// DrainBlocking notifies and clears every waiter on this Job.
func (j *Job) DrainBlocking() {
	j.mutex.Lock()
	blocking := j.Blocking
	j.Blocking = nil
	j.mutex.Unlock()

	for _, b := range blocking {
		b.Notify()
	}
}

// BlockingLen reports the number of outstanding waiters on this Job.
func (j *Job) BlockingLen() int {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return len(j.Blocking)
}

// Destroyable reports whether this Job meets the destroy precondition:
// goal Stop, state Waiting, and an empty blocking list (spec.md §3.5).
func (j *Job) Destroyable() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.goal == Stop && j.state == Waiting && len(j.Blocking) == 0
}

func (j *Job) MarkDestroyed() {
	j.mutex.Lock()
	j.destroyed = true
	j.mutex.Unlock()
}

func (j *Job) Destroyed() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.destroyed
}

// ArmKillTimer starts the kill_timeout timer for the given process slot,
// invoking onExpire if it is not stopped first (spec.md §4.6 KILLED side
// effect).
func (j *Job) ArmKillTimer(d time.Duration, slot class.ProcessKind, onExpire func()) {
	j.mutex.Lock()
	j.KillProcess = slot
	j.killArmed = true
	j.KillTimer = time.AfterFunc(d, onExpire)
	j.mutex.Unlock()
}

// DisarmKillTimer stops any active kill timer.
func (j *Job) DisarmKillTimer() {
	j.mutex.Lock()
	if j.KillTimer != nil {
		j.KillTimer.Stop()
		j.KillTimer = nil
	}
	j.killArmed = false
	j.mutex.Unlock()
}

func (j *Job) KillTimerArmed() bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.killArmed
}

// Signal sends sig to the pid recorded for slot, if any.
func (j *Job) Signal(slot class.ProcessKind, sig syscall.Signal) error {
	pid := j.PID(slot)
	if pid == 0 {
		return nil
	}
	return syscall.Kill(pid, sig)
}
