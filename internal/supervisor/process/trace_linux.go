//go:build linux

package process

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// TraceState is the ptrace fork/daemon-detection state machine used to
// implement Expect=fork/daemon (spec.md §3.5, §4.8). The raw ptrace syscall
// usage here is scaled down from gVisor's pooled multi-tracer subprocess
// (pkg/sentry/platform/ptrace/subprocess_linux.go) to the single
// fork-counter this supervisor needs per job.
type TraceState int

const (
	TraceNone TraceState = iota
	TraceNew
	TraceNewChild
	TraceNormal
)

// ptraceOptions enables fork/vfork/clone/exec event reporting so Advance
// can tell a genuine exit from a trace-stop.
const ptraceOptions = unix.PTRACE_O_TRACEFORK | unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEEXEC | unix.PTRACE_O_TRACEEXIT

// Attach seizes pid for trace-event delivery. It should be called
// immediately after Spawn returns, before the child has had a chance to
// exec (the reexec child raises SIGSTOP on itself via PTRACE_TRACEME
// semantics is not used here; instead the parent attaches and the child is
// held at its first trap by the kernel's PTRACE_ATTACH stop).
func Attach(pid int) error {
	if err := unix.PtraceAttach(pid); err != nil {
		return err
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return err
	}
	return unix.PtraceSetOptions(pid, ptraceOptions)
}

// Advance interprets a trace-stop reported for pid, updating state and the
// fork counter, and reports whether Expect has now been satisfied for the
// given expectation (spec.md §4.8).
//
//   - ExpectFork: satisfied after exactly one fork/vfork/clone event.
//   - ExpectDaemon: satisfied after two such events, OR one event followed
//     by an exec in the child (the common double-fork-with-exec daemon
//     idiom), matching original_source/init/process.c's `process_setup_fork`
//     counting rule (SPEC_FULL.md §4).
func (t *TraceTracker) Advance(pid int, status syscall.WaitStatus, wantDaemon bool) (satisfied bool, err error) {
	ws := unix.WaitStatus(status)
	if !ws.Stopped() {
		return false, nil
	}
	sig := ws.StopSignal()
	if sig != unix.SIGTRAP {
		if err := unix.PtraceCont(pid, 0); err != nil {
			return false, err
		}
		return false, nil
	}

	event := ws.TrapCause()
	switch event {
	case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
		t.forks++
		t.state = TraceNormal
	case unix.PTRACE_EVENT_EXEC:
		// An exec before any fork (a shell wrapper) does not count.
		if t.forks >= 1 {
			t.execSeen = true
		}
	}

	if err := unix.PtraceCont(pid, 0); err != nil {
		return false, err
	}

	need := 1
	if wantDaemon {
		need = 2
	}
	if t.forks >= need {
		return true, nil
	}
	if wantDaemon && t.forks >= 1 && t.execSeen {
		return true, nil
	}
	return false, nil
}

// TraceTracker holds the per-job fork counter driving Advance.
type TraceTracker struct {
	state    TraceState
	forks    int
	execSeen bool
}

func NewTraceTracker() *TraceTracker { return &TraceTracker{state: TraceNew} }

func (t *TraceTracker) State() TraceState { return t.state }
func (t *TraceTracker) Forks() int        { return t.forks }
