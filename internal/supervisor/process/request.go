// Package process spawns and reaps the processes backing a job's PRE_START,
// MAIN, POST_START, PRE_STOP, and POST_STOP slots (spec.md §4.7, §4.9). It
// reexecs the supervisor's own binary for every process it spawns, grounded
// on the teacher's reexec two-pipe model (internal/jobworker/reexec), so
// rlimits/umask/nice/chroot/uid/gid can be applied in the child before the
// target command is execve'd.
package process

import (
	"fmt"
	"syscall"

	"github.com/google/uuid"
)

// Rlimit mirrors syscall.Rlimit in a form that survives a JSON round-trip
// across the command pipe.
type Rlimit struct {
	Cur uint64
	Max uint64
}

// Console selects how a spawned process's stdio is attached. Kept as a
// small int rather than importing package class, so process has no
// dependency on the job-class model; callers translate class.Console.
type Console int

const (
	ConsoleNone Console = iota
	ConsoleLog
	ConsoleOutput
	ConsoleOwner
)

// Request is the serializable description of a single process spawn,
// written to the reexec'd child's command pipe as JSON (spec.md §4.7).
type Request struct {
	// ID identifies the spawn for logging and output-file naming.
	ID uuid.UUID

	// Argv is the command and its arguments when IsScript is false.
	Argv []string
	// IsScript indicates Script should be run via "sh -e" instead.
	IsScript bool
	Script   string

	Env []string
	Dir string

	Console Console
	LogPath string

	Umask  *uint32
	Nice   *int
	OOMAdj *int
	Chroot string
	UID    *uint32
	GID    *uint32

	Rlimits map[int]Rlimit
}

// ExitCodes used by the reexec child to report setup failures distinctly
// from the target command's own exit status (spec.md §4.7; grounated on
// reexec.CommandSuccess/CommandFailure).
const (
	ExecSuccess = 0
	ExecFailure = 100
)

// toSyscallRlimit converts the wire Rlimit to syscall.Rlimit.
func (r Rlimit) toSyscallRlimit() syscall.Rlimit {
	return syscall.Rlimit{Cur: r.Cur, Max: r.Max}
}

// argv0 returns a human-readable label for logging.
func (r Request) argv0() string {
	if r.IsScript {
		return "sh -e"
	}
	if len(r.Argv) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", r.Argv)
}
