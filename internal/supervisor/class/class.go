// Package class implements the job-class configuration model: the
// attributes shared by every instance of a class, and the per-class
// instance table keyed by expanded instance name (spec.md §3.3, §3.4).
package class

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/tjper/initd/internal/supervisor/event"
)

// ProcessKind enumerates the process slots a class may define (spec.md §3.4).
type ProcessKind int

const (
	PreStart ProcessKind = iota
	Main
	PostStart
	PreStop
	PostStop

	// NumProcessKinds is the fixed number of process slots (spec.md §9:
	// "a generic list obscures the invariants" — use a fixed-size array).
	NumProcessKinds
)

func (k ProcessKind) String() string {
	switch k {
	case PreStart:
		return "pre-start"
	case Main:
		return "main"
	case PostStart:
		return "post-start"
	case PreStop:
		return "pre-stop"
	case PostStop:
		return "post-stop"
	default:
		return "unknown"
	}
}

// ProcessDef describes a single process slot's command.
type ProcessDef struct {
	// Defined indicates the class configures this slot at all.
	Defined bool
	// Command is the leading executable name (used when IsScript is false).
	Command string
	// Args are the arguments passed to Command.
	Args []string
	// IsScript indicates the process body is a shell script rather than a
	// direct command (spec.md §4.7).
	IsScript bool
	// Script is the shell script body, delivered via a pipe when IsScript is
	// true (spec.md §4.7).
	Script string
}

// Expect configures how the supervisor detects that a MAIN process has
// become "ready" (spec.md §3.4, GLOSSARY).
type Expect int

const (
	// ExpectNone advances to Running as soon as MAIN is spawned.
	ExpectNone Expect = iota
	// ExpectFork waits for a single ptrace-observed fork.
	ExpectFork
	// ExpectDaemon waits for two ptrace-observed forks (or an exec after one).
	ExpectDaemon
	// ExpectStop waits for the MAIN process to raise SIGSTOP itself.
	ExpectStop
)

// Console selects how a spawned process's stdio is attached (spec.md §4.7,
// supplemented per SPEC_FULL.md §4 with "output"/"owner" modes carried over
// from original_source/init/job_class.c).
type Console int

const (
	// ConsoleNone binds stdio to /dev/null.
	ConsoleNone Console = iota
	// ConsoleLog appends stdout and stderr to the job's log file and binds
	// stdin to /dev/null; no pty is allocated.
	ConsoleLog
	// ConsoleOutput binds stdio to the supervisor's own stdio.
	ConsoleOutput
	// ConsoleOwner binds stdio to the controlling terminal.
	ConsoleOwner
)

// Limits bundles the per-class resource constraints applied at spawn time
// (spec.md §3.3, §4.7).
type Limits struct {
	// Rlimits maps an RLIMIT_* resource (syscall.RLIMIT_*) to its desired
	// value. A resource absent from the map is left at the supervisor's own
	// limit.
	Rlimits map[int]syscall.Rlimit
	Umask   *uint32
	Nice    *int
	OOMAdj  *int
	Chroot  string
	Dir     string
	UID     *uint32
	GID     *uint32
}

// Respawn is the sliding-window budget capping automatic restarts
// (spec.md §4.6).
type Respawn struct {
	Enabled  bool
	Limit    int
	Interval time.Duration
}

// JobClass is a reusable definition that may yield zero or more instances
// (spec.md §3.3). (Session, Name) is unique across a registry.
type JobClass struct {
	Name    string
	Session string

	// Instance is the instance-name template, possibly containing $VAR
	// references resolved against the matched start event's environment
	// (spec.md §3.3).
	Instance string
	Env      []string

	StartOn *event.Operator
	StopOn  *event.Operator
	Emits   []string

	Processes [NumProcessKinds]ProcessDef
	Expect    Expect
	Console   Console
	Limits    Limits

	Respawn     Respawn
	NormalExit  map[int]struct{}
	KillTimeout time.Duration
	KillSignal  syscall.Signal

	// Source ranks this definition's configuration precedence among
	// overlapping candidates for the same (Session, Name); higher wins
	// (spec.md §4.3).
	Source int

	// Instances is the per-class hash of live instances, keyed by expanded
	// instance name (empty string for a singleton class). It is exclusively
	// mutated by the dispatcher's single loop (spec.md §5, §9).
	Instances map[string]Instance
}

// Instance is the minimal surface class needs from a live job instance to
// avoid an import cycle with package job, which holds the authoritative
// *JobClass back-reference (spec.md §3.5).
type Instance interface {
	InstanceName() string
}

// Path returns the opaque stable identifier derived from (Session, Name,
// Instance); spec.md §3.3 names but does not otherwise constrain a stable
// instance identifier, so this repo uses a D-Bus-object-path-shaped slug a
// control surface can expose directly. instance is "" for a singleton
// class, giving its one instance the same path as ClassPath.
func Path(session, name, instance string) string {
	if instance == "" {
		return ClassPath(session, name)
	}
	return ClassPath(session, name) + "/" + slug(instance)
}

// ClassPath returns the opaque identifier for a class itself (every
// instance's path is a child of it), used by control.Server to match a
// class-scoped lookup against req.Path's prefix.
func ClassPath(session, name string) string {
	if session == "" {
		return fmt.Sprintf("/org/initd/Job/%s", slug(name))
	}
	return fmt.Sprintf("/org/initd/Job/%s/%s", slug(session), slug(name))
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Key identifies a class uniquely within a registry.
type Key struct {
	Session string
	Name    string
}

func (c *JobClass) Key() Key { return Key{Session: c.Session, Name: c.Name} }
