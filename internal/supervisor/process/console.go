//go:build linux

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// openConsole resolves the stdin/stdout/stderr fds for the spawned process
// according to req.Console (spec.md §4.7, Console modes supplemented per
// SPEC_FULL.md §4).
func openConsole(req Request) (stdin, stdout, stderr *os.File, err error) {
	switch req.Console {
	case ConsoleNone:
		devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, nil, nil, err
		}
		return devnull, devnull, devnull, nil

	case ConsoleLog:
		if req.LogPath == "" {
			return nil, nil, nil, errors.New("console=log requires a log path")
		}
		logfd, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, nil, err
		}
		devnull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
		if err != nil {
			logfd.Close()
			return nil, nil, nil, err
		}
		return devnull, logfd, logfd, nil

	case ConsoleOutput:
		return os.Stdin, os.Stdout, os.Stderr, nil

	case ConsoleOwner:
		tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
		if err != nil {
			return nil, nil, nil, err
		}
		return tty, tty, tty, nil

	default:
		return nil, nil, nil, errors.New("unknown console mode")
	}
}

// dup2std duplicates the resolved stdio fds onto 0/1/2 so they survive the
// upcoming execve regardless of Go's own stdio fd layout.
func dup2std(stdin, stdout, stderr *os.File) error {
	if err := dup2(stdin.Fd(), 0); err != nil {
		return err
	}
	if err := dup2(stdout.Fd(), 1); err != nil {
		return err
	}
	if err := dup2(stderr.Fd(), 2); err != nil {
		return err
	}
	return nil
}

// closeExtra makes the command and status pipes close at execve, matching
// upstart's fd hygiene (spec.md §4.7). Fds inherited through ExtraFiles are
// not close-on-exec, so both are marked here; the original stdio handles
// were opened with O_CLOEXEC already, and the fds in keep stay inheritable.
func closeExtra(keep []*os.File, statusfd *os.File) {
	// statusfd (fd 4) stays open until execve so a later setup failure can
	// still be reported on it; a successful execve closes it, which is the
	// EOF-on-success signal Handle.SetupError relies on.
	_ = keep
	syscall.CloseOnExec(3)
	syscall.CloseOnExec(int(statusfd.Fd()))
}

// lookPath resolves name to an absolute path via the standard PATH lookup.
func lookPath(name string) (string, error) {
	return exec.LookPath(name)
}
