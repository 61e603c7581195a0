package process

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/tjper/initd/internal/log"

	"github.com/pkg/errors"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "process")

// ErrSetup wraps a failure reported by the reexec child during process
// setup (before the target command replaced its image), distinguishing it
// from the target command's own non-zero exit (spec.md §4.7).
type ErrSetup struct {
	Message string
}

func (e *ErrSetup) Error() string { return fmt.Sprintf("process setup failed: %s", e.Message) }

// Handle is a live spawned process.
type Handle struct {
	PID int

	cmd      *exec.Cmd
	cmdIn    *os.File
	statusIn *os.File
}

// Spawn launches req by reexecing the current executable with the "reexec"
// subcommand, writing req as JSON to the child's command pipe
// (spec.md §4.7). It returns once the child process has been started;
// callers use Wait (via the supervisor's reaper) to observe completion.
func Spawn(ctx context.Context, req Request) (*Handle, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "resolve self executable")
	}

	cmdOut, cmdIn, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "new command pipe")
	}
	statusOut, statusIn, err := os.Pipe()
	if err != nil {
		cmdOut.Close()
		cmdIn.Close()
		return nil, errors.Wrap(err, "new status pipe")
	}

	cmd := exec.CommandContext(ctx, self, "reexec")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.ExtraFiles = []*os.File{cmdOut, statusOut}

	if err := cmd.Start(); err != nil {
		cmdOut.Close()
		cmdIn.Close()
		statusOut.Close()
		statusIn.Close()
		return nil, errors.Wrap(err, "start reexec child")
	}
	cmdOut.Close()
	statusOut.Close()

	b, err := json.Marshal(req)
	if err != nil {
		cmdIn.Close()
		statusIn.Close()
		return nil, errors.Wrap(err, "marshal spawn request")
	}
	if _, err := cmdIn.Write(b); err != nil {
		cmdIn.Close()
		statusIn.Close()
		return nil, errors.Wrap(err, "write spawn request")
	}
	if err := cmdIn.Close(); err != nil {
		logger.Errorf("closing command pipe; error: %s", err)
	}

	logger.Infof("spawned process; id: %s, argv: %s, pid: %d", req.ID, req.argv0(), cmd.Process.Pid)

	return &Handle{PID: cmd.Process.Pid, cmd: cmd, statusIn: statusIn}, nil
}

// SetupError reads the status pipe for a setup-phase failure message,
// blocking until the child either reports one or closes the pipe via
// O_CLOEXEC on a successful execve (spec.md §4.7). A nil return means the
// child reached execve successfully.
func (h *Handle) SetupError() error {
	b := make([]byte, 4096)
	n, err := h.statusIn.Read(b)
	h.statusIn.Close()
	if n > 0 {
		return &ErrSetup{Message: string(b[:n])}
	}
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return nil
	}
	return nil
}

// Wait blocks until the process exits and returns its *os.ProcessState.
func (h *Handle) Wait() (*os.ProcessState, error) {
	err := h.cmd.Wait()
	if h.cmd.ProcessState != nil {
		return h.cmd.ProcessState, nil
	}
	return nil, err
}

// Signal delivers sig to the process group led by the spawned process, so
// a script's "sh -e" wrapper and whatever it forked are reached together
// (spec.md §4.9 KILLED).
func (h *Handle) Signal(sig syscall.Signal) error {
	return syscall.Kill(-h.PID, sig)
}
