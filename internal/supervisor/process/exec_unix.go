//go:build linux

package process

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"syscall"

	"golang.org/x/sys/unix"
)

// Reexec is invoked by the "reexec" CLI subcommand in the freshly-forked
// child: it reads a Request off fd 3, applies the class's resource limits,
// and execve's the target command, replacing its own image (spec.md §4.7).
// It returns only on setup failure; success never returns.
func Reexec() int {
	cmdfd := os.NewFile(uintptr(3), "/proc/self/fd/3")
	statusfd := os.NewFile(uintptr(4), "/proc/self/fd/4")
	if cmdfd == nil || statusfd == nil {
		return ExecFailure
	}

	req, err := readRequest(cmdfd)
	if err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}

	if err := applyLimits(req); err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}

	stdin, stdout, stderr, err := openConsole(req)
	if err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}

	argv, extra, err := buildArgv(req)
	if err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}

	if err := dup2std(stdin, stdout, stderr); err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}
	closeExtra(extra, statusfd)

	path, err := lookPath(argv[0])
	if err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}

	// Success: let fd 4 close-on-exec so the parent's read sees EOF.
	if err := syscall.Exec(path, argv, req.Env); err != nil {
		reportFailure(statusfd, err)
		return ExecFailure
	}
	return ExecSuccess
}

func readRequest(fd *os.File) (Request, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(fd); err != nil {
		return Request{}, fmt.Errorf("read command pipe: %w", err)
	}
	var req Request
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		return Request{}, fmt.Errorf("decode spawn request: %w", err)
	}
	return req, nil
}

func reportFailure(fd *os.File, err error) {
	io.WriteString(fd, err.Error())
	fd.Close()
}

// applyLimits applies rlimits, umask, nice, oom_adj, chroot, and uid/gid in
// the order upstart applies them in original_source/job_process.c: limits
// before chroot, chroot before the uid/gid drop (spec.md §4.7).
func applyLimits(req Request) error {
	resources := make([]int, 0, len(req.Rlimits))
	for res := range req.Rlimits {
		resources = append(resources, res)
	}
	sort.Ints(resources)
	for _, res := range resources {
		rl := req.Rlimits[res].toSyscallRlimit()
		if err := unix.Setrlimit(res, &unix.Rlimit{Cur: rl.Cur, Max: rl.Max}); err != nil {
			return fmt.Errorf("setrlimit %d: %w", res, err)
		}
	}

	if req.Umask != nil {
		unix.Umask(int(*req.Umask))
	}

	if req.Nice != nil {
		if err := unix.Setpriority(unix.PRIO_PROCESS, 0, *req.Nice); err != nil {
			return fmt.Errorf("setpriority: %w", err)
		}
	}

	if req.OOMAdj != nil {
		if err := os.WriteFile("/proc/self/oom_score_adj", []byte(fmt.Sprintf("%d", *req.OOMAdj)), 0644); err != nil {
			return fmt.Errorf("oom_score_adj: %w", err)
		}
	}

	if req.Dir != "" {
		if err := unix.Chdir(req.Dir); err != nil {
			return fmt.Errorf("chdir: %w", err)
		}
	}

	if req.Chroot != "" {
		if err := unix.Chroot(req.Chroot); err != nil {
			return fmt.Errorf("chroot: %w", err)
		}
		if err := unix.Chdir("/"); err != nil {
			return fmt.Errorf("chdir after chroot: %w", err)
		}
	}

	if req.GID != nil {
		if err := unix.Setgid(int(*req.GID)); err != nil {
			return fmt.Errorf("setgid: %w", err)
		}
	}
	if req.UID != nil {
		if err := unix.Setuid(int(*req.UID)); err != nil {
			return fmt.Errorf("setuid: %w", err)
		}
	}

	return nil
}

// buildArgv resolves the final argv for execve. Script bodies are
// delivered through an anonymous pipe exposed at /proc/self/fd/N and run
// via "sh -e", grounded on the teacher's command-pipe delivery idiom
// (internal/jobworker/reexec) generalized from JSON payloads to script
// bytes (spec.md §4.7).
func buildArgv(req Request) (argv []string, extra []*os.File, err error) {
	if !req.IsScript {
		if len(req.Argv) == 0 {
			return nil, nil, fmt.Errorf("empty argv")
		}
		return req.Argv, nil, nil
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("script pipe: %w", err)
	}
	// os.Pipe sets FD_CLOEXEC; clear it so the descriptor survives the
	// execve below instead of the target process losing it.
	if _, err := unix.FcntlInt(r.Fd(), unix.F_SETFD, 0); err != nil {
		return nil, nil, fmt.Errorf("clear cloexec on script pipe: %w", err)
	}
	go func() {
		io.WriteString(w, req.Script)
		w.Close()
	}()

	return []string{"/bin/sh", "-e", fmt.Sprintf("/proc/self/fd/%d", r.Fd())}, []*os.File{r}, nil
}
