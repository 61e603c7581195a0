//go:build linux

package process

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenConsoleNone(t *testing.T) {
	stdin, stdout, stderr, err := openConsole(Request{Console: ConsoleNone})
	if err != nil {
		t.Fatalf("openConsole() error = %v", err)
	}
	defer stdin.Close()
	defer stdout.Close()
	defer stderr.Close()

	if stdin.Name() != os.DevNull || stdout.Name() != os.DevNull || stderr.Name() != os.DevNull {
		t.Fatalf("expected all three fds to be %s, got stdin=%s stdout=%s stderr=%s",
			os.DevNull, stdin.Name(), stdout.Name(), stderr.Name())
	}
}

func TestOpenConsoleLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "job.log")

	stdin, stdout, stderr, err := openConsole(Request{Console: ConsoleLog, LogPath: logPath})
	if err != nil {
		t.Fatalf("openConsole() error = %v", err)
	}
	defer stdin.Close()
	defer stdout.Close()
	defer stderr.Close()

	if stdout.Name() != logPath || stderr.Name() != logPath {
		t.Fatalf("expected stdout/stderr to be %s, got stdout=%s stderr=%s", logPath, stdout.Name(), stderr.Name())
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
}

func TestOpenConsoleLogRequiresPath(t *testing.T) {
	if _, _, _, err := openConsole(Request{Console: ConsoleLog}); err == nil {
		t.Fatalf("expected error when LogPath is empty")
	}
}

func TestOpenConsoleUnknownMode(t *testing.T) {
	if _, _, _, err := openConsole(Request{Console: Console(99)}); err == nil {
		t.Fatalf("expected error for unknown console mode")
	}
}
