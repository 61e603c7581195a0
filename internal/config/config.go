// Package config resolves the small set of environment variables and
// flags the supervisor's core owns directly (spec.md §6.5): listen
// address and TLS material are flag-driven (internal/cli), while session
// mode and the log output root are resolved here in one documented
// precedence order.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

const (
	envSession     = "UPSTART_SESSION"
	envNoSessions  = "UPSTART_NO_SESSIONS"
	envLogDir      = "UPSTART_LOGDIR"
	defaultLogRoot = "/var/log/initd"
)

// Runtime bundles the resolved session/log configuration a process needs
// at startup (spec.md §6.5).
type Runtime struct {
	// Session is the active session name ("" for the system session).
	Session string
	// LogDir is the root directory spawned jobs' console logs are written
	// under.
	LogDir string
}

// Resolve reads the environment once, applying UPSTART_NO_SESSIONS >
// UPSTART_SESSION > per-user default, and UPSTART_LOGDIR > per-session
// default > defaultLogRoot, in that order (spec.md §6.5, §9).
func Resolve() (Runtime, error) {
	if os.Getenv(envNoSessions) != "" {
		return Runtime{Session: "", LogDir: resolveLogDir("")}, nil
	}

	session := os.Getenv(envSession)
	if session == "" {
		if u, err := user.Current(); err == nil {
			session = u.Username
		}
	}
	return Runtime{Session: session, LogDir: resolveLogDir(session)}, nil
}

func resolveLogDir(session string) string {
	if dir := os.Getenv(envLogDir); dir != "" {
		return dir
	}
	if session == "" {
		return defaultLogRoot
	}
	return filepath.Join(defaultLogRoot, session)
}

// EnsureLogDir creates rt.LogDir if it doesn't already exist.
func EnsureLogDir(rt Runtime) error {
	if err := os.MkdirAll(rt.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", rt.LogDir, err)
	}
	return nil
}
