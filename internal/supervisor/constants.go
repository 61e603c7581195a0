// Package supervisor contains shared constants used across the supervisor
// subpackages and by internal/cli.
package supervisor

const (
	// Reexec is the subcommand the supervisor's own binary re-execs itself
	// with to become a spawned job's process image (spec.md §4.7).
	Reexec = "reexec"
)
