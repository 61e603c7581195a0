// Package output provides utilities for interacting with job log output.
package output

import (
	"fmt"
	"path"
)

const (
	// Root is the default log output root directory. Overridable via the
	// UPSTART_LOGDIR environment variable (spec.md §6.5).
	Root = "/var/log/initd"
	// FileMode is the default FileMode for log output resources.
	FileMode = 0644
)

// File returns the standard log file location for the instance uniquely
// identified by id, rooted under dir. An empty dir falls back to Root.
func File(dir string, id fmt.Stringer) string {
	if dir == "" {
		dir = Root
	}
	return path.Join(dir, fmt.Sprintf("%s.log", id.String()))
}
