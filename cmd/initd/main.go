// Command initd is the process supervisor's executable: it serves the
// supervisor control API, and re-execs into spawned jobs' process images
// when invoked as "initd reexec".
package main

import (
	"os"

	"github.com/tjper/initd/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
