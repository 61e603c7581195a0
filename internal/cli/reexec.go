package cli

import (
	"context"
	"os"

	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/supervisor/process"
)

var logger = log.New(os.Stdout, "cli")

func runReexec(ctx context.Context) int {
	return process.Reexec()
}
