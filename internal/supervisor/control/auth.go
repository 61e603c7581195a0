package control

import (
	"context"

	"github.com/tjper/initd/internal/supervisor/user"
)

// userFromContext is a thin indirection over user.FromContext so server.go
// reads as control-surface logic rather than a direct mTLS dependency.
func userFromContext(ctx context.Context) (string, bool) {
	return user.FromContext(ctx)
}
