package inotify

import (
	"testing"

	"github.com/tjper/initd/internal/fsnotify"
	"github.com/tjper/initd/internal/supervisor/event"
)

func TestBridgeEmit(t *testing.T) {
	tests := map[string]struct {
		op        fsnotify.Op
		wantNames []string
	}{
		"create": {
			op:        fsnotify.Create,
			wantNames: []string{"file-created"},
		},
		"write": {
			op:        fsnotify.Write,
			wantNames: []string{"file-modified"},
		},
		"create and write": {
			op:        fsnotify.Create | fsnotify.Write,
			wantNames: []string{"file-created", "file-modified"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := event.NewStore()
			b := &Bridge{store: store}

			b.emit(fsnotify.Event{Op: tc.op, Path: "/tmp/target"})

			for _, want := range tc.wantNames {
				found := false
				for _, got := range store.Pending() {
					if got.Name == want {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("want emitted event %q, got none", want)
				}
			}
		})
	}
}
