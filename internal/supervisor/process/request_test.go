package process

import "testing"

func TestRequestArgv0(t *testing.T) {
	tests := map[string]struct {
		req  Request
		want string
	}{
		"script": {
			req:  Request{IsScript: true, Script: "echo hi"},
			want: "sh -e",
		},
		"empty argv": {
			req:  Request{},
			want: "",
		},
		"argv": {
			req:  Request{Argv: []string{"serve", "--port", "8080"}},
			want: "[serve --port 8080]",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tt.req.argv0(); got != tt.want {
				t.Fatalf("argv0() = %q, want %q", got, tt.want)
			}
		})
	}
}
