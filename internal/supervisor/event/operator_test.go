package event

import "testing"

func TestOperatorMatchAbsorbsEvent(t *testing.T) {
	s := NewStore()
	op := NewMatch(Pattern{Name: "starting"})

	e := s.Emit("starting", []string{"FOO=bar"})
	op.Evaluate(s, e, nil)

	if !op.Satisfied() {
		t.Fatalf("expected match node to be satisfied")
	}
	if got := e.Blockers(); got != 1 {
		t.Fatalf("blockers = %d, want 1", got)
	}
}

func TestOperatorMatchIgnoresOtherNames(t *testing.T) {
	s := NewStore()
	op := NewMatch(Pattern{Name: "starting"})

	e := s.Emit("stopping", nil)
	op.Evaluate(s, e, nil)

	if op.Satisfied() {
		t.Fatalf("expected match node to remain unsatisfied")
	}
}

func TestOperatorAND(t *testing.T) {
	a := NewMatch(Pattern{Name: "a"})
	b := NewMatch(Pattern{Name: "b"})
	op := NewAND(a, b)

	s := NewStore()
	op.Evaluate(s, s.Emit("a", nil), nil)
	if op.Satisfied() {
		t.Fatalf("AND should not be satisfied with only one child matched")
	}

	op.Evaluate(s, s.Emit("b", nil), nil)
	if !op.Satisfied() {
		t.Fatalf("AND should be satisfied once both children matched")
	}
}

func TestOperatorOR(t *testing.T) {
	a := NewMatch(Pattern{Name: "a"})
	b := NewMatch(Pattern{Name: "b"})
	op := NewOR(a, b)

	s := NewStore()
	op.Evaluate(s, s.Emit("a", nil), nil)
	if !op.Satisfied() {
		t.Fatalf("OR should be satisfied once one child matched")
	}
}

func TestOperatorEnvOverrideMustMatch(t *testing.T) {
	s := NewStore()
	op := NewMatch(Pattern{Name: "starting", Env: []string{"LEVEL=2"}})

	miss := s.Emit("starting", []string{"LEVEL=3"})
	op.Evaluate(s, miss, nil)
	if op.Satisfied() {
		t.Fatalf("expected mismatched env override to not satisfy the node")
	}

	hit := s.Emit("starting", []string{"LEVEL=2"})
	op.Evaluate(s, hit, nil)
	if !op.Satisfied() {
		t.Fatalf("expected matching env override to satisfy the node")
	}
}

func TestOperatorEnvOverrideSubstitutesVars(t *testing.T) {
	s := NewStore()
	op := NewMatch(Pattern{Name: "stopping", Env: []string{"LEVEL=$RUNLEVEL"}})

	resolve := func(name string) (string, bool) {
		if name == "RUNLEVEL" {
			return "2", true
		}
		return "", false
	}

	e := s.Emit("stopping", []string{"LEVEL=2"})
	op.Evaluate(s, e, resolve)
	if !op.Satisfied() {
		t.Fatalf("expected $VAR substitution to resolve against the committed environment")
	}
}

func TestOperatorCollectEnv(t *testing.T) {
	s := NewStore()
	op := NewAND(
		NewMatch(Pattern{Name: "a"}),
		NewMatch(Pattern{Name: "b"}),
	)

	op.Evaluate(s, s.Emit("a", []string{"X=1"}), nil)
	op.Evaluate(s, s.Emit("b", []string{"Y=2"}), nil)
	if !op.Satisfied() {
		t.Fatalf("expected AND to be satisfied")
	}

	env := op.CollectEnv()
	want := map[string]bool{"X=1": false, "Y=2": false, "UPSTART_EVENTS=a b": false}
	for _, kv := range env {
		if _, ok := want[kv]; ok {
			want[kv] = true
		}
	}
	for kv, seen := range want {
		if !seen {
			t.Fatalf("collected env %v missing %q", env, kv)
		}
	}
}

func TestOperatorResetReleasesBlockers(t *testing.T) {
	s := NewStore()
	op := NewMatch(Pattern{Name: "starting"})

	e := s.Emit("starting", nil)
	op.Evaluate(s, e, nil)
	if got := e.Blockers(); got != 1 {
		t.Fatalf("blockers = %d, want 1", got)
	}

	op.Reset(s)
	if op.Satisfied() {
		t.Fatalf("expected node to be unsatisfied after reset")
	}
	if got := e.Blockers(); got != 0 {
		t.Fatalf("blockers after reset = %d, want 0", got)
	}
}
