package class

import "testing"

type recordingNotifier struct {
	added   []*JobClass
	removed []*JobClass
}

func (n *recordingNotifier) JobAdded(c *JobClass)   { n.added = append(n.added, c) }
func (n *recordingNotifier) JobRemoved(c *JobClass) { n.removed = append(n.removed, c) }

func TestRegistryProposeActivatesSoleCandidate(t *testing.T) {
	n := &recordingNotifier{}
	r := NewRegistry(n)

	c := &JobClass{Name: "web", Session: "s"}
	r.Propose(c)

	got, ok := r.Get(c.Key())
	if !ok || got != c {
		t.Fatalf("expected %v to be active, got %v (ok=%v)", c, got, ok)
	}
	if len(n.added) != 1 || n.added[0] != c {
		t.Fatalf("expected JobAdded notification for %v, got %v", c, n.added)
	}
}

func TestRegistrySelectsHigherSource(t *testing.T) {
	n := &recordingNotifier{}
	r := NewRegistry(n)

	low := &JobClass{Name: "web", Session: "s", Source: 1}
	high := &JobClass{Name: "web", Session: "s", Source: 2}

	r.Propose(low)
	r.Propose(high)

	got, _ := r.Get(low.Key())
	if got != high {
		t.Fatalf("expected higher-Source candidate to win, got %v", got)
	}
}

func TestRegistryTieBreaksByProposalOrder(t *testing.T) {
	r := NewRegistry(nil)

	first := &JobClass{Name: "web", Session: "s", Source: 1}
	second := &JobClass{Name: "web", Session: "s", Source: 1}

	r.Propose(first)
	r.Propose(second)

	got, _ := r.Get(first.Key())
	if got != first {
		t.Fatalf("expected earliest proposal to win a Source tie, got %v", got)
	}
}

func TestRegistryWithdrawRefusedWithLiveInstances(t *testing.T) {
	r := NewRegistry(nil)

	c := &JobClass{Name: "web", Session: "s"}
	r.Propose(c)
	c.Instances["1"] = nil

	if r.Withdraw(c) {
		t.Fatalf("expected Withdraw to be refused while instances remain live")
	}
	if _, ok := r.Get(c.Key()); !ok {
		t.Fatalf("expected class to remain active after refused withdrawal")
	}
}

func TestRegistryWithdrawDeactivatesWhenEmpty(t *testing.T) {
	n := &recordingNotifier{}
	r := NewRegistry(n)

	c := &JobClass{Name: "web", Session: "s"}
	r.Propose(c)

	if !r.Withdraw(c) {
		t.Fatalf("expected Withdraw to succeed with no live instances")
	}
	if _, ok := r.Get(c.Key()); ok {
		t.Fatalf("expected class to no longer be active")
	}
	if len(n.removed) != 1 || n.removed[0] != c {
		t.Fatalf("expected JobRemoved notification for %v, got %v", c, n.removed)
	}
}

func TestRegistryReplacementDeferredUntilEmpty(t *testing.T) {
	n := &recordingNotifier{}
	r := NewRegistry(n)

	incumbent := &JobClass{Name: "web", Session: "s", Source: 1}
	r.Propose(incumbent)
	incumbent.Instances["1"] = nil

	challenger := &JobClass{Name: "web", Session: "s", Source: 2}
	r.Propose(challenger)

	got, _ := r.Get(incumbent.Key())
	if got != incumbent {
		t.Fatalf("expected replacement to be deferred while incumbent has instances, got %v", got)
	}

	delete(incumbent.Instances, "1")
	r.Reconsider(incumbent.Key())

	got, _ = r.Get(incumbent.Key())
	if got != challenger {
		t.Fatalf("expected challenger to take over once incumbent emptied, got %v", got)
	}
}

func TestRegistryAllSortedDeterministically(t *testing.T) {
	r := NewRegistry(nil)

	r.Propose(&JobClass{Name: "web", Session: "b"})
	r.Propose(&JobClass{Name: "api", Session: "a"})
	r.Propose(&JobClass{Name: "web", Session: "a"})

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Name > cur.Name || (prev.Name == cur.Name && prev.Session > cur.Session) {
			t.Fatalf("All() not sorted: %v before %v", prev, cur)
		}
	}
}
