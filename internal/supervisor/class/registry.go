package class

import (
	"os"
	"sort"
	"sync"

	"github.com/tjper/initd/internal/log"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "class")

// Notifier receives JobAdded/JobRemoved notifications when the registered
// class for a name changes (spec.md §4.3, §6.3).
type Notifier interface {
	JobAdded(c *JobClass)
	JobRemoved(c *JobClass)
}

// candidate pairs a proposed JobClass with its registration order, used to
// break Source precedence ties deterministically (spec.md §9: "iteration
// order must be deterministic for reproducible tests").
type candidate struct {
	class *JobClass
	seq   uint64
}

// Registry is keyed by (name, session); on conflict it selects the best
// candidate by configuration source precedence (spec.md §3.3, §4.3).
type Registry struct {
	mutex      sync.RWMutex
	notifier   Notifier
	seq        uint64
	candidates map[Key][]candidate
	active     map[Key]*JobClass
}

// NewRegistry creates an empty Registry reporting changes to notifier.
// notifier may be nil.
func NewRegistry(notifier Notifier) *Registry {
	return &Registry{
		notifier:   notifier,
		candidates: make(map[Key][]candidate),
		active:     make(map[Key]*JobClass),
	}
}

// Propose registers c as a candidate definition for its (Session, Name) and
// re-runs selection for that key (spec.md §4.3).
func (r *Registry) Propose(c *JobClass) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := c.Key()
	r.seq++
	r.candidates[key] = append(r.candidates[key], candidate{class: c, seq: r.seq})
	if c.Instances == nil {
		c.Instances = make(map[string]Instance)
	}

	r.selectBest(key)
}

// Withdraw removes c from the candidate pool for its key and re-runs
// selection. If c was the active class and has no live instances, it is
// deregistered immediately; if it has live instances, withdrawal of the
// active class is refused (the caller must drive it to empty first).
func (r *Registry) Withdraw(c *JobClass) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := c.Key()
	if r.active[key] == c && len(c.Instances) > 0 {
		return false
	}

	cands := r.candidates[key]
	for i, cand := range cands {
		if cand.class == c {
			r.candidates[key] = append(cands[:i], cands[i+1:]...)
			break
		}
	}

	if r.active[key] == c {
		delete(r.active, key)
		r.notify(nil, c)
	}

	r.selectBest(key)
	return true
}

// Reconsider re-runs selection for the class's key: if a strictly better
// candidate than the currently active one exists and the active class has
// no live instances, the swap is performed (spec.md §4.3).
func (r *Registry) Reconsider(key Key) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.selectBest(key)
}

// Get returns the currently active class for key, if any.
func (r *Registry) Get(key Key) (*JobClass, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	c, ok := r.active[key]
	return c, ok
}

// All returns every currently active class, in a deterministic (name,
// session) order (spec.md §9).
func (r *Registry) All() []*JobClass {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*JobClass, 0, len(r.active))
	for _, c := range r.active {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Session < out[j].Session
	})
	return out
}

// selectBest picks the highest-Source candidate for key (ties broken by
// earliest proposal) and swaps it in if it differs from the active class,
// deferring the swap if the incumbent still has live instances
// (spec.md §4.3). Caller must hold r.mutex.
func (r *Registry) selectBest(key Key) {
	cands := r.candidates[key]
	if len(cands) == 0 {
		return
	}

	best := cands[0]
	for _, cand := range cands[1:] {
		if cand.class.Source > best.class.Source ||
			(cand.class.Source == best.class.Source && cand.seq < best.seq) {
			best = cand
		}
	}

	incumbent, hasIncumbent := r.active[key]
	if hasIncumbent && incumbent == best.class {
		return
	}
	if hasIncumbent && len(incumbent.Instances) > 0 {
		logger.Infof("deferring class replacement; name: %s, session: %s", key.Name, key.Session)
		return
	}

	r.active[key] = best.class
	r.notify(best.class, incumbent)
}

func (r *Registry) notify(added, removed *JobClass) {
	if r.notifier == nil {
		return
	}
	if removed != nil {
		r.notifier.JobRemoved(removed)
	}
	if added != nil {
		r.notifier.JobAdded(added)
	}
}
