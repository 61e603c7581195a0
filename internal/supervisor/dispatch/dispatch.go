// Package dispatch implements the single-threaded cooperative event loop
// that owns every class/instance table mutation (spec.md §5, §9): it is the
// only place start_on/stop_on are evaluated against pending events, the
// only place process exits are routed back to their owning job, and the
// only place external control requests are applied.
package dispatch

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/event"
	"github.com/tjper/initd/internal/supervisor/job"
	"github.com/tjper/initd/internal/supervisor/process"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "dispatch")

// InstanceNotifier receives InstanceAdded/InstanceRemoved notifications,
// mirroring class.Notifier but for individual job instances rather than
// classes (spec.md §6.3).
type InstanceNotifier interface {
	InstanceAdded(c *class.JobClass, j *job.Job)
	InstanceRemoved(c *class.JobClass, j *job.Job)
}

type pidRef struct {
	ctrl *job.Controller
	kind class.ProcessKind
}

// Supervisor is the dispatcher. Exactly one goroutine should call Run.
type Supervisor struct {
	store    *event.Store
	registry *class.Registry
	reaper   *process.Reaper

	outputDir string
	spawn     job.Spawner

	instances map[class.Key]map[string]*job.Controller
	pids      map[int]pidRef

	notifier InstanceNotifier

	inbox chan func()

	mutex sync.Mutex // guards instances/pids against Submit-driven reads
}

// Config bundles the collaborators a Supervisor is built from.
type Config struct {
	Store     *event.Store
	Registry  *class.Registry
	Reaper    *process.Reaper
	OutputDir string
	// Spawn overrides process.Spawn; nil uses the real implementation.
	Spawn    job.Spawner
	Notifier InstanceNotifier
}

// New creates a Supervisor. The caller must register it as the registry's
// Notifier (class.NewRegistry(supervisor)) so JobAdded/JobRemoved reach it.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		store:     cfg.Store,
		registry:  cfg.Registry,
		reaper:    cfg.Reaper,
		outputDir: cfg.OutputDir,
		spawn:     cfg.Spawn,
		notifier:  cfg.Notifier,
		instances: make(map[class.Key]map[string]*job.Controller),
		pids:      make(map[int]pidRef),
		inbox:     make(chan func(), 64),
	}
}

// Submit enqueues fn to run on the dispatch goroutine, the only way
// external callers (the control surface) may touch class/instance state
// (spec.md §5, §9). fn is dropped, not run, if the inbox already holds 64
// commands; a command still queued when Run returns is never run.
func (s *Supervisor) Submit(fn func()) {
	select {
	case s.inbox <- fn:
	default:
		logger.Errorf("dispatch inbox full, dropping submitted command")
	}
}

// SubmitSync runs fn on the dispatch goroutine and blocks until it returns.
func (s *Supervisor) SubmitSync(fn func()) {
	done := make(chan struct{})
	s.Submit(func() {
		fn()
		close(done)
	})
	<-done
}

// Run drives the cooperative loop until ctx is cancelled (spec.md §5):
// drain submitted commands, reap process exits, evaluate start_on/stop_on
// against pending events, and flush the event store to a fixed point
// before going back to sleep.
func (s *Supervisor) Run(ctx context.Context) {
	s.settle()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.inbox:
			fn()
			s.settle()
		case exit := <-s.reaper.Exits():
			s.handleExit(exit)
			s.settle()
		}
	}
}

// settle runs dispatch passes until nothing progresses (spec.md §4.1,
// §4.4, §4.5): a stable fixed point for this round of external input.
func (s *Supervisor) settle() {
	for {
		progressed := false
		if s.startingPass() {
			progressed = true
		}
		if s.stoppingPass() {
			progressed = true
		}
		if s.store.Pass(func(*event.Event) {}) {
			progressed = true
		}
		s.reapDestroyed()
		if !progressed {
			return
		}
	}
}

func (s *Supervisor) handleExit(exit process.Exit) {
	s.mutex.Lock()
	ref, ok := s.pids[exit.PID]
	s.mutex.Unlock()
	if !ok {
		logger.Infof("reaped unknown pid; pid: %d", exit.PID)
		return
	}
	ref.ctrl.ProcessExited(ref.kind, exit)
}

// registerPID and unregisterPID back job.Environment.RegisterPID /
// UnregisterPID, letting the FSM update the dispatcher's pid index without
// importing package dispatch (spec.md §3.5 invariant 5).
func (s *Supervisor) registerPID(pid int, j *job.Job, kind class.ProcessKind) {
	s.mutex.Lock()
	s.pids[pid] = pidRef{ctrl: s.controllerFor(j), kind: kind}
	s.mutex.Unlock()
}

func (s *Supervisor) unregisterPID(pid int) {
	s.mutex.Lock()
	delete(s.pids, pid)
	s.mutex.Unlock()
}

// controllerFor finds the Controller owning j by scanning every instance;
// registerPID uses it to fill the pid index, since its callback signature
// carries only the *job.Job.
func (s *Supervisor) controllerFor(j *job.Job) *job.Controller {
	for _, byName := range s.instances {
		for _, ctrl := range byName {
			if ctrl.Job == j {
				return ctrl
			}
		}
	}
	return nil
}

// environment builds the job.Environment passed to every Controller this
// Supervisor creates.
func (s *Supervisor) environment() job.Environment {
	return job.Environment{
		Store:         s.store,
		Spawn:         s.spawn,
		OutputDir:     s.outputDir,
		RegisterPID:   s.registerPID,
		UnregisterPID: s.unregisterPID,
	}
}

// JobAdded satisfies class.Notifier: a singleton class (no start_on) is
// instantiated and started immediately, mirroring original_source's
// always-running jobs; classes with start_on wait for the starting pass
// (spec.md §4.3).
func (s *Supervisor) JobAdded(c *class.JobClass) {
	logger.Infof("class added; name: %s, session: %s", c.Name, c.Session)
	if c.StartOn == nil {
		ctrl := s.createInstance(c, "", nil)
		ctrl.Start(nil)
	}
}

// JobRemoved satisfies class.Notifier: every live instance of the removed
// class is driven toward Stop so it tears down cleanly (spec.md §4.3).
func (s *Supervisor) JobRemoved(c *class.JobClass) {
	logger.Infof("class removed; name: %s, session: %s", c.Name, c.Session)
	for _, ctrl := range s.instancesOf(c) {
		ctrl.Stop(nil)
	}
}

// eventUnblocker adapts a pending event.Store.Unblock call to event.Waiter
// so it can sit in a job's Blocking list and fire once the instance it
// caused stabilises, rather than the moment its operator tree absorbed it
// (spec.md §4.4 step 4, scenario S3).
type eventUnblocker struct {
	store *event.Store
	event *event.Event
}

func (w eventUnblocker) Notify() { w.store.Unblock(w.event) }

// deferUnblock clears op's transient match state (so the next incoming
// event can match it fresh) but keeps every absorbed event blocked, by
// registering each as a Blocked(KindEvent) waiter on ctrl's Job: they are
// only unblocked when the instance reaches a stable state (Running for
// startingPass, Waiting for stoppingPass), via job.DrainBlocking called from
// job.Controller's enterRunning/finishStopping (spec.md §3.1, §4.4 step 4).
func (s *Supervisor) deferUnblock(op *event.Operator, ctrl *job.Controller) {
	for _, e := range op.ResetDeferred() {
		ctrl.Job.AddBlocking(event.NewBlocked(event.KindEvent, eventUnblocker{store: s.store, event: e}))
	}
}

// startingPass evaluates every active class's start_on tree against every
// currently Pending event, instantiating and starting jobs whose condition
// becomes satisfied (spec.md §4.4).
func (s *Supervisor) startingPass() bool {
	progressed := false
	pending := s.store.Pending()
	classes := s.registry.All()

	for _, e := range pending {
		for _, c := range classes {
			if c.StartOn == nil {
				continue
			}
			c.StartOn.Evaluate(s.store, e, nil)
			if !c.StartOn.Satisfied() {
				continue
			}

			env := c.StartOn.CollectEnv()
			name := expandInstance(c.Instance, env)

			ctrl := s.lookupOrCreate(c, name)
			ctrl.Start(env)

			s.deferUnblock(c.StartOn, ctrl)
			progressed = true
		}
	}
	return progressed
}

// stoppingPass evaluates every running instance's class's stop_on tree
// against pending events, resolving $VAR references against that
// instance's own committed environment (spec.md §4.5).
func (s *Supervisor) stoppingPass() bool {
	progressed := false
	pending := s.store.Pending()

	for _, c := range s.registry.All() {
		if c.StopOn == nil {
			continue
		}
		for name, ctrl := range s.instancesOf(c) {
			resolve := envResolver(ctrl.Job.Env)
			for _, e := range pending {
				c.StopOn.Evaluate(s.store, e, resolve)
			}
			if !c.StopOn.Satisfied() {
				continue
			}
			env := c.StopOn.CollectEnv()
			ctrl.Stop(env)
			s.deferUnblock(c.StopOn, ctrl)
			progressed = true
			_ = name
		}
	}
	return progressed
}

// Store exposes the underlying event.Store so the control surface can emit
// events (spec.md §6.1) from within a Submit/SubmitSync closure; callers
// outside the dispatch goroutine must not touch it directly.
func (s *Supervisor) Store() *event.Store { return s.store }

// ControllerFor returns the Controller backing (c, name), if the dispatch
// loop has created one. Used by the control surface (package control) to
// resolve a Start/Stop/Restart request's target; always called from within
// a SubmitSync closure so the lookup is race-free with instancesOf's
// bookkeeping (spec.md §5, §6.2).
func (s *Supervisor) ControllerFor(c *class.JobClass, name string) *job.Controller {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	byName, ok := s.instances[c.Key()]
	if !ok {
		return nil
	}
	return byName[name]
}

// EnsureController behaves like ControllerFor but creates the instance (and
// notifies InstanceAdded) if it doesn't exist yet, for a control-surface
// Start call that names a class manual operators bring up directly rather
// than through start_on (spec.md §6.2). Must be called from within Submit
// or SubmitSync.
func (s *Supervisor) EnsureController(c *class.JobClass, name string) *job.Controller {
	return s.lookupOrCreate(c, name)
}

func (s *Supervisor) instancesOf(c *class.JobClass) map[string]*job.Controller {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make(map[string]*job.Controller, len(s.instances[c.Key()]))
	for k, v := range s.instances[c.Key()] {
		out[k] = v
	}
	return out
}

// lookupOrCreate returns the existing Controller for (c, name), or creates
// one. Re-entrant: called only from the dispatch goroutine.
func (s *Supervisor) lookupOrCreate(c *class.JobClass, name string) *job.Controller {
	key := c.Key()

	s.mutex.Lock()
	if byName, ok := s.instances[key]; ok {
		if ctrl, ok := byName[name]; ok {
			s.mutex.Unlock()
			return ctrl
		}
	}
	s.mutex.Unlock()

	return s.createInstance(c, name, nil)
}

func (s *Supervisor) createInstance(c *class.JobClass, name string, startEnv []string) *job.Controller {
	j := job.New(c, name)
	ctrl := job.NewController(j, s.environment())

	s.mutex.Lock()
	if s.instances[c.Key()] == nil {
		s.instances[c.Key()] = make(map[string]*job.Controller)
	}
	s.instances[c.Key()][name] = ctrl
	s.mutex.Unlock()

	c.Instances[name] = j
	if s.notifier != nil {
		s.notifier.InstanceAdded(c, j)
	}
	logger.Infof("instance created; class: %s, name: %q", c.Name, name)
	return ctrl
}

// reapDestroyed removes any Controller whose Job has reached its destroy
// precondition. settle calls it after every round of passes
// (Job.MarkDestroyed is set by the FSM itself).
func (s *Supervisor) reapDestroyed() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key, byName := range s.instances {
		for name, ctrl := range byName {
			if !ctrl.Job.Destroyed() {
				continue
			}
			delete(byName, name)
			if c, ok := s.registry.Get(key); ok {
				delete(c.Instances, name)
				if s.notifier != nil {
					s.notifier.InstanceRemoved(c, ctrl.Job)
				}
			}
		}
	}
}

// expandInstance substitutes "$VAR" references in tmpl against env,
// reusing the same substitution rules as event.Operator patterns
// (spec.md §3.3).
func expandInstance(tmpl string, env []string) string {
	if tmpl == "" {
		return ""
	}
	resolve := envResolver(env)
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '$' || i+1 >= len(tmpl) {
			b.WriteByte(tmpl[i])
			continue
		}
		j := i + 1
		for j < len(tmpl) && isVarRune(tmpl[j]) {
			j++
		}
		name := tmpl[i+1 : j]
		if name == "" {
			b.WriteByte(tmpl[i])
			continue
		}
		if v, ok := resolve(name); ok {
			b.WriteString(v)
		} else {
			b.WriteString(tmpl[i:j])
		}
		i = j - 1
	}
	return b.String()
}

func isVarRune(r byte) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func envResolver(env []string) func(string) (string, bool) {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		m[kv[:idx]] = kv[idx+1:]
	}
	return func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	}
}
