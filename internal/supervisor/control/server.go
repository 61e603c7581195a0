package control

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tjper/initd/internal/log"
	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/dispatch"
	"github.com/tjper/initd/internal/supervisor/event"
	"github.com/tjper/initd/internal/supervisor/job"
)

// logger is an object for logging package events to stdout.
var logger = log.New(os.Stdout, "control")

// ErrNotFound is returned when a requested instance does not exist.
type ErrNotFound struct{ Path string }

func (e ErrNotFound) Error() string { return fmt.Sprintf("control: instance not found: %s", e.Path) }

// ErrNoClass is returned when Start/Stop/Restart name a class with no
// active definition.
type ErrNoClass struct {
	Session, Name string
}

func (e ErrNoClass) Error() string {
	return fmt.Sprintf("control: no active class; session: %q, name: %q", e.Session, e.Name)
}

// ErrUnknownInstance is returned when Stop/Restart name an instance that
// does not exist (spec.md §6.2, idempotence law §8.2).
type ErrUnknownInstance struct{ Path string }

func (e ErrUnknownInstance) Error() string {
	return fmt.Sprintf("control: unknown instance: %s", e.Path)
}

// ErrAlreadyStarted is returned by Start when the targeted instance's goal
// is already Start (spec.md §6.2, idempotence law §8.2).
type ErrAlreadyStarted struct{ Path string }

func (e ErrAlreadyStarted) Error() string {
	return fmt.Sprintf("control: already started: %s", e.Path)
}

// ErrAlreadyStopped is returned by Stop/Restart when the targeted instance
// is already Waiting (spec.md §6.2, idempotence law §8.2).
type ErrAlreadyStopped struct{ Path string }

func (e ErrAlreadyStopped) Error() string {
	return fmt.Sprintf("control: already stopped: %s", e.Path)
}

// Server is the control surface described in spec.md §6.2/§6.3: every
// mutating method here runs its body via sup.SubmitSync so the dispatch
// goroutine remains the sole writer of class/instance state (spec.md §5,
// §9), mirroring the teacher's JobWorker wrapping a single job.Service.
type Server struct {
	sup      *dispatch.Supervisor
	registry *class.Registry

	mutex     sync.Mutex
	watchers  map[int]chan Notification
	watcherID int
}

// NewServer builds a Server bound to sup/registry. The caller must also
// register the returned Server (or a wrapper holding it) as the
// dispatch.InstanceNotifier and class.Notifier so Watch subscribers
// receive lifecycle events.
func NewServer(sup *dispatch.Supervisor, registry *class.Registry) *Server {
	return &Server{
		sup:      sup,
		registry: registry,
		watchers: make(map[int]chan Notification),
	}
}

// replyWaiter adapts a channel to event.Waiter so EmitEvent's caller can
// block on an event.Blocked edge without the dispatch goroutine ever
// touching a channel directly (spec.md §3.6, §5 re-entrancy note on Notify
// not blocking: close is non-blocking).
type replyWaiter chan struct{}

func (w replyWaiter) Notify() { close(w) }

// EmitEvent injects a named event into the store (spec.md §6.1). Env
// entries must be "KEY=VALUE"; malformed entries are rejected before ever
// reaching the dispatch goroutine. When req.Wait is true, EmitEvent blocks
// until the event reaches event.Finished.
func (s *Server) EmitEvent(ctx context.Context, req EmitEventRequest) (EmitEventResponse, error) {
	if err := event.ValidateEnv(req.Env); err != nil {
		return EmitEventResponse{}, err
	}

	var wait replyWaiter
	s.sup.SubmitSync(func() {
		e := s.sup.Store().Emit(req.Name, req.Env)
		if req.Wait {
			wait = make(replyWaiter)
			s.sup.Store().AddBlocking(e, event.NewBlocked(event.KindIPCReply, wait))
		}
	})
	if who, ok := callerOf(ctx); ok {
		logger.Infof("event emitted; caller: %s, name: %s", who, req.Name)
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return EmitEventResponse{}, ctx.Err()
		}
	}
	return EmitEventResponse{}, nil
}

// Start locates the active class named (session, name) and drives a
// synthetic start, as if its start_on condition had just fired
// (spec.md §6.2). The instance name is the class's Instance template
// expanded against req.Env; the instance is created if it does not exist.
// The reply describes the instance after the dispatch loop has settled
// following the start.
func (s *Server) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	var resp StartResponse
	var err error
	var c *class.JobClass
	var ctrl *job.Controller

	s.sup.SubmitSync(func() {
		var ok bool
		c, ok = s.registry.Get(class.Key{Session: req.Session, Name: req.Name})
		if !ok {
			err = ErrNoClass{Session: req.Session, Name: req.Name}
			return
		}
		name := expandInstanceTemplate(c.Instance, req.Env)

		if existing := s.sup.ControllerFor(c, name); existing != nil && existing.Job.Goal() == job.Start {
			err = ErrAlreadyStarted{Path: class.Path(req.Session, req.Name, name)}
			return
		}

		ctrl = s.sup.EnsureController(c, name)
		ctrl.Start(req.Env)
	})
	if err == nil {
		// The dispatch loop settles after every submitted command, so this
		// second command sees the instance as the start left it.
		s.sup.SubmitSync(func() { resp.Instance = detailOf(c, ctrl.Job) })
	}
	if who, ok := callerOf(ctx); ok {
		logger.Infof("start requested; caller: %s, name: %s", who, req.Name)
	}
	return resp, err
}

// Stop drives the named instance toward its Stop goal (spec.md §6.2).
func (s *Server) Stop(ctx context.Context, req StopRequest) (StopResponse, error) {
	var resp StopResponse
	var err error

	s.sup.SubmitSync(func() {
		c, ok := s.registry.Get(class.Key{Session: req.Session, Name: req.Name})
		if !ok {
			err = ErrNoClass{Session: req.Session, Name: req.Name}
			return
		}
		inst, ok := c.Instances[req.Instance]
		if !ok {
			err = ErrUnknownInstance{Path: class.Path(req.Session, req.Name, req.Instance)}
			return
		}
		j, ok := inst.(*job.Job)
		if !ok {
			err = fmt.Errorf("control: instance %q is not a *job.Job", req.Instance)
			return
		}
		ctrl := s.controllerFor(c, req.Instance)
		if ctrl == nil {
			err = fmt.Errorf("control: instance %q has no controller", req.Instance)
			return
		}
		if j.Goal() == job.Stop && j.State() == job.Waiting {
			err = ErrAlreadyStopped{Path: class.Path(req.Session, req.Name, req.Instance)}
			return
		}
		ctrl.Stop(nil)
		resp.Instance = detailOf(c, j)
	})
	if who, ok := callerOf(ctx); ok {
		logger.Infof("stop requested; caller: %s, name: %s, instance: %q", who, req.Name, req.Instance)
	}
	return resp, err
}

// Restart stops then starts req's instance atomically with respect to the
// dispatch loop: no other caller's Start/Stop can interleave between the
// two, because both run inside one SubmitSync closure (spec.md §6.2).
func (s *Server) Restart(ctx context.Context, req RestartRequest) (RestartResponse, error) {
	var resp RestartResponse
	var err error

	s.sup.SubmitSync(func() {
		c, ok := s.registry.Get(class.Key{Session: req.Session, Name: req.Name})
		if !ok {
			err = ErrNoClass{Session: req.Session, Name: req.Name}
			return
		}
		inst, ok := c.Instances[req.Instance]
		if !ok {
			err = ErrUnknownInstance{Path: class.Path(req.Session, req.Name, req.Instance)}
			return
		}
		j := inst.(*job.Job)
		ctrl := s.controllerFor(c, req.Instance)
		if ctrl == nil {
			err = fmt.Errorf("control: instance %q has no controller", req.Instance)
			return
		}
		if j.Goal() == job.Stop && j.State() == job.Waiting {
			err = ErrAlreadyStopped{Path: class.Path(req.Session, req.Name, req.Instance)}
			return
		}
		// Stop initiates the teardown sequence; flipping the goal to Respawn
		// immediately after (rather than leaving it at Stop) makes
		// finishStopping bring the instance back up once that sequence
		// reaches Waiting, the same path MAIN exiting abnormally takes
		// (spec.md §4.6). PreStop/Stopping/Killed/PostStop don't consult the
		// goal, so overwriting it mid-sequence is safe.
		ctrl.Stop(nil)
		j.SetGoal(job.Respawn)
		ctrl.Advance()
		resp.Instance = detailOf(c, j)
	})
	if who, ok := callerOf(ctx); ok {
		logger.Infof("restart requested; caller: %s, name: %s, instance: %q", who, req.Name, req.Instance)
	}
	return resp, err
}

// GetInstance looks an instance up by its opaque path (spec.md §6.2).
func (s *Server) GetInstance(ctx context.Context, req GetInstanceRequest) (GetInstanceResponse, error) {
	var resp GetInstanceResponse
	var err error

	s.sup.SubmitSync(func() {
		for _, c := range s.registry.All() {
			for name, inst := range c.Instances {
				j := inst.(*job.Job)
				if class.Path(c.Session, c.Name, name) != req.Path {
					continue
				}
				resp.Instance = detailOf(c, j)
				return
			}
		}
		err = ErrNotFound{Path: req.Path}
	})
	return resp, err
}

// GetInstanceByName looks an instance up by (session, class name, expanded
// instance name) rather than its opaque path (spec.md §6.2).
func (s *Server) GetInstanceByName(ctx context.Context, req GetInstanceByNameRequest) (GetInstanceResponse, error) {
	var resp GetInstanceResponse
	var err error

	s.sup.SubmitSync(func() {
		c, ok := s.registry.Get(class.Key{Session: req.Session, Name: req.Name})
		if !ok {
			err = ErrNoClass{Session: req.Session, Name: req.Name}
			return
		}
		inst, ok := c.Instances[req.Instance]
		if !ok {
			err = ErrNotFound{Path: class.Path(req.Session, req.Name, req.Instance)}
			return
		}
		resp.Instance = detailOf(c, inst.(*job.Job))
	})
	return resp, err
}

// GetAllInstances lists every instance across every active class, sorted
// by (class name, instance name) for deterministic output (spec.md §6.2,
// §9).
func (s *Server) GetAllInstances(ctx context.Context, req GetAllInstancesRequest) (GetAllInstancesResponse, error) {
	var resp GetAllInstancesResponse

	s.sup.SubmitSync(func() {
		for _, c := range s.registry.All() {
			if req.Session != "" && c.Session != req.Session {
				continue
			}
			for _, inst := range c.Instances {
				resp.Instances = append(resp.Instances, detailOf(c, inst.(*job.Job)))
			}
		}
	})
	sort.Slice(resp.Instances, func(i, j int) bool {
		if resp.Instances[i].Class != resp.Instances[j].Class {
			return resp.Instances[i].Class < resp.Instances[j].Class
		}
		return resp.Instances[i].Instance < resp.Instances[j].Instance
	})
	return resp, nil
}

// controllerFor returns the job.Controller the dispatcher holds for an
// already-looked-up instance, or nil if it holds none.
func (s *Server) controllerFor(c *class.JobClass, name string) *job.Controller {
	return s.sup.ControllerFor(c, name)
}

// Watch registers a channel receiving lifecycle Notifications until ctx is
// cancelled (spec.md §6.3). The returned channel is closed when the
// subscription ends; callers must keep draining it until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, req WatchRequest) <-chan Notification {
	ch := make(chan Notification, 32)

	s.mutex.Lock()
	s.watcherID++
	id := s.watcherID
	s.watchers[id] = ch
	s.mutex.Unlock()

	go func() {
		<-ctx.Done()
		s.mutex.Lock()
		delete(s.watchers, id)
		s.mutex.Unlock()
		close(ch)
	}()

	return ch
}

func (s *Server) publish(n Notification) {
	n.Timestamp = time.Now()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- n:
		default:
			logger.Errorf("watch channel full, dropping notification; kind: %s", n.Kind)
		}
	}
}

// JobAdded satisfies class.Notifier.
func (s *Server) JobAdded(c *class.JobClass) {
	s.publish(Notification{Kind: JobAdded, Class: c.Name, Session: c.Session})
}

// JobRemoved satisfies class.Notifier.
func (s *Server) JobRemoved(c *class.JobClass) {
	s.publish(Notification{Kind: JobRemoved, Class: c.Name, Session: c.Session})
}

// InstanceAdded satisfies dispatch.InstanceNotifier.
func (s *Server) InstanceAdded(c *class.JobClass, j *job.Job) {
	s.publish(Notification{Kind: InstanceAdded, Class: c.Name, Session: c.Session, Instance: j.Name})
}

// InstanceRemoved satisfies dispatch.InstanceNotifier.
func (s *Server) InstanceRemoved(c *class.JobClass, j *job.Job) {
	s.publish(Notification{Kind: InstanceRemoved, Class: c.Name, Session: c.Session, Instance: j.Name})
}

func detailOf(c *class.JobClass, j *job.Job) InstanceDetail {
	pids := make(map[string]int)
	for kind, pid := range j.AllPIDs() {
		pids[kind.String()] = pid
	}
	return InstanceDetail{
		Path:     class.Path(c.Session, c.Name, j.Name),
		Session:  c.Session,
		Class:    c.Name,
		Instance: j.Name,
		Goal:     j.Goal().String(),
		State:    j.State().String(),
		Failed:   j.Failed,
		ExitCode: j.ExitStatus,
		PIDs:     pids,
	}
}

func callerOf(ctx context.Context) (string, bool) {
	return userFromContext(ctx)
}
