package control

import (
	"context"
	"testing"
	"time"

	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/dispatch"
	"github.com/tjper/initd/internal/supervisor/event"
	"github.com/tjper/initd/internal/supervisor/process"
)

// notifierRef fans a class.Notifier callback out to both the dispatcher
// (which must create/stop instances) and the control Server (which reports
// them on Watch streams), the same split cli.serve's classNotifier makes in
// production; the dispatcher field is backfilled once constructed.
type notifierRef struct {
	sup *dispatch.Supervisor
	srv *Server
}

func (n *notifierRef) JobAdded(c *class.JobClass) {
	n.sup.JobAdded(c)
	n.srv.JobAdded(c)
}

func (n *notifierRef) JobRemoved(c *class.JobClass) {
	n.sup.JobRemoved(c)
	n.srv.JobRemoved(c)
}

func newTestServer(t *testing.T) (*Server, *class.Registry) {
	t.Helper()
	pid := 3000
	store := event.NewStore()
	ref := &notifierRef{}
	registry := class.NewRegistry(ref)

	reaper := process.NewReaper()
	t.Cleanup(reaper.Stop)

	spawn := func(ctx context.Context, req process.Request) (*process.Handle, error) {
		pid++
		return &process.Handle{PID: pid}, nil
	}

	sup := dispatch.New(dispatch.Config{Store: store, Registry: registry, Reaper: reaper, Spawn: spawn})
	ref.sup = sup

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sup.Run(ctx)

	srv := NewServer(sup, registry)
	ref.srv = srv
	return srv, registry
}

func TestServerStartCreatesAndStartsInstance(t *testing.T) {
	srv, registry := newTestServer(t)

	c := &class.JobClass{
		Name:    "web",
		Session: "s",
		StartOn: event.NewMatch(event.Pattern{Name: "net-device-up"}),
	}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	srv.sup.SubmitSync(func() { registry.Propose(c) })

	resp, err := srv.Start(context.Background(), StartRequest{Session: "s", Name: "web"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if resp.Instance.State != "running" {
		t.Fatalf("Instance.State = %q, want %q", resp.Instance.State, "running")
	}
}

func TestServerStartUnknownClass(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.Start(context.Background(), StartRequest{Session: "s", Name: "missing"})
	if _, ok := err.(ErrNoClass); !ok {
		t.Fatalf("Start() error = %v, want ErrNoClass", err)
	}
}

func TestServerStopDrivesGoalToStop(t *testing.T) {
	srv, registry := newTestServer(t)

	c := &class.JobClass{Name: "web", Session: "s"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	srv.sup.SubmitSync(func() { registry.Propose(c) })

	resp, err := srv.Stop(context.Background(), StopRequest{Session: "s", Name: "web"})
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if resp.Instance.Goal != "stop" {
		t.Fatalf("Instance.Goal = %q, want %q", resp.Instance.Goal, "stop")
	}
}

func TestServerStopUnknownInstance(t *testing.T) {
	srv, registry := newTestServer(t)

	c := &class.JobClass{Name: "web", Session: "s"}
	srv.sup.SubmitSync(func() { registry.Propose(c) })

	_, err := srv.Stop(context.Background(), StopRequest{Session: "s", Name: "web", Instance: "missing"})
	if _, ok := err.(ErrUnknownInstance); !ok {
		t.Fatalf("Stop() error = %v, want ErrUnknownInstance", err)
	}
}

func TestServerStartAlreadyStarted(t *testing.T) {
	srv, registry := newTestServer(t)

	c := &class.JobClass{
		Name:    "web",
		Session: "s",
		StartOn: event.NewMatch(event.Pattern{Name: "net-device-up"}),
	}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	srv.sup.SubmitSync(func() { registry.Propose(c) })

	if _, err := srv.Start(context.Background(), StartRequest{Session: "s", Name: "web"}); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	_, err := srv.Start(context.Background(), StartRequest{Session: "s", Name: "web"})
	if _, ok := err.(ErrAlreadyStarted); !ok {
		t.Fatalf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestServerStopAlreadyStopped(t *testing.T) {
	srv, registry := newTestServer(t)

	c := &class.JobClass{
		Name:    "web",
		Session: "s",
		StartOn: event.NewMatch(event.Pattern{Name: "net-device-up"}),
	}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	srv.sup.SubmitSync(func() { registry.Propose(c) })

	if _, err := srv.Start(context.Background(), StartRequest{Session: "s", Name: "web"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := srv.Stop(context.Background(), StopRequest{Session: "s", Name: "web"}); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}

	_, err := srv.Stop(context.Background(), StopRequest{Session: "s", Name: "web"})
	if _, ok := err.(ErrAlreadyStopped); !ok {
		t.Fatalf("second Stop() error = %v, want ErrAlreadyStopped", err)
	}
}

func TestServerGetInstanceByPath(t *testing.T) {
	srv, registry := newTestServer(t)

	c := &class.JobClass{Name: "web", Session: "s"}
	srv.sup.SubmitSync(func() { registry.Propose(c) })

	path := class.Path("s", "web", "")
	resp, err := srv.GetInstance(context.Background(), GetInstanceRequest{Path: path})
	if err != nil {
		t.Fatalf("GetInstance() error = %v", err)
	}
	if resp.Instance.Path != path {
		t.Fatalf("Instance.Path = %q, want %q", resp.Instance.Path, path)
	}
}

func TestServerGetAllInstancesSortedAndFiltered(t *testing.T) {
	srv, registry := newTestServer(t)

	srv.sup.SubmitSync(func() {
		registry.Propose(&class.JobClass{Name: "web", Session: "a"})
		registry.Propose(&class.JobClass{Name: "api", Session: "a"})
		registry.Propose(&class.JobClass{Name: "db", Session: "b"})
	})

	resp, err := srv.GetAllInstances(context.Background(), GetAllInstancesRequest{Session: "a"})
	if err != nil {
		t.Fatalf("GetAllInstances() error = %v", err)
	}
	if len(resp.Instances) != 2 {
		t.Fatalf("len(Instances) = %d, want 2", len(resp.Instances))
	}
	if resp.Instances[0].Class != "api" || resp.Instances[1].Class != "web" {
		t.Fatalf("Instances not sorted by class: %v", resp.Instances)
	}
}

func TestServerWatchDeliversLifecycleNotifications(t *testing.T) {
	srv, registry := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := srv.Watch(ctx, WatchRequest{})

	srv.sup.SubmitSync(func() { registry.Propose(&class.JobClass{Name: "web", Session: "s"}) })

	select {
	case n := <-ch:
		if n.Kind != JobAdded || n.Class != "web" {
			t.Fatalf("notification = %+v, want JobAdded for web", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}

func TestServerEmitEventWaitsForFinish(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := srv.EmitEvent(ctx, EmitEventRequest{Name: "custom", Env: []string{"KEY=value"}, Wait: true})
	if err != nil {
		t.Fatalf("EmitEvent() error = %v", err)
	}
}

func TestServerEmitEventRejectsMalformedEnv(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.EmitEvent(context.Background(), EmitEventRequest{Name: "custom", Env: []string{"NOEQUALS"}})
	if err == nil {
		t.Fatalf("expected error for malformed env entry")
	}
}
