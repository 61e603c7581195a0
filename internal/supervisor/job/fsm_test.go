package job

import (
	"context"
	"testing"
	"time"

	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/event"
	"github.com/tjper/initd/internal/supervisor/process"
)

func fakeSpawner(pid *int) Spawner {
	return func(ctx context.Context, req process.Request) (*process.Handle, error) {
		*pid++
		return &process.Handle{PID: *pid}, nil
	}
}

func newTestController(c *class.JobClass, env Environment) (*Controller, *Job) {
	j := New(c, "")
	return NewController(j, env), j
}

func TestFSMStartsWithoutOptionalProcesses(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})

	ctrl.Start(nil)

	if got := j.State(); got != Running {
		t.Fatalf("state = %s, want %s", got, Running)
	}
	if got := j.PID(class.Main); got == 0 {
		t.Fatalf("expected MAIN pid to be recorded")
	}
}

func TestFSMWaitsForPreStartExit(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.PreStart] = class.ProcessDef{Defined: true, Command: "migrate"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})

	ctrl.Start(nil)
	if got := j.State(); got != Starting {
		t.Fatalf("state before pre-start exits = %s, want %s", got, Starting)
	}
	if got := j.PID(class.PreStart); got == 0 {
		t.Fatalf("expected pre-start pid recorded")
	}

	ctrl.ProcessExited(class.PreStart, process.Exit{Classification: process.Exited, Code: 0})

	if got := j.State(); got != Running {
		t.Fatalf("state after pre-start exits normally = %s, want %s", got, Running)
	}
}

func TestFSMAbnormalPreStartExitFails(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.PreStart] = class.ProcessDef{Defined: true, Command: "migrate"}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})

	ctrl.Start(nil)
	ctrl.ProcessExited(class.PreStart, process.Exit{Classification: process.Exited, Code: 1})

	if !j.Failed {
		t.Fatalf("expected job to be marked Failed")
	}
	if j.FailedProcess != class.PreStart {
		t.Fatalf("FailedProcess = %s, want %s", j.FailedProcess, class.PreStart)
	}
	if j.Goal() != Stop {
		t.Fatalf("goal after failure = %s, want %s", j.Goal(), Stop)
	}
}

func TestFSMStopDrivesThroughPreStopAndKilled(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})
	ctrl.Start(nil)
	if got := j.State(); got != Running {
		t.Fatalf("precondition: state = %s, want %s", got, Running)
	}

	ctrl.Stop(nil)
	if got := j.State(); got != Stopping {
		t.Fatalf("state after Stop = %s, want %s", got, Stopping)
	}
	if !j.KillTimerArmed() {
		t.Fatalf("expected kill timer to be armed while waiting for MAIN to exit")
	}
	j.DisarmKillTimer()

	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Killed, Code: 15})

	if got := j.State(); got != Waiting {
		t.Fatalf("state after MAIN exit = %s, want %s", got, Waiting)
	}
}

func TestFSMRespawnsOnAbnormalMainExit(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	c.Respawn = class.Respawn{Enabled: true, Limit: 5, Interval: 0}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})
	ctrl.Start(nil)

	firstPID := j.PID(class.Main)
	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Killed, Code: 11})

	if got := j.State(); got != Running {
		t.Fatalf("state after respawn = %s, want %s", got, Running)
	}
	if got := j.Goal(); got != Start {
		t.Fatalf("goal after respawn settles = %s, want %s", got, Start)
	}
	if secondPID := j.PID(class.Main); secondPID == firstPID {
		t.Fatalf("expected a new MAIN pid after respawn, got same pid %d", secondPID)
	}
}

func TestFSMRespawnDisabledStopsOnAbnormalExit(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})
	ctrl.Start(nil)

	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Killed, Code: 11})

	if got := j.State(); got != Waiting {
		t.Fatalf("state = %s, want %s", got, Waiting)
	}
	if got := j.Goal(); got != Stop {
		t.Fatalf("goal = %s, want %s", got, Stop)
	}
	if !j.Failed {
		t.Fatalf("expected job to be marked Failed when respawn is disabled")
	}
}

func TestFSMCleanExitNeverRespawns(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	c.Respawn = class.Respawn{Enabled: true, Limit: 5, Interval: 0}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})
	ctrl.Start(nil)

	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Exited, Code: 0})

	if got := j.State(); got != Waiting {
		t.Fatalf("state = %s, want %s", got, Waiting)
	}
	if j.Failed {
		t.Fatalf("expected a clean exit to not be marked Failed")
	}
}

func TestFSMMainExitDuringPostStartDeferred(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	c.Processes[class.PostStart] = class.ProcessDef{Defined: true, Command: "warm-up"}
	c.Processes[class.PreStop] = class.ProcessDef{Defined: true, Command: "drain"}

	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid)})
	ctrl.Start(nil)

	if got := j.State(); got != PostStart {
		t.Fatalf("state = %s, want %s", got, PostStart)
	}

	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Exited, Code: 0})
	if got := j.State(); got != PostStart {
		t.Fatalf("state immediately after MAIN exit during post-start = %s, want still %s", got, PostStart)
	}

	ctrl.ProcessExited(class.PostStart, process.Exit{Classification: process.Exited, Code: 0})
	if got := j.State(); got != PreStop {
		t.Fatalf("state after post-start completes = %s, want %s", got, PreStop)
	}
}

// drainStore pumps store.Pass until it reports no further progress, the
// same fixed-point loop dispatch.Supervisor.settle runs in production.
func drainStore(store *event.Store) {
	for store.Pass(func(*event.Event) {}) {
	}
}

func TestFSMEmitsLifecycleEvents(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}

	store := event.NewStore()
	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid), Store: store})
	j.Name = "one"

	ctrl.Start(nil)
	if got := j.State(); got != Starting {
		t.Fatalf("state right after Start() = %s, want %s (blocked on \"starting\")", got, Starting)
	}
	if j.Blocker == nil {
		t.Fatalf("expected Blocker to be set while \"starting\" is pending")
	}

	drainStore(store)

	if got := j.State(); got != Running {
		t.Fatalf("state after \"starting\" finishes = %s, want %s", got, Running)
	}
	if j.Blocker != nil {
		t.Fatalf("expected Blocker to be cleared once \"starting\" finished")
	}

	ctrl.Stop(nil)
	if got := j.State(); got != Stopping {
		t.Fatalf("state right after Stop() = %s, want %s (blocked on \"stopping\")", got, Stopping)
	}
	if j.Blocker == nil {
		t.Fatalf("expected Blocker to be set while \"stopping\" is pending")
	}

	drainStore(store)
	if !j.KillTimerArmed() {
		t.Fatalf("expected kill timer to be armed once \"stopping\" finished and beginStopping ran")
	}
	j.DisarmKillTimer()
	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Killed, Code: 15})

	drainStore(store)

	if got := j.State(); got != Waiting {
		t.Fatalf("state after teardown = %s, want %s", got, Waiting)
	}
}

func TestFSMStoppingEventCarriesFailureResult(t *testing.T) {
	pid := 1000
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}

	store := event.NewStore()
	ctrl, j := newTestController(c, Environment{Spawn: fakeSpawner(&pid), Store: store})
	j.Name = "srv"

	ctrl.Start(nil)
	drainStore(store)
	if got := j.State(); got != Running {
		t.Fatalf("precondition: state = %s, want %s", got, Running)
	}

	var stopping *event.Event
	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Exited, Code: 99})
	for _, e := range store.Pending() {
		if e.Name == "stopping" {
			stopping = e
		}
	}
	if stopping == nil {
		t.Fatalf("expected a pending \"stopping\" event carrying the failure result")
	}

	want := map[string]string{
		"JOB":         "web",
		"INSTANCE":    "srv",
		"RESULT":      "failed",
		"PROCESS":     "main",
		"EXIT_STATUS": "99",
	}
	for k, v := range want {
		if !containsEnv(stopping.Env, k+"="+v) {
			t.Fatalf("stopping event env = %v, missing %s=%s", stopping.Env, k, v)
		}
	}
}

func containsEnv(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}
	return false
}

func TestFSMRespawnStormLogsAndStops(t *testing.T) {
	pid := 1000
	now := time.Unix(0, 0)
	c := &class.JobClass{Name: "web"}
	c.Processes[class.Main] = class.ProcessDef{Defined: true, Command: "serve"}
	c.Respawn = class.Respawn{Enabled: true, Limit: 1, Interval: time.Minute}

	store := event.NewStore()
	ctrl, j := newTestController(c, Environment{
		Spawn: fakeSpawner(&pid),
		Store: store,
		Now:   func() time.Time { return now },
	})

	ctrl.Start(nil)
	drainStore(store)
	if got := j.State(); got != Running {
		t.Fatalf("precondition: state = %s, want %s", got, Running)
	}

	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Killed, Code: 11})
	drainStore(store)
	if got := j.State(); got != Running {
		t.Fatalf("state after first respawn = %s, want %s", got, Running)
	}

	ctrl.ProcessExited(class.Main, process.Exit{Classification: process.Killed, Code: 11})
	drainStore(store)

	if got := j.State(); got != Waiting {
		t.Fatalf("state after respawn storm settles = %s, want %s", got, Waiting)
	}
	if got := j.Goal(); got != Stop {
		t.Fatalf("goal after respawn storm = %s, want %s", got, Stop)
	}
	if !j.Failed {
		t.Fatalf("expected job to be marked Failed after respawning too fast")
	}
}

func TestEnvMergeClassOverridesEvent(t *testing.T) {
	got := mergeEnv([]string{"FOO=class"}, []string{"FOO=event", "BAR=event"})

	want := map[string]string{"FOO": "class", "BAR": "event"}
	if len(got) != len(want) {
		t.Fatalf("mergeEnv() = %v, want entries for %v", got, want)
	}
	for _, kv := range got {
		k, v, _ := splitKV(kv)
		if want[k] != v {
			t.Fatalf("mergeEnv()[%q] = %q, want %q", k, v, want[k])
		}
	}
}

func splitKV(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}
