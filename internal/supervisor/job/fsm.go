package job

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tjper/initd/internal/supervisor/class"
	"github.com/tjper/initd/internal/supervisor/event"
	"github.com/tjper/initd/internal/supervisor/process"

	"github.com/pkg/errors"
)

// Spawner is the process-spawning surface the FSM depends on; satisfied by
// process.Spawn, and substitutable in tests.
type Spawner func(ctx context.Context, req process.Request) (*process.Handle, error)

// Environment bundles the dispatcher-owned collaborators a Controller needs
// to drive a Job's process-slot FSM (spec.md §4.6, §5): the shared event
// store, the process spawner, where log output lives, and the pid index the
// dispatcher maintains for routing reaped exits back to their owning job.
type Environment struct {
	Store         *event.Store
	Spawn         Spawner
	OutputDir     string
	RegisterPID   func(pid int, j *Job, kind class.ProcessKind)
	UnregisterPID func(pid int)
	Now           func() time.Time
}

func (e Environment) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Controller drives a single Job's state machine. It is not safe for
// concurrent use from more than one goroutine; the dispatcher's single loop
// is the only caller (spec.md §5, §9).
type Controller struct {
	Job *Job
	env Environment
}

// NewController wraps j with the collaborators needed to advance its FSM.
func NewController(j *Job, env Environment) *Controller {
	c := &Controller{Job: j, env: env}
	j.OnNotify(func() { c.goalChanged() })
	return c
}

// goalChanged re-enters the FSM when something j was blocked on (its
// Blocker event reaching Finished) completes.
func (c *Controller) goalChanged() {
	c.Job.Blocker = nil
	c.Advance()
}

// emit submits a built-in lifecycle event on this instance's behalf,
// stamping the JOB/INSTANCE keys every such event carries (spec.md §6.4).
// Returns nil when no Store is wired, which is the case for FSM-only unit
// tests that don't exercise the event side effects.
func (c *Controller) emit(name string, extra ...string) *event.Event {
	if c.env.Store == nil {
		return nil
	}
	j := c.Job
	env := append([]string{"JOB=" + j.Class.Name, "INSTANCE=" + j.Name}, extra...)
	return c.env.Store.Emit(name, env)
}

// blockOn makes j wait on e: e carries a Blocked(JOB, self) entry, and
// j.Blocker halts step() until e finishes and its Notify (routed through
// goalChanged) re-enters Advance (spec.md §4.6 STARTING/STOPPING side
// effects).
func (c *Controller) blockOn(e *event.Event) {
	if e == nil {
		return
	}
	c.env.Store.AddBlocking(e, event.NewBlocked(event.KindJob, c.Job))
	c.Job.Blocker = e
}

// resultEnv reports the RESULT/PROCESS/EXIT_STATUS trio the stopping and
// stopped events carry (spec.md §6.4, scenario S4).
func (c *Controller) resultEnv() []string {
	j := c.Job
	if !j.Failed {
		return []string{"RESULT=ok"}
	}
	return []string{"RESULT=failed", "PROCESS=" + j.FailedProcess.String(), fmt.Sprintf("EXIT_STATUS=%d", j.ExitStatus)}
}

// enterStopping is the single entry point into the Stopping state: every
// path there emits the required "stopping" event and blocks on it before
// signalling MAIN (spec.md §4.6 STOPPING side effect).
func (c *Controller) enterStopping() {
	j := c.Job
	j.setState(Stopping)
	c.blockOn(c.emit("stopping", c.resultEnv()...))
}

// enterRunning is the single entry point into the Running state: it emits
// "started" and drains anything waiting on the instance stabilising
// (absorbed start_on events via job.Blocking, pending control-surface
// replies). The respawn budget is left untouched here — a respawn cycle
// passes through Running on its way back up, and resetting it on every such
// pass would defeat the storm limit (spec.md §4.6 RUNNING side effect,
// §4.4 step 4, §8.3).
func (c *Controller) enterRunning() {
	j := c.Job
	j.setState(Running)
	c.emit("started")
	j.DrainBlocking()
}

// Start requests the job be brought up: it records startEnv as StartEnv,
// which is committed into Env on the next Starting entry, and sets the goal
// to Start (spec.md §4.4).
func (c *Controller) Start(startEnv []string) {
	c.Job.StartEnv = startEnv
	c.Job.SetGoal(Start)
	c.Advance()
}

// Stop requests the job be brought down, staging stopEnv as the
// environment stop_on absorbed (spec.md §4.5).
func (c *Controller) Stop(stopEnv []string) {
	c.Job.StopEnv = stopEnv
	c.Job.SetGoal(Stop)
	c.Advance()
}

// Advance runs the state machine forward as far as it can go without
// external input (a process exit, a blocker event finishing, a timer
// firing). It is idempotent: calling it when nothing can progress is a
// no-op (spec.md §4.6).
func (c *Controller) Advance() {
	for c.step() {
	}
}

// step attempts one state transition and reports whether it made progress.
func (c *Controller) step() bool {
	j := c.Job
	goal := j.Goal()
	state := j.State()

	if j.Blocker != nil {
		return false
	}

	switch state {
	case Waiting:
		if goal == Start || goal == Respawn {
			j.Env = mergeEnv(j.Class.Env, j.StartEnv)
			j.Failed = false
			j.setState(Starting)
			c.blockOn(c.emit("starting"))
			return true
		}
		if goal == Stop && j.Destroyable() {
			j.DrainBlocking()
			j.MarkDestroyed()
		}
		return false

	case Starting:
		if goal != Start && goal != Respawn {
			c.enterStopping()
			return true
		}
		return c.runPhase(PreStart, func() { j.setState(Spawned) })

	case Spawned:
		if goal == Stop {
			c.enterStopping()
			return true
		}
		return c.spawnMain()

	case PostStart:
		return c.runPhase(PostStart, func() {
			if j.mainExitedDuringPostStart {
				j.mainExitedDuringPostStart = false
				j.setState(PreStop)
				return
			}
			c.enterRunning()
		})

	case Running:
		if goal == Stop {
			j.setState(PreStop)
			return true
		}
		return false

	case PreStop:
		return c.runPhase(PreStop, func() { c.enterStopping() })

	case Stopping:
		return c.beginStopping()

	case Killed:
		j.setState(PostStop)
		return true

	case PostStop:
		return c.runPhase(PostStop, func() { c.finishStopping() })
	}
	return false
}

// spawnMain launches the MAIN process for a job entering Spawned. Unlike
// the short-lived setup/teardown phases, reaching PostStart does not wait
// for MAIN's exit — only for Expect to be satisfied (spec.md §3.4, §4.6).
func (c *Controller) spawnMain() bool {
	j := c.Job
	def := j.Class.Processes[class.Main]

	if !def.Defined {
		j.setState(PostStart)
		return true
	}
	if j.PID(class.Main) != 0 {
		return false
	}

	handle, err := c.spawn(class.Main, def)
	if err != nil {
		c.fail(class.Main, err)
		return true
	}

	j.SetPID(class.Main, handle.PID)
	if c.env.RegisterPID != nil {
		c.env.RegisterPID(handle.PID, j, class.Main)
	}

	if j.Class.Expect == class.ExpectNone {
		j.setState(PostStart)
		return true
	}
	// Otherwise the instance stays in Spawned until a satisfied
	// Controller.ProcessTraceEvent call. Neither the dispatcher nor
	// process.Spawn attaches ptrace or calls ProcessTraceEvent, so such an
	// instance does not leave Spawned on its own.
	return false
}

// runPhase spawns the short-lived process for kind, if the class defines
// one, and arranges for onDone to run once it exits normally — either
// immediately (undefined) or from ProcessExited (defined). It reports
// whether the caller should keep stepping.
func (c *Controller) runPhase(kind class.ProcessKind, onDone func()) bool {
	j := c.Job
	def := j.Class.Processes[kind]

	if !def.Defined {
		onDone()
		return true
	}
	if j.PID(kind) != 0 {
		return false // already spawned, awaiting exit
	}

	handle, err := c.spawn(kind, def)
	if err != nil {
		c.fail(kind, err)
		return true
	}

	j.SetPID(kind, handle.PID)
	j.phaseDone[kind] = onDone
	if c.env.RegisterPID != nil {
		c.env.RegisterPID(handle.PID, j, kind)
	}
	return false
}

func (c *Controller) spawn(kind class.ProcessKind, def class.ProcessDef) (*process.Handle, error) {
	j := c.Job
	req := process.Request{
		ID:       j.ID,
		Argv:     append([]string{def.Command}, def.Args...),
		IsScript: def.IsScript,
		Script:   def.Script,
		Env:      j.Env,
		Dir:      j.Class.Limits.Dir,
		Console:  consoleOf(j.Class.Console),
		LogPath:  filepath.Join(c.outputDir(), j.ID.String()+".log"),
		Umask:    j.Class.Limits.Umask,
		Nice:     j.Class.Limits.Nice,
		OOMAdj:   j.Class.Limits.OOMAdj,
		Chroot:   j.Class.Limits.Chroot,
		UID:      j.Class.Limits.UID,
		GID:      j.Class.Limits.GID,
		Rlimits:  wireRlimits(j.Class.Limits.Rlimits),
	}

	spawn := c.env.Spawn
	if spawn == nil {
		spawn = process.Spawn
	}
	return spawn(context.Background(), req)
}

func (c *Controller) outputDir() string {
	if c.env.OutputDir != "" {
		return c.env.OutputDir
	}
	return "/var/log/initd"
}

func consoleOf(cc class.Console) process.Console {
	switch cc {
	case class.ConsoleLog:
		return process.ConsoleLog
	case class.ConsoleOutput:
		return process.ConsoleOutput
	case class.ConsoleOwner:
		return process.ConsoleOwner
	default:
		return process.ConsoleNone
	}
}

func wireRlimits(in map[int]syscall.Rlimit) map[int]process.Rlimit {
	if len(in) == 0 {
		return nil
	}
	out := make(map[int]process.Rlimit, len(in))
	for k, v := range in {
		out[k] = process.Rlimit{Cur: v.Cur, Max: v.Max}
	}
	return out
}

// ProcessTraceEvent takes the outcome of a ptrace trace-stop for this job's
// MAIN slot (spec.md §4.8); the dispatcher does not call it. satisfied
// means Expect has now been met and Spawned may advance to PostStart.
func (c *Controller) ProcessTraceEvent(satisfied bool) {
	if !satisfied {
		return
	}
	j := c.Job
	if j.State() == Spawned {
		j.setState(PostStart)
		c.Advance()
	}
}

// ProcessExited is called by the dispatcher when a pid registered to this
// job's process table has been reaped (spec.md §4.6, §4.9).
func (c *Controller) ProcessExited(kind class.ProcessKind, exit process.Exit) {
	j := c.Job
	pid := j.PID(kind)
	j.ClearPID(kind)
	if c.env.UnregisterPID != nil {
		c.env.UnregisterPID(pid)
	}

	normal := exit.Classification == process.Exited && normalExit(j.Class, exit.Code)

	switch kind {
	case class.Main:
		c.mainExited(exit, normal)
	default:
		if !normal {
			c.fail(kind, errors.Errorf("process exited abnormally: %+v", exit))
		} else if fn := j.phaseDone[kind]; fn != nil {
			j.phaseDone[kind] = nil
			fn()
		}
	}

	c.Advance()
}

// mainExited reacts to MAIN's reaped exit. While POST_START is still
// running, the decision (respawn/stop, Failed) is made immediately but the
// state transition itself is deferred to POST_START's own completion
// (spec.md Open Question 2), via j.mainExitedDuringPostStart.
func (c *Controller) mainExited(exit process.Exit, normal bool) {
	j := c.Job
	j.ExitStatus = exit.Code

	if j.State() == Running || j.State() == PostStart || j.State() == Spawned {
		if !normal {
			j.Failed = true
			j.FailedProcess = class.Main
		}

		switch {
		case j.Goal() == Stop:
			// keep goal as-is
		case normal:
			// a clean exit never respawns, matching upstart's normal-exit
			// stanza semantics (spec.md §3.3 NormalExit).
			j.SetGoal(Stop)
		case !j.Class.Respawn.Enabled:
			j.SetGoal(Stop)
		case !j.respawn.allow(j.Class.Respawn.Limit, j.Class.Respawn.Interval, c.env.now()):
			j.Failed = true
			j.FailedProcess = class.Main
			j.SetGoal(Stop)
			logger.Errorf("respawning too fast; job: %s, count: %d, limit: %d, interval: %s", j.Name, j.respawn.count(), j.Class.Respawn.Limit, j.Class.Respawn.Interval)
		default:
			j.SetGoal(Respawn)
		}

		if j.State() == PostStart {
			j.mainExitedDuringPostStart = true
		} else {
			j.setState(PreStop)
		}
		return
	}

	if j.State() == Stopping {
		j.DisarmKillTimer()
		j.setState(Killed)
	}
}

// beginStopping signals MAIN (if still alive) with the class's kill signal
// and arms the kill_timeout escalation to SIGKILL (spec.md §4.6 Stopping).
func (c *Controller) beginStopping() bool {
	j := c.Job
	if j.PID(class.Main) == 0 {
		j.setState(Killed)
		return true
	}
	if j.KillTimerArmed() {
		return false
	}

	sig := j.Class.KillSignal
	if sig == 0 {
		sig = 15 // SIGTERM
	}
	if err := j.Signal(class.Main, sig); err != nil {
		logger.Errorf("signal main process; job: %s, error: %s", j.Name, err)
	}

	timeout := j.Class.KillTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	j.ArmKillTimer(timeout, class.Main, func() { c.killTimerExpired() })
	return false
}

func (c *Controller) killTimerExpired() {
	j := c.Job
	if j.PID(class.Main) == 0 {
		return
	}
	if err := j.Signal(class.Main, 9); err != nil {
		logger.Errorf("force-kill main process; job: %s, error: %s", j.Name, err)
	}
}

// finishStopping is the single entry point into the Waiting state: it emits
// the required "stopped" event and drains everything waiting on the
// instance stabilising — absorbed stop_on events, pending control-surface
// replies — before the destroy precondition (goal Stop, empty Blocking) is
// ever checked (spec.md §4.6 WAITING side effect, §4.4 step 4). A goal still
// at Stop here means the instance is genuinely coming to rest rather than
// looping through Waiting on its way back up from a respawn, so the respawn
// budget resets for whatever the next deliberate Start brings (spec.md
// §8.3).
func (c *Controller) finishStopping() bool {
	j := c.Job
	goal := j.Goal()
	j.setState(Waiting)
	c.emit("stopped", c.resultEnv()...)
	j.DrainBlocking()
	if goal == Respawn {
		j.SetGoal(Start)
	} else {
		j.respawn.reset()
	}
	return true
}

// fail marks the job Failed and drives it toward Stopping: through PreStop
// if MAIN may still be alive, directly to Stopping otherwise (spec.md
// §4.6).
func (c *Controller) fail(kind class.ProcessKind, err error) {
	j := c.Job
	j.Failed = true
	j.FailedProcess = kind
	j.phaseDone[kind] = nil
	logger.Errorf("job process failed; job: %s, process: %s, error: %s", j.Name, kind, err)
	j.SetGoal(Stop)
	switch j.State() {
	case Starting, Spawned, PostStop:
		c.enterStopping()
	default:
		j.setState(PreStop)
	}
}

// normalExit reports whether code counts as a normal exit: zero always
// does, and any other code does only if it is in the class's NormalExit set
// (spec.md §3.3 NormalExit, §4.6).
func normalExit(c *class.JobClass, code int) bool {
	if code == 0 {
		return true
	}
	_, ok := c.NormalExit[code]
	return ok
}
