package simulation

import (
	"bytes"
	"cmp"
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/kernel"
	"github.com/Iron-Ham/synchcore/internal/kernel/usermem"
	"github.com/Iron-Ham/synchcore/internal/logging"
	"github.com/Iron-Ham/synchcore/internal/proctable"
)

//go:embed scenarios/*.yaml
var builtinFS embed.FS

// Step operations.
const (
	OpSpawn  = "spawn"
	OpFork   = "fork"
	OpExit   = "exit"
	OpWait   = "wait"
	OpExpect = "expect"
	OpJoin   = "join"
)

// DefaultProgram is loaded by spawn steps that do not name one.
const DefaultProgram = "/bin/init"

// DefaultStepTimeout bounds how long a wait or join step may block.
const DefaultStepTimeout = 2 * time.Second

// Step is one action in a scenario. Which fields apply depends on Op:
//
//	spawn   as, program, args
//	fork    proc, as
//	exit    proc, code
//	wait    proc, target or pid, options, code, errno, background
//	expect  target, status, parent, pending
//	join    handle, code, errno
type Step struct {
	Op         string   `yaml:"op"`
	Proc       string   `yaml:"proc,omitempty"`
	As         string   `yaml:"as,omitempty"`
	Program    string   `yaml:"program,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	Target     string   `yaml:"target,omitempty"`
	PID        int      `yaml:"pid,omitempty"`
	Options    int      `yaml:"options,omitempty"`
	Code       *int     `yaml:"code,omitempty"`
	Errno      string   `yaml:"errno,omitempty"`
	Background string   `yaml:"background,omitempty"`
	Handle     string   `yaml:"handle,omitempty"`
	Status     string   `yaml:"status,omitempty"`
	Parent     string   `yaml:"parent,omitempty"`
	Pending    string   `yaml:"pending,omitempty"`
}

// Scenario is a scripted sequence of process syscalls with expectations.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// ParseScenario decodes a YAML scenario and validates it. Unknown fields
// are rejected.
func ParseScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenario reads and parses the scenario file at path.
func LoadScenario(file string) (*Scenario, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := ParseScenario(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return sc, nil
}

// BuiltinScenarios returns the names of the embedded scenarios, sorted.
func BuiltinScenarios() []string {
	entries, err := builtinFS.ReadDir("scenarios")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// BuiltinScenario returns the embedded scenario called name.
func BuiltinScenario(name string) (*Scenario, error) {
	data, err := builtinFS.ReadFile(path.Join("scenarios", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: no built-in scenario %q", errors.ErrNotFound, name)
	}
	return ParseScenario(bytes.NewReader(data))
}

var errnoNames = map[string]errors.Code{
	"OK":     errors.OK,
	"ENOMEM": errors.ENOMEM,
	"EFAULT": errors.EFAULT,
	"E2BIG":  errors.E2BIG,
	"ESRCH":  errors.ESRCH,
	"ECHILD": errors.ECHILD,
	"EINVAL": errors.EINVAL,
	"ENOENT": errors.ENOENT,
}

var statusNames = map[string]proctable.Status{
	"running": proctable.StatusRunning,
	"zombie":  proctable.StatusZombie,
	"reaped":  proctable.StatusReaped,
}

// Validate checks that every step is well formed and that aliases and
// handles are defined before they are used.
func (sc *Scenario) Validate() error {
	var errs []error
	if sc.Name == "" {
		errs = append(errs, fmt.Errorf("scenario has no name"))
	}
	if len(sc.Steps) == 0 {
		errs = append(errs, fmt.Errorf("scenario %q has no steps", sc.Name))
	}

	procs := map[string]bool{}
	handles := map[string]bool{}
	for i, st := range sc.Steps {
		bad := func(format string, args ...any) {
			errs = append(errs, fmt.Errorf("step %d (%s): %s", i+1, st.Op, fmt.Sprintf(format, args...)))
		}
		needProc := func(alias, field string) {
			if alias == "" {
				bad("%s is required", field)
			} else if !procs[alias] {
				bad("%s %q is not defined by an earlier spawn or fork", field, alias)
			}
		}
		if st.Errno != "" {
			if _, ok := errnoNames[st.Errno]; !ok {
				bad("unknown errno %q", st.Errno)
			}
		}

		switch st.Op {
		case OpSpawn:
			if st.As == "" {
				bad("as is required")
			}
			procs[st.As] = true
		case OpFork:
			needProc(st.Proc, "proc")
			if st.As == "" {
				bad("as is required")
			}
			procs[st.As] = true
		case OpExit:
			needProc(st.Proc, "proc")
		case OpWait:
			needProc(st.Proc, "proc")
			if (st.Target == "") == (st.PID == 0) {
				bad("exactly one of target and pid is required")
			} else if st.Target != "" {
				needProc(st.Target, "target")
			}
			if st.Background != "" {
				if handles[st.Background] {
					bad("handle %q reused", st.Background)
				}
				handles[st.Background] = true
			}
		case OpExpect:
			if st.Pending != "" {
				if !handles[st.Pending] {
					bad("pending handle %q is not defined", st.Pending)
				}
				continue
			}
			needProc(st.Target, "target")
			if st.Status == "" && st.Parent == "" {
				bad("one of status, parent or pending is required")
			}
			if _, ok := statusNames[st.Status]; st.Status != "" && !ok {
				bad("unknown status %q", st.Status)
			}
			if st.Parent != "" && st.Parent != "none" {
				needProc(st.Parent, "parent")
			}
		case OpJoin:
			if !handles[st.Handle] {
				bad("handle %q is not defined by a background wait", st.Handle)
			}
		default:
			bad("unknown op")
		}
	}
	return errors.Join(errs...)
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index  int      `json:"index"`
	Op     string   `json:"op"`
	Detail string   `json:"detail"`
	OK     bool     `json:"ok"`
	Error  string   `json:"error,omitempty"`
	Events []string `json:"events,omitempty"`
}

// ScenarioResult is the outcome of a scenario run.
type ScenarioResult struct {
	Name     string        `json:"name"`
	RunID    string        `json:"run_id"`
	Steps    []StepResult  `json:"steps"`
	Duration time.Duration `json:"duration"`
}

// Passed reports whether every step succeeded.
func (r *ScenarioResult) Passed() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Failures returns the failed steps.
func (r *ScenarioResult) Failures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.OK {
			out = append(out, s)
		}
	}
	return out
}

// ScenarioRunner executes scenarios against a fresh kernel per run.
type ScenarioRunner struct {
	logger      *logging.Logger
	limits      kernel.Limits
	tableOpts   []proctable.Option
	stepTimeout time.Duration
}

// RunnerOption configures a ScenarioRunner.
type RunnerOption func(*ScenarioRunner)

// WithRunnerLogger sets the logger handed to each kernel.
func WithRunnerLogger(l *logging.Logger) RunnerOption {
	return func(r *ScenarioRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithKernelLimits sets the argument limits of each kernel.
func WithKernelLimits(l kernel.Limits) RunnerOption {
	return func(r *ScenarioRunner) { r.limits = l }
}

// WithPIDRange sets the pid range of each process table.
func WithPIDRange(lo, hi int) RunnerOption {
	return func(r *ScenarioRunner) {
		r.tableOpts = append(r.tableOpts, proctable.WithPIDRange(lo, hi))
	}
}

// WithStepTimeout bounds blocking steps.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *ScenarioRunner) {
		if d > 0 {
			r.stepTimeout = d
		}
	}
}

// NewScenarioRunner creates a runner.
func NewScenarioRunner(opts ...RunnerOption) *ScenarioRunner {
	r := &ScenarioRunner{
		logger:      logging.NopLogger(),
		limits:      kernel.DefaultLimits(),
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type waitOutcome struct {
	pid, code int
	err       error
}

// scenarioRun is the mutable state of one execution.
type scenarioRun struct {
	r       *ScenarioRunner
	k       *kernel.Kernel
	procs   map[string]*kernel.Process
	pids    map[string]int
	handles map[string]chan waitOutcome
	results map[string]waitOutcome
	waiters map[int]*conc.WaitGroup // Waitpid calls by waiting pid

	mu     sync.Mutex
	events []string
}

// Run executes sc. Step failures are reported in the result; the error is
// only for a scenario that cannot be run at all or for ctx being done.
func (r *ScenarioRunner) Run(ctx context.Context, sc *Scenario) (*ScenarioResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := r.logger.WithRun(runID).With("scenario", sc.Name)

	programs := []string{DefaultProgram}
	for _, st := range sc.Steps {
		if st.Program != "" {
			programs = append(programs, st.Program)
		}
	}
	collab, _, threads := usermem.Collaborators(usermem.NewLoader(programs...))

	bus := event.NewBus()
	run := &scenarioRun{
		r:       r,
		procs:   make(map[string]*kernel.Process),
		pids:    make(map[string]int),
		handles: make(map[string]chan waitOutcome),
		results: make(map[string]waitOutcome),
		waiters: make(map[int]*conc.WaitGroup),
	}
	bus.SubscribeAll(run.recordEvent)
	run.k = kernel.New(collab,
		kernel.WithLogger(logger),
		kernel.WithEventBus(bus),
		kernel.WithLimits(r.limits),
		kernel.WithTableOptions(r.tableOpts...),
	)

	defer threads.Wait()
	defer run.release()

	res := &ScenarioResult{Name: sc.Name, RunID: runID}
	start := time.Now()
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sr := StepResult{Index: i + 1, Op: st.Op}
		detail, err := run.step(ctx, st)
		sr.Detail = detail
		sr.OK = err == nil
		if err != nil {
			sr.Error = err.Error()
			logger.Warn("scenario step failed", "step", i+1, "op", st.Op, "error", err.Error())
		}
		sr.Events = run.drainEvents()
		res.Steps = append(res.Steps, sr)
	}
	res.Duration = time.Since(start)

	logger.Info("scenario finished", "passed", res.Passed(), "steps", len(res.Steps))
	return res, nil
}

func (run *scenarioRun) recordEvent(e event.Event) {
	var s string
	switch ev := e.(type) {
	case event.ProcessRegisteredEvent:
		s = fmt.Sprintf("%s pid=%d parent=%d", ev.EventType(), ev.PID, ev.Parent)
	case event.ProcessExitedEvent:
		s = fmt.Sprintf("%s pid=%d code=%d status=%s", ev.EventType(), ev.PID, ev.ExitCode, ev.Status)
	case event.ProcessReapedEvent:
		s = fmt.Sprintf("%s pid=%d by=%s", ev.EventType(), ev.PID, ev.By)
	case event.ProcessOrphanedEvent:
		s = fmt.Sprintf("%s pid=%d former_parent=%d", ev.EventType(), ev.PID, ev.FormerParent)
	default:
		s = e.EventType()
	}
	run.mu.Lock()
	run.events = append(run.events, s)
	run.mu.Unlock()
}

func (run *scenarioRun) drainEvents() []string {
	run.mu.Lock()
	defer run.mu.Unlock()
	out := run.events
	run.events = nil
	return out
}

func (run *scenarioRun) live(alias string) (*kernel.Process, error) {
	p, ok := run.procs[alias]
	if !ok {
		return nil, fmt.Errorf("process %q has exited", alias)
	}
	return p, nil
}

func (run *scenarioRun) step(ctx context.Context, st Step) (string, error) {
	switch st.Op {
	case OpSpawn:
		prog := cmp.Or(st.Program, DefaultProgram)
		p, err := run.k.Spawn(prog, st.Args)
		if err != nil {
			return "spawn " + prog, err
		}
		run.procs[st.As] = p
		run.pids[st.As] = p.Getpid()
		return fmt.Sprintf("spawn %s as %s (pid %d)", prog, st.As, p.Getpid()), nil

	case OpFork:
		parent, err := run.live(st.Proc)
		if err != nil {
			return "fork", err
		}
		pid, err := parent.Fork()
		if err != nil {
			return fmt.Sprintf("%s forks", st.Proc), err
		}
		child, ok := run.k.Process(pid)
		if !ok {
			return "", fmt.Errorf("forked pid %d is not live", pid)
		}
		run.procs[st.As] = child
		run.pids[st.As] = pid
		return fmt.Sprintf("%s forks %s (pid %d)", st.Proc, st.As, pid), nil

	case OpExit:
		p, err := run.live(st.Proc)
		if err != nil {
			return "exit", err
		}
		code := 0
		if st.Code != nil {
			code = *st.Code
		}
		p.Exit(code)
		delete(run.procs, st.Proc)
		return fmt.Sprintf("%s exits with %d", st.Proc, code), nil

	case OpWait:
		return run.wait(ctx, st)

	case OpJoin:
		ch := run.handles[st.Handle]
		detail := "join " + st.Handle
		out, ok := run.results[st.Handle]
		if !ok {
			select {
			case out = <-ch:
				run.results[st.Handle] = out
			case <-time.After(run.r.stepTimeout):
				return detail, fmt.Errorf("background wait %q still blocked after %v", st.Handle, run.r.stepTimeout)
			case <-ctx.Done():
				return detail, ctx.Err()
			}
		}
		return detail, checkOutcome(st, out)

	case OpExpect:
		if st.Pending != "" {
			return run.expectPending(st.Pending)
		}
		return run.expectNode(st)
	}
	return "", fmt.Errorf("unknown op %q", st.Op)
}

func (run *scenarioRun) wait(ctx context.Context, st Step) (string, error) {
	p, err := run.live(st.Proc)
	if err != nil {
		return "wait", err
	}
	pid := st.PID
	name := fmt.Sprint(pid)
	if st.Target != "" {
		pid, name = run.pids[st.Target], st.Target
	}

	ch := make(chan waitOutcome, 1)
	wg := run.waiters[p.Getpid()]
	if wg == nil {
		wg = &conc.WaitGroup{}
		run.waiters[p.Getpid()] = wg
	}
	wg.Go(func() {
		got, code, err := p.Waitpid(pid, st.Options)
		ch <- waitOutcome{pid: got, code: code, err: err}
	})

	detail := fmt.Sprintf("%s waits for %s", st.Proc, name)
	if st.Background != "" {
		run.handles[st.Background] = ch
		return detail + " in the background as " + st.Background, nil
	}
	select {
	case out := <-ch:
		if out.err == nil && out.pid != pid {
			return detail, fmt.Errorf("waitpid returned pid %d, want %d", out.pid, pid)
		}
		return detail, checkOutcome(st, out)
	case <-time.After(run.r.stepTimeout):
		return detail, fmt.Errorf("waitpid still blocked after %v", run.r.stepTimeout)
	case <-ctx.Done():
		return detail, ctx.Err()
	}
}

// release exits the processes the scenario left running, children before
// parents, and returns once every Waitpid the scenario issued has returned.
// A process exits only after its own waits finish.
func (run *scenarioRun) release() {
	defer func() {
		for _, wg := range run.waiters {
			wg.Wait()
		}
	}()

	live := make(map[int]*kernel.Process, len(run.procs))
	for _, p := range run.procs {
		live[p.Getpid()] = p
	}
	clear(run.procs)

	for len(live) > 0 {
		var leaves []int
		for pid := range live {
			if !run.hasRunningChild(pid) {
				leaves = append(leaves, pid)
			}
		}
		if len(leaves) == 0 {
			// Running children outside the scenario's view; exit the rest.
			for pid := range live {
				leaves = append(leaves, pid)
			}
		}
		slices.Sort(leaves)
		for _, pid := range leaves {
			if wg := run.waiters[pid]; wg != nil && !run.hasRunningChild(pid) {
				wg.Wait()
			}
			live[pid].Exit(0)
			delete(live, pid)
		}
	}
}

func (run *scenarioRun) hasRunningChild(pid int) bool {
	for _, c := range run.k.Table().Children(pid) {
		if c.Status == proctable.StatusRunning {
			return true
		}
	}
	return false
}

func checkOutcome(st Step, out waitOutcome) error {
	want := errors.OK
	if st.Errno != "" {
		want = errnoNames[st.Errno]
	}
	if got := errors.Errno(out.err); got != want {
		if out.err != nil {
			return fmt.Errorf("got %s (%v), want %s", got, out.err, want)
		}
		return fmt.Errorf("got %s, want %s", got, want)
	}
	if st.Code != nil && out.err == nil && out.code != *st.Code {
		return fmt.Errorf("exit code %d, want %d", out.code, *st.Code)
	}
	return nil
}

// pendingGrace is how long a handle must stay blocked to count as pending.
const pendingGrace = 20 * time.Millisecond

func (run *scenarioRun) expectPending(handle string) (string, error) {
	detail := "expect " + handle + " pending"
	if _, done := run.results[handle]; done {
		return detail, fmt.Errorf("background wait %q already completed", handle)
	}
	select {
	case out := <-run.handles[handle]:
		run.results[handle] = out
		return detail, fmt.Errorf("background wait %q completed (code %d, err %v)", handle, out.code, out.err)
	case <-time.After(pendingGrace):
		return detail, nil
	}
}

func (run *scenarioRun) expectNode(st Step) (string, error) {
	pid := run.pids[st.Target]
	detail := fmt.Sprintf("expect %s (pid %d)", st.Target, pid)
	n, ok := run.k.Table().Lookup(pid)
	if !ok {
		return detail, fmt.Errorf("pid %d is not in the process table", pid)
	}
	if st.Status != "" {
		if want := statusNames[st.Status]; n.Status != want {
			return detail, fmt.Errorf("status %s, want %s", n.Status, want)
		}
	}
	if st.Code != nil && n.Status != proctable.StatusRunning && n.ExitCode != *st.Code {
		return detail, fmt.Errorf("exit code %d, want %d", n.ExitCode, *st.Code)
	}
	switch st.Parent {
	case "":
	case "none":
		if n.Parent != proctable.NoParent {
			return detail, fmt.Errorf("parent %d, want none", n.Parent)
		}
	default:
		if want := run.pids[st.Parent]; n.Parent != want {
			return detail, fmt.Errorf("parent %d, want %s (pid %d)", n.Parent, st.Parent, want)
		}
	}
	return detail, nil
}
