package proctable

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/logging"
)

// Default pid range, matching the teaching kernel's PID_MIN and PID_MAX.
const (
	DefaultPIDMin = 2
	DefaultPIDMax = 32767
)

// NoParent is the parent pid of a process nobody will wait for.
const NoParent = 0

// Status is the lifecycle state of a process node.
type Status int

const (
	StatusRunning Status = iota
	StatusZombie
	StatusReaped
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusZombie:
		return "zombie"
	case StatusReaped:
		return "reaped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Node is a copy of a process table entry. ExitCode is meaningful once the
// status is no longer running.
type Node struct {
	PID      int    `json:"pid" yaml:"pid"`
	Parent   int    `json:"parent" yaml:"parent"`
	Status   Status `json:"status" yaml:"status"`
	ExitCode int    `json:"exit_code" yaml:"exit_code"`
}

// Stats summarizes the table.
type Stats struct {
	Running int `json:"running"`
	Zombie  int `json:"zombie"`
	Reaped  int `json:"reaped"`
	Pooled  int `json:"pooled"`
	Issued  int `json:"issued"`
}

// Table is the process table.
type Table struct {
	mu    sync.Mutex
	cond  *sync.Cond
	nodes map[int]*Node
	pids  pidPool

	logger *logging.Logger
	bus    *event.Bus
}

// Option configures a Table.
type Option func(*tableOptions)

type tableOptions struct {
	pidMin, pidMax int
	logger         *logging.Logger
	bus            *event.Bus
}

// WithPIDRange sets the inclusive range of identifiers the table hands
// out. Ranges that include 0 or are empty are ignored.
func WithPIDRange(lo, hi int) Option {
	return func(o *tableOptions) {
		if lo >= 1 && hi >= lo {
			o.pidMin, o.pidMax = lo, hi
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *tableOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventBus publishes lifecycle transitions to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(o *tableOptions) {
		o.bus = bus
	}
}

// New creates an empty table.
func New(opts ...Option) *Table {
	o := tableOptions{
		pidMin: DefaultPIDMin,
		pidMax: DefaultPIDMax,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Table{
		nodes:  make(map[int]*Node),
		pids:   newPIDPool(o.pidMin, o.pidMax),
		logger: o.logger.WithComponent("proctable"),
		bus:    o.bus,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Allocate reserves a pid, preferring recycled ones.
func (t *Table) Allocate() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pid, ok := t.pids.take()
	if !ok {
		return 0, fmt.Errorf("%w: no free pid in [%d, %d]", errors.ErrResourceExhausted, t.pids.min, t.pids.max)
	}
	return pid, nil
}

// Register inserts a running node for an allocated pid. parent is
// NoParent or the pid of a running process. A reaped node with the same
// pid is replaced; any other existing node is an invariant violation.
func (t *Table) Register(pid, parent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	errors.Invariant(t.pids.outstanding(pid), "register of unallocated pid %d", pid)
	if old, ok := t.nodes[pid]; ok {
		errors.Invariant(old.Status == StatusReaped, "register over live pid %d (%s)", pid, old.Status)
	}
	if parent != NoParent {
		p, ok := t.nodes[parent]
		errors.Invariant(ok && p.Status == StatusRunning, "parent %d of pid %d is not running", parent, pid)
	}

	t.nodes[pid] = &Node{PID: pid, Parent: parent, Status: StatusRunning}
	t.logger.Info("process registered", "pid", pid, "parent", parent)
	t.bus.Publish(event.NewProcessRegisteredEvent(pid, parent))
}

// Abandon rolls back a fork that failed after Allocate. A running node
// registered for pid is reaped without waking any waiter; if none was
// registered the pid is simply returned to the pool.
func (t *Table) Abandon(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[pid]
	if !ok || n.Status == StatusReaped {
		if t.pids.outstanding(pid) {
			t.pids.put(pid)
		}
		return
	}
	errors.Invariant(n.Status == StatusRunning, "abandon of pid %d in state %s", pid, n.Status)
	errors.Invariant(len(t.childrenLocked(pid)) == 0, "abandon of pid %d with children", pid)
	t.reapLocked(n, event.ReapedByAbandon)
}

// Exit records code for pid and applies the exit transitions: the node
// becomes a zombie if it has a parent or is reaped if not; its zombie
// children are reaped and its running children orphaned. Blocked waiters
// are woken. Exiting a pid that is not running is an invariant violation.
func (t *Table) Exit(pid, code int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[pid]
	errors.Invariant(ok, "exit of unknown pid %d", pid)
	errors.Invariant(n.Status == StatusRunning, "exit of pid %d in state %s", pid, n.Status)

	n.ExitCode = code
	if n.Parent != NoParent {
		n.Status = StatusZombie
		t.logger.Info("process exited", "pid", pid, "code", code, "parent", n.Parent)
		t.bus.Publish(event.NewProcessExitedEvent(pid, code, n.Status.String()))
	} else {
		t.logger.Info("process exited", "pid", pid, "code", code)
		n.Status = StatusReaped
		t.bus.Publish(event.NewProcessExitedEvent(pid, code, n.Status.String()))
		t.recycleLocked(n, event.ReapedBySelf)
	}

	for _, child := range t.childrenLocked(pid) {
		switch child.Status {
		case StatusZombie:
			t.reapLocked(child, event.ReapedByParentExit)
		case StatusRunning:
			child.Parent = NoParent
			t.logger.Info("process orphaned", "pid", child.PID, "former_parent", pid)
			t.bus.Publish(event.NewProcessOrphanedEvent(child.PID, pid))
		}
	}
	// Waiters for pid and for its orphaned children both re-check.
	t.cond.Broadcast()
}

// Wait blocks until child pid of requester has exited, collects its exit
// code and reaps it. It fails with ErrNoSuchProcess for an unknown pid and
// ErrNotMyChild when requester is not (or stops being) its parent.
func (t *Table) Wait(pid, requester int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		n, ok := t.nodes[pid]
		if !ok {
			return 0, fmt.Errorf("%w: pid %d", errors.ErrNoSuchProcess, pid)
		}
		if n.Parent == NoParent || n.Parent != requester {
			return 0, fmt.Errorf("%w: pid %d is not a child of %d", errors.ErrNotMyChild, pid, requester)
		}
		if n.Status != StatusRunning {
			code := n.ExitCode
			t.reapLocked(n, event.ReapedByWait)
			return code, nil
		}
		t.logger.Debug("waiting for child", "pid", requester, "child", pid)
		t.cond.Wait()
	}
}

// reapLocked moves n to REAPED, detaches it from its parent and recycles
// its pid.
func (t *Table) reapLocked(n *Node, by string) {
	n.Status = StatusReaped
	n.Parent = NoParent
	t.recycleLocked(n, by)
}

func (t *Table) recycleLocked(n *Node, by string) {
	t.pids.put(n.PID)
	t.logger.Debug("process reaped", "pid", n.PID, "by", by)
	t.bus.Publish(event.NewProcessReapedEvent(n.PID, by))
}

func (t *Table) childrenLocked(pid int) []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if n.Parent == pid && n.Status != StatusReaped {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *Node) int { return cmp.Compare(a.PID, b.PID) })
	return out
}

// Lookup returns a copy of the node for pid.
func (t *Table) Lookup(pid int) (Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[pid]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Children returns the running and zombie children of pid, ordered by pid.
func (t *Table) Children(pid int) []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	children := t.childrenLocked(pid)
	out := make([]Node, len(children))
	for i, c := range children {
		out[i] = *c
	}
	return out
}

// Snapshot returns every node, reaped ones included, ordered by pid.
func (t *Table) Snapshot() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.PID, b.PID) })
	return out
}

// Stats returns per-status counts and pool usage.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Pooled: t.pids.size(), Issued: t.pids.issued()}
	for _, n := range t.nodes {
		switch n.Status {
		case StatusRunning:
			s.Running++
		case StatusZombie:
			s.Zombie++
		case StatusReaped:
			s.Reaped++
		}
	}
	return s
}
