package kernel

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/logging"
	"github.com/Iron-Ham/synchcore/internal/proctable"
)

// Limits bounds the arguments accepted by Spawn and Execv.
type Limits struct {
	MaxArgs int // maximum argument count
	ArgMax  int // maximum size in bytes of the laid-out argument vector
	PathMax int // maximum program path length, terminator included
}

// DefaultLimits returns the limits of the teaching kernel.
func DefaultLimits() Limits {
	return Limits{MaxArgs: 64, ArgMax: 65536, PathMax: 1024}
}

// Kernel is the syscall surface over one process table.
type Kernel struct {
	table  *proctable.Table
	collab Collaborators
	limits Limits
	logger *logging.Logger
	bus    *event.Bus

	childEntry func(*Process)

	mu    sync.Mutex
	procs map[int]*Process
}

// Option configures a Kernel.
type Option func(*kernelOptions)

type kernelOptions struct {
	logger     *logging.Logger
	bus        *event.Bus
	limits     Limits
	childEntry func(*Process)
	tableOpts  []proctable.Option
}

// WithLogger sets the logger used by the kernel and its process table.
func WithLogger(l *logging.Logger) Option {
	return func(o *kernelOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventBus publishes process table events to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(o *kernelOptions) { o.bus = bus }
}

// WithLimits overrides DefaultLimits. Non-positive fields keep their
// defaults.
func WithLimits(l Limits) Option {
	return func(o *kernelOptions) {
		if l.MaxArgs > 0 {
			o.limits.MaxArgs = l.MaxArgs
		}
		if l.ArgMax > 0 {
			o.limits.ArgMax = l.ArgMax
		}
		if l.PathMax > 0 {
			o.limits.PathMax = l.PathMax
		}
	}
}

// WithChildEntry sets the function a forked child's thread runs. The
// default returns immediately, leaving the child to be driven by its
// caller.
func WithChildEntry(fn func(child *Process)) Option {
	return func(o *kernelOptions) { o.childEntry = fn }
}

// WithTableOptions passes extra options to the process table.
func WithTableOptions(opts ...proctable.Option) Option {
	return func(o *kernelOptions) { o.tableOpts = append(o.tableOpts, opts...) }
}

// New creates a kernel with an empty process table.
func New(collab Collaborators, opts ...Option) *Kernel {
	o := kernelOptions{
		logger: logging.NopLogger(),
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	errors.Invariant(collab.AddressSpaces != nil && collab.Loader != nil && collab.Threads != nil,
		"kernel collaborators must all be set")

	tableOpts := append([]proctable.Option{
		proctable.WithLogger(o.logger),
		proctable.WithEventBus(o.bus),
	}, o.tableOpts...)

	return &Kernel{
		table:      proctable.New(tableOpts...),
		collab:     collab,
		limits:     o.limits,
		logger:     o.logger.WithComponent("kernel"),
		bus:        o.bus,
		childEntry: o.childEntry,
		procs:      make(map[int]*Process),
	}
}

// Table returns the process table.
func (k *Kernel) Table() *proctable.Table {
	return k.table
}

// Limits returns the argument limits in force.
func (k *Kernel) Limits() Limits {
	return k.limits
}

// Process returns the live process with the given pid.
func (k *Kernel) Process(pid int) (*Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.procs[pid]
	return p, ok
}

// Processes returns the live processes ordered by pid.
func (k *Kernel) Processes() []*Process {
	k.mu.Lock()
	out := make([]*Process, 0, len(k.procs))
	for _, p := range k.procs {
		out = append(out, p)
	}
	k.mu.Unlock()

	slices.SortFunc(out, func(a, b *Process) int { return cmp.Compare(a.pid, b.pid) })
	return out
}

func (k *Kernel) attach(p *Process) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.procs[p.pid] = p
}

func (k *Kernel) detach(p *Process) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.procs[p.pid] == p {
		delete(k.procs, p.pid)
	}
}

// Spawn starts the first process of a program: it has no parent, gets a
// fresh address space with progname loaded and args laid out on its stack.
// Nothing is left behind on failure.
func (k *Kernel) Spawn(progname string, args []string) (*Process, error) {
	if len(args) > k.limits.MaxArgs {
		return nil, errors.NewSyscallError("spawn",
			fmt.Errorf("%w: %d arguments, limit %d", errors.ErrArgListTooLong, len(args), k.limits.MaxArgs))
	}
	if len(progname)+1 > k.limits.PathMax {
		return nil, errors.NewSyscallError("spawn",
			fmt.Errorf("%w: program path longer than %d", errors.ErrInvalidArgument, k.limits.PathMax))
	}

	pid, err := k.table.Allocate()
	if err != nil {
		return nil, errors.NewSyscallError("spawn", err)
	}

	as, img, err := k.load(progname, args)
	if err != nil {
		k.table.Abandon(pid)
		return nil, errors.NewSyscallError("spawn", err).WithPID(pid)
	}

	k.table.Register(pid, proctable.NoParent)
	p := &Process{
		k:      k,
		pid:    pid,
		name:   progname,
		as:     as,
		image:  img,
		logger: k.logger.WithPID(pid),
	}
	k.attach(p)
	p.logger.Info("process spawned", "program", progname, "argc", img.Argc)
	return p, nil
}

// load builds a fresh address space running progname with args. On error
// the new address space has already been destroyed.
func (k *Kernel) load(progname string, args []string) (AddressSpace, Image, error) {
	as, err := k.collab.AddressSpaces.Create()
	if err != nil {
		return nil, Image{}, fmt.Errorf("create address space: %w", err)
	}

	img, err := k.prepare(as, progname, args)
	if err != nil {
		as.Destroy()
		return nil, Image{}, err
	}
	return as, img, nil
}

func (k *Kernel) prepare(as AddressSpace, progname string, args []string) (Image, error) {
	entry, err := k.collab.Loader.Load(progname, as)
	if err != nil {
		return Image{}, fmt.Errorf("load %s: %w", progname, err)
	}
	stackTop, err := as.DefineStack()
	if err != nil {
		return Image{}, fmt.Errorf("define stack: %w", err)
	}
	layout, err := BuildArgv(args, stackTop, k.limits.ArgMax)
	if err != nil {
		return Image{}, err
	}
	if err := layout.CopyOut(as); err != nil {
		return Image{}, err
	}
	return Image{
		Path:     progname,
		Entry:    entry,
		Argc:     layout.Argc,
		Argv:     layout.ArgvAddr,
		StackPtr: layout.StackPtr(),
		Args:     slices.Clone(args),
	}, nil
}
