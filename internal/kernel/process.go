package kernel

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/logging"
)

// Image describes the program a process is running and where its
// arguments were placed.
type Image struct {
	Path     string   `json:"path" yaml:"path"`
	Entry    UserPtr  `json:"entry" yaml:"entry"`
	Argc     int      `json:"argc" yaml:"argc"`
	Argv     UserPtr  `json:"argv" yaml:"argv"`
	StackPtr UserPtr  `json:"stack_ptr" yaml:"stack_ptr"`
	Args     []string `json:"args" yaml:"args"`
}

// Process is a live user process. Its methods are the syscalls the process
// itself makes; after Exit the Process must not be used again.
type Process struct {
	k      *Kernel
	pid    int
	name   string
	logger *logging.Logger

	mu     sync.Mutex
	as     AddressSpace
	image  Image
	exited atomic.Bool
}

// Getpid returns the process id.
func (p *Process) Getpid() int {
	return p.pid
}

// Name returns the name of the program the process is running.
func (p *Process) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// Image returns the current program image.
func (p *Process) Image() Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image
}

// AddressSpace returns the current address space, or nil after Exit.
func (p *Process) AddressSpace() AddressSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.as
}

func (p *Process) mustBeAlive(op string) {
	errors.Invariant(!p.exited.Load(), "%s by exited pid %d", op, p.pid)
}

// Fork creates a child running a copy of this process and returns the
// child's pid. The child's thread runs the kernel's child entry hook. Every
// failure undoes what was set up before it.
func (p *Process) Fork() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeAlive("fork")

	k := p.k
	pid, err := k.table.Allocate()
	if err != nil {
		return 0, errors.NewSyscallError("fork", err).WithPID(p.pid)
	}

	as, err := p.as.Copy()
	if err != nil {
		k.table.Abandon(pid)
		return 0, errors.NewSyscallError("fork", fmt.Errorf("copy address space: %w", err)).WithPID(p.pid)
	}

	k.table.Register(pid, p.pid)
	child := &Process{
		k:      k,
		pid:    pid,
		name:   p.name,
		as:     as,
		image:  p.image,
		logger: k.logger.WithPID(pid),
	}
	k.attach(child)

	entry := func() {
		if k.childEntry != nil {
			k.childEntry(child)
		}
	}
	if err := k.collab.Threads.CreateThread(fmt.Sprintf("%s[%d]", p.name, pid), entry); err != nil {
		k.detach(child)
		as.Destroy()
		k.table.Abandon(pid)
		return 0, errors.NewSyscallError("fork", fmt.Errorf("create thread: %w", err)).WithPID(p.pid)
	}

	p.logger.Info("process forked", "child", pid)
	return pid, nil
}

// Exit terminates the process with code. Its address space is destroyed
// and it leaves the kernel's registry.
func (p *Process) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeAlive("exit")

	p.k.table.Exit(p.pid, code)

	p.as.Destroy()
	p.as = nil
	p.exited.Store(true)
	p.k.detach(p)
	p.logger.Info("process exit", "code", code)
}

// Waitpid blocks until child pid exits and returns its pid and exit code.
// Only options == 0 is supported.
func (p *Process) Waitpid(pid, options int) (int, int, error) {
	p.mustBeAlive("waitpid")

	if options != 0 {
		return 0, 0, errors.NewSyscallError("waitpid",
			fmt.Errorf("%w: unsupported options %#x", errors.ErrInvalidArgument, options)).WithPID(p.pid)
	}

	code, err := p.k.table.Wait(pid, p.pid)
	if err != nil {
		return 0, 0, errors.NewSyscallError("waitpid", err).WithPID(p.pid)
	}
	return pid, code, nil
}

// WaitpidStatus is Waitpid with the exit code copied out to status as a
// 4-byte big-endian integer. A zero status pointer skips the copy.
func (p *Process) WaitpidStatus(pid int, status UserPtr, options int) (int, error) {
	got, code, err := p.Waitpid(pid, options)
	if err != nil {
		return 0, err
	}
	if status == 0 {
		return got, nil
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(int32(code)))
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.as.CopyOut(buf[:], status); err != nil {
		return 0, errors.NewSyscallError("waitpid", err).WithPID(p.pid)
	}
	return got, nil
}

// Execv replaces the program image with the one named by the string at
// progPtr, passing the NULL-terminated argument vector at argvPtr. On
// success the old address space is destroyed; on failure it is untouched
// and still current.
func (p *Process) Execv(progPtr, argvPtr UserPtr) (Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mustBeAlive("execv")

	fail := func(err error) (Image, error) {
		return Image{}, errors.NewSyscallError("execv", err).WithPID(p.pid)
	}

	if progPtr == 0 || argvPtr == 0 {
		return fail(fmt.Errorf("%w: null program or argument pointer", errors.ErrBadAddress))
	}

	args, err := p.copyInArgs(argvPtr)
	if err != nil {
		return fail(err)
	}
	progname, err := p.as.CopyInString(progPtr, p.k.limits.PathMax)
	if err != nil {
		return fail(fmt.Errorf("copy in program name: %w", err))
	}

	as, img, err := p.k.load(progname, args)
	if err != nil {
		return fail(err)
	}

	old := p.as
	p.as = as
	p.image = img
	p.name = progname
	old.Destroy()

	p.logger.Info("process exec", "program", progname, "argc", img.Argc)
	return img, nil
}

// copyInArgs reads the pointer vector at argvPtr and the strings it points
// to from the current address space.
func (p *Process) copyInArgs(argvPtr UserPtr) ([]string, error) {
	limits := p.k.limits

	var ptrs []UserPtr
	var buf [PtrSize]byte
	for i := 0; ; i++ {
		if err := p.as.CopyIn(argvPtr+UserPtr(i*PtrSize), buf[:]); err != nil {
			return nil, fmt.Errorf("copy in argument vector: %w", err)
		}
		ptr := UserPtr(binary.BigEndian.Uint32(buf[:]))
		if ptr == 0 {
			break
		}
		if len(ptrs) == limits.MaxArgs {
			return nil, fmt.Errorf("%w: more than %d arguments", errors.ErrArgListTooLong, limits.MaxArgs)
		}
		ptrs = append(ptrs, ptr)
	}

	args := make([]string, len(ptrs))
	used := 0
	for i, ptr := range ptrs {
		remaining := limits.ArgMax - used
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: arguments exceed %d bytes", errors.ErrArgListTooLong, limits.ArgMax)
		}
		s, err := p.as.CopyInString(ptr, remaining)
		if err != nil {
			if errors.Is(err, errors.ErrInvalidArgument) && !errors.Is(err, errors.ErrBadAddress) {
				return nil, fmt.Errorf("%w: arguments exceed %d bytes", errors.ErrArgListTooLong, limits.ArgMax)
			}
			return nil, fmt.Errorf("copy in argument %d: %w", i, err)
		}
		args[i] = s
		used += roundUp(len(s)+1, argAlign)
	}
	return args, nil
}
