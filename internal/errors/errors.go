// Package errors provides the error taxonomy shared by the synchcore
// subsystems. It defines the sentinel errors surfaced by the syscall layer,
// the errno codes they map to, a SyscallError type that records which
// operation failed, and the invariant assertion used for fatal kernel bugs.
//
// # Taxonomy
//
//   - [ErrResourceExhausted]: allocation failure (ENOMEM). Process creation
//     aborts cleanly.
//   - [ErrNoSuchProcess] / [ErrNotMyChild]: waitpid on an unknown or foreign
//     pid (ESRCH / ECHILD). Returned to the caller, never fatal.
//   - [ErrInvalidArgument]: bad options or arguments (EINVAL).
//     [ErrArgListTooLong] wraps it with the E2BIG code.
//   - [ErrBadAddress] / [ErrNotFound]: collaborator failures (EFAULT /
//     ENOENT), propagated unchanged.
//   - [InvariantError]: raised by [Invariant] as a panic. Indicates a bug.
//
// # Usage
//
//	if errors.Is(err, errors.ErrNotMyChild) { ... }
//	code := errors.Errno(err) // ECHILD
//
//	errors.Invariant(node != nil, "pid %d vanished mid-scan", pid)
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Code is an errno-style return code as seen by user programs.
type Code int

// Errno values follow the teaching kernel's kern/errno.h numbering.
const (
	OK      Code = 0
	ENOSYS  Code = 1
	ENOMEM  Code = 3
	EFAULT  Code = 6
	E2BIG   Code = 7
	ESRCH   Code = 8
	ECHILD  Code = 9
	EINVAL  Code = 10
	ENOENT  Code = 17
	EBUSY   Code = 21
	EUNKNOW Code = 99
)

// String returns the symbolic name of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case ENOSYS:
		return "ENOSYS"
	case ENOMEM:
		return "ENOMEM"
	case EFAULT:
		return "EFAULT"
	case E2BIG:
		return "E2BIG"
	case ESRCH:
		return "ESRCH"
	case ECHILD:
		return "ECHILD"
	case EINVAL:
		return "EINVAL"
	case ENOENT:
		return "ENOENT"
	case EBUSY:
		return "EBUSY"
	default:
		return fmt.Sprintf("errno(%d)", int(c))
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Process and syscall sentinel errors
var (
	// ErrResourceExhausted indicates an allocation failure for a process node,
	// pid, address space or argument buffer.
	ErrResourceExhausted = New("resource exhausted")
	// ErrNoSuchProcess indicates that the pid is not a known process node.
	ErrNoSuchProcess = New("no such process")
	// ErrNotMyChild indicates that the pid is not a child of the caller.
	ErrNotMyChild = New("not a child of the calling process")
	// ErrInvalidArgument indicates a malformed argument, such as nonzero
	// waitpid options.
	ErrInvalidArgument = New("invalid argument")
	// ErrArgListTooLong indicates an argument vector beyond the kernel limits.
	ErrArgListTooLong = fmt.Errorf("argument list too long: %w", ErrInvalidArgument)
	// ErrBadAddress indicates an invalid user-space pointer.
	ErrBadAddress = New("bad address")
	// ErrNotFound indicates that a named program does not exist.
	ErrNotFound = New("no such file or directory")
)

// Intersection sentinel errors
var (
	// ErrNotInIntersection indicates an exit for a vehicle that was never
	// admitted.
	ErrNotInIntersection = New("vehicle is not in the intersection")
	// ErrIntersectionBusy indicates teardown while vehicles are still active.
	ErrIntersectionBusy = New("intersection still has active vehicles")
)

// errnoTable maps sentinels to codes. Order matters: ErrArgListTooLong must
// be checked before ErrInvalidArgument because it wraps it.
var errnoTable = []struct {
	err  error
	code Code
}{
	{ErrArgListTooLong, E2BIG},
	{ErrResourceExhausted, ENOMEM},
	{ErrNoSuchProcess, ESRCH},
	{ErrNotMyChild, ECHILD},
	{ErrInvalidArgument, EINVAL},
	{ErrBadAddress, EFAULT},
	{ErrNotFound, ENOENT},
	{ErrNotInIntersection, EINVAL},
	{ErrIntersectionBusy, EBUSY},
}

// Errno maps err to the code a user program would observe. nil maps to OK
// and unclassified errors map to EUNKNOW.
func Errno(err error) Code {
	if err == nil {
		return OK
	}
	var se *SyscallError
	if As(err, &se) && se.Code != OK {
		return se.Code
	}
	for _, e := range errnoTable {
		if Is(err, e.err) {
			return e.code
		}
	}
	return EUNKNOW
}

// -----------------------------------------------------------------------------
// SyscallError
// -----------------------------------------------------------------------------

// SyscallError records the syscall that failed together with the cause.
//
// Example:
//
//	err := errors.NewSyscallError("waitpid", errors.ErrNotMyChild).WithPID(7)
//	fmt.Println(err) // "waitpid [pid=7]: not a child of the calling process"
type SyscallError struct {
	Op    string
	PID   int
	Code  Code
	cause error
}

// NewSyscallError wraps cause for the named operation. The code is derived
// from the cause.
func NewSyscallError(op string, cause error) *SyscallError {
	return &SyscallError{
		Op:    op,
		Code:  Errno(cause),
		cause: cause,
	}
}

// WithPID records the pid the operation was acting on.
func (e *SyscallError) WithPID(pid int) *SyscallError {
	e.PID = pid
	return e
}

// Error returns the formatted error message.
func (e *SyscallError) Error() string {
	prefix := e.Op
	if e.PID != 0 {
		prefix = fmt.Sprintf("%s [pid=%d]", e.Op, e.PID)
	}
	if e.cause == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %v", prefix, e.cause)
}

// Unwrap returns the underlying error.
func (e *SyscallError) Unwrap() error {
	return e.cause
}

// -----------------------------------------------------------------------------
// Invariants
// -----------------------------------------------------------------------------

// InvariantError is the panic value raised by Invariant. It signals an
// internal invariant violation, which is a bug and not recoverable.
type InvariantError struct {
	Message string
}

// Error returns the formatted error message.
func (e *InvariantError) Error() string {
	return "internal invariant violation: " + e.Message
}

// Invariant panics with an *InvariantError when cond is false.
func Invariant(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(&InvariantError{Message: fmt.Sprintf(format, args...)})
}

// IsFatal returns true for errors that indicate a kernel bug.
func IsFatal(err error) bool {
	var ie *InvariantError
	return As(err, &ie)
}

// IsUserFacing returns true when err maps to a known errno, meaning a user
// program can reasonably act on it.
func IsUserFacing(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return Errno(err) != EUNKNOW
}
