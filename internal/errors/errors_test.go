package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode_String(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{OK, "OK"},
		{ENOMEM, "ENOMEM"},
		{ESRCH, "ESRCH"},
		{ECHILD, "ECHILD"},
		{EINVAL, "EINVAL"},
		{E2BIG, "E2BIG"},
		{Code(1234), "errno(1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.String(); got != tt.want {
				t.Errorf("Code.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrno(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"exhausted", ErrResourceExhausted, ENOMEM},
		{"no such process", ErrNoSuchProcess, ESRCH},
		{"not my child", ErrNotMyChild, ECHILD},
		{"invalid", ErrInvalidArgument, EINVAL},
		{"too big", ErrArgListTooLong, E2BIG},
		{"bad address", ErrBadAddress, EFAULT},
		{"wrapped", fmt.Errorf("copyin: %w", ErrBadAddress), EFAULT},
		{"syscall error", NewSyscallError("waitpid", ErrNotMyChild), ECHILD},
		{"unclassified", errors.New("boom"), EUNKNOW},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Errno(tt.err); got != tt.want {
				t.Errorf("Errno(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestArgListTooLongIsInvalidArgument(t *testing.T) {
	if !Is(ErrArgListTooLong, ErrInvalidArgument) {
		t.Error("ErrArgListTooLong should match ErrInvalidArgument")
	}
}

func TestSyscallError(t *testing.T) {
	err := NewSyscallError("waitpid", ErrNotMyChild).WithPID(7)

	if got, want := err.Error(), "waitpid [pid=7]: not a child of the calling process"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrNotMyChild) {
		t.Error("SyscallError should unwrap to its cause")
	}
	if err.Code != ECHILD {
		t.Errorf("Code = %v, want ECHILD", err.Code)
	}

	bare := NewSyscallError("fork", nil)
	if got := bare.Error(); got != "fork" {
		t.Errorf("Error() = %q, want %q", got, "fork")
	}
}

func TestInvariant(t *testing.T) {
	Invariant(true, "never raised")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Invariant(false) did not panic")
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %T is not an error", r)
		}
		if !IsFatal(err) {
			t.Errorf("IsFatal(%v) = false, want true", err)
		}
		if got, want := err.Error(), "internal invariant violation: pid 3 exists"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	}()
	Invariant(false, "pid %d exists", 3)
}

func TestIsUserFacing(t *testing.T) {
	if !IsUserFacing(ErrNotMyChild) {
		t.Error("ErrNotMyChild should be user facing")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("unclassified errors should not be user facing")
	}
	if IsUserFacing(&InvariantError{Message: "x"}) {
		t.Error("invariant errors should not be user facing")
	}
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
}
