package kernel_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/kernel"
)

func TestBuildArgv_Layout(t *testing.T) {
	const top kernel.UserPtr = 0x80000000

	l, err := kernel.BuildArgv([]string{"a", "hello", "12345678"}, top, 65536)
	if err != nil {
		t.Fatalf("BuildArgv() error = %v", err)
	}

	// "a\0" and "hello\0" pad to 8 bytes each, "12345678\0" pads to 16.
	if len(l.Strings) != 32 {
		t.Fatalf("strings size = %d, want 32", len(l.Strings))
	}
	if l.StringsAddr != top-32 {
		t.Errorf("StringsAddr = %s, want %s", l.StringsAddr, top-32)
	}
	if len(l.Pointers) != 16 || l.ArgvAddr != top-48 {
		t.Errorf("pointers = %d bytes at %s, want 16 at %s", len(l.Pointers), l.ArgvAddr, top-48)
	}
	if l.StackPtr() != l.ArgvAddr || l.Size() != 48 || l.Argc != 3 {
		t.Errorf("StackPtr = %s, Size = %d, Argc = %d", l.StackPtr(), l.Size(), l.Argc)
	}

	wantOffsets := []uint32{0, 8, 16}
	for i, off := range wantOffsets {
		got := binary.BigEndian.Uint32(l.Pointers[i*4:])
		if got != uint32(l.StringsAddr)+off {
			t.Errorf("argv[%d] = 0x%x, want 0x%x", i, got, uint32(l.StringsAddr)+off)
		}
	}
	if binary.BigEndian.Uint32(l.Pointers[12:]) != 0 {
		t.Error("argv must be NULL-terminated")
	}
	if string(l.Strings[8:14]) != "hello\x00" || string(l.Strings[16:25]) != "12345678\x00" {
		t.Errorf("strings block = %q", l.Strings)
	}
}

func TestBuildArgv_Empty(t *testing.T) {
	l, err := kernel.BuildArgv(nil, 0x1000, 64)
	if err != nil {
		t.Fatalf("BuildArgv() error = %v", err)
	}
	if l.Argc != 0 || l.Size() != kernel.PtrSize || l.ArgvAddr != 0x1000-kernel.PtrSize {
		t.Errorf("layout = %+v", l)
	}
}

func TestBuildArgv_Errors(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		max   int
		errno errors.Code
	}{
		{"too large", []string{strings.Repeat("x", 100)}, 64, errors.E2BIG},
		{"exactly at limit", []string{strings.Repeat("x", 7)}, 16, errors.OK},
		{"one byte over", []string{strings.Repeat("x", 8)}, 23, errors.E2BIG},
		{"embedded nul", []string{"a\x00b"}, 64, errors.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := kernel.BuildArgv(tt.args, 0x80000000, tt.max)
			if got := errors.Errno(err); got != tt.errno {
				t.Errorf("Errno = %v (%v), want %v", got, err, tt.errno)
			}
		})
	}
}
