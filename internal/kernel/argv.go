package kernel

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Iron-Ham/synchcore/internal/errors"
)

// argAlign is the alignment of each argument string on the user stack.
const argAlign = 8

// ArgvLayout is the image of an argument vector as it is placed at the top
// of a new user stack: the padded strings immediately below the stack top
// and the NULL-terminated pointer array immediately below the strings.
type ArgvLayout struct {
	Argc        int
	Strings     []byte
	StringsAddr UserPtr
	Pointers    []byte
	ArgvAddr    UserPtr
}

// Size is the number of stack bytes the layout occupies.
func (l ArgvLayout) Size() int {
	return len(l.Strings) + len(l.Pointers)
}

// StackPtr is the initial user stack pointer, which is also argv.
func (l ArgvLayout) StackPtr() UserPtr {
	return l.ArgvAddr
}

// CopyOut writes the layout into as.
func (l ArgvLayout) CopyOut(as AddressSpace) error {
	if err := as.CopyOut(l.Strings, l.StringsAddr); err != nil {
		return fmt.Errorf("copy out argument strings: %w", err)
	}
	if err := as.CopyOut(l.Pointers, l.ArgvAddr); err != nil {
		return fmt.Errorf("copy out argument vector: %w", err)
	}
	return nil
}

func roundUp(n, align int) int {
	return (n + align - 1) / align * align
}

// BuildArgv lays args out below stackTop. Each string is NUL-terminated
// and padded to a multiple of 8 bytes; pointers are 4 bytes, big-endian.
// A layout larger than argMax fails with ErrArgListTooLong.
func BuildArgv(args []string, stackTop UserPtr, argMax int) (ArgvLayout, error) {
	stringsSize := 0
	offsets := make([]int, len(args))
	for i, a := range args {
		if strings.IndexByte(a, 0) >= 0 {
			return ArgvLayout{}, fmt.Errorf("%w: argument %d contains a NUL byte", errors.ErrInvalidArgument, i)
		}
		offsets[i] = stringsSize
		stringsSize += roundUp(len(a)+1, argAlign)
	}
	pointersSize := PtrSize * (len(args) + 1)

	if total := stringsSize + pointersSize; total > argMax {
		return ArgvLayout{}, fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrArgListTooLong, total, argMax)
	}
	if uint64(stringsSize+pointersSize) > uint64(stackTop) {
		return ArgvLayout{}, fmt.Errorf("%w: argument vector does not fit below %s", errors.ErrBadAddress, stackTop)
	}

	l := ArgvLayout{
		Argc:        len(args),
		Strings:     make([]byte, stringsSize),
		StringsAddr: stackTop - UserPtr(stringsSize),
		Pointers:    make([]byte, pointersSize),
	}
	l.ArgvAddr = l.StringsAddr - UserPtr(pointersSize)

	for i, a := range args {
		copy(l.Strings[offsets[i]:], a)
		binary.BigEndian.PutUint32(l.Pointers[i*PtrSize:], uint32(l.StringsAddr)+uint32(offsets[i]))
	}
	// The trailing pointer slot is already zero.
	return l, nil
}
