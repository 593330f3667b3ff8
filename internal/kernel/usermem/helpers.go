package usermem

import (
	"encoding/binary"

	"github.com/Iron-Ham/synchcore/internal/kernel"
)

// Collaborators bundles a fresh factory, spawner and the given loader.
func Collaborators(loader *Loader) (kernel.Collaborators, *Factory, *Threads) {
	f := NewFactory()
	th := NewThreads()
	return kernel.Collaborators{AddressSpaces: f, Loader: loader, Threads: th}, f, th
}

// PutArgv writes progname and args into fresh heap memory of s the way a
// user program would before calling execv, and returns the program and
// argv pointers.
func PutArgv(s *Space, progname string, args []string) (prog, argv kernel.UserPtr, err error) {
	size := len(progname) + 1 + kernel.PtrSize*(len(args)+1)
	for _, a := range args {
		size += len(a) + 1
	}
	base, err := s.MapHeap(size)
	if err != nil {
		return 0, 0, err
	}

	next := base
	put := func(str string) (kernel.UserPtr, error) {
		at := next
		if err := s.CopyOut(append([]byte(str), 0), at); err != nil {
			return 0, err
		}
		next += kernel.UserPtr(len(str) + 1)
		return at, nil
	}

	if prog, err = put(progname); err != nil {
		return 0, 0, err
	}
	ptrs := make([]byte, kernel.PtrSize*(len(args)+1))
	for i, a := range args {
		p, err := put(a)
		if err != nil {
			return 0, 0, err
		}
		binary.BigEndian.PutUint32(ptrs[i*kernel.PtrSize:], uint32(p))
	}
	argv = next
	if err := s.CopyOut(ptrs, argv); err != nil {
		return 0, 0, err
	}
	return prog, argv, nil
}

// ReadArgv decodes the NULL-terminated argument vector at argv.
func ReadArgv(s *Space, argv kernel.UserPtr, limit int) ([]string, error) {
	var out []string
	var buf [kernel.PtrSize]byte
	for i := 0; ; i++ {
		if err := s.CopyIn(argv+kernel.UserPtr(i*kernel.PtrSize), buf[:]); err != nil {
			return nil, err
		}
		p := kernel.UserPtr(binary.BigEndian.Uint32(buf[:]))
		if p == 0 {
			return out, nil
		}
		str, err := s.CopyInString(p, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, str)
	}
}
