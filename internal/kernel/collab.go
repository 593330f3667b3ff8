package kernel

import "fmt"

// UserPtr is an address in a user address space.
type UserPtr uint32

func (p UserPtr) String() string {
	return fmt.Sprintf("0x%08x", uint32(p))
}

// PtrSize is the size of a user pointer in bytes.
const PtrSize = 4

// AddressSpace is a user address space.
type AddressSpace interface {
	// Copy returns a deep copy, as needed by fork.
	Copy() (AddressSpace, error)
	// Destroy releases the space. It must be called exactly once.
	Destroy()
	// DefineStack maps the user stack and returns the initial stack pointer.
	DefineStack() (UserPtr, error)
	// CopyIn reads len(dst) bytes at src.
	CopyIn(src UserPtr, dst []byte) error
	// CopyOut writes src at dst.
	CopyOut(src []byte, dst UserPtr) error
	// CopyInString reads a NUL-terminated string of at most limit bytes,
	// terminator included. A string that does not fit fails with an error
	// wrapping errors.ErrInvalidArgument.
	CopyInString(src UserPtr, limit int) (string, error)
}

// AddressSpaceFactory creates empty address spaces.
type AddressSpaceFactory interface {
	Create() (AddressSpace, error)
}

// Loader loads the program at path into as and returns its entry point.
// Unknown programs fail with an error wrapping errors.ErrNotFound.
type Loader interface {
	Load(path string, as AddressSpace) (UserPtr, error)
}

// ThreadSpawner starts a kernel thread running entry.
type ThreadSpawner interface {
	CreateThread(name string, entry func()) error
}

// Collaborators are the external services the kernel calls into.
type Collaborators struct {
	AddressSpaces AddressSpaceFactory
	Loader        Loader
	Threads       ThreadSpawner
}
