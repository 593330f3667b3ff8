package usermem

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/kernel"
)

// Memory layout.
const (
	PageSize = 4096

	// UserTop is the first address above user space.
	UserTop kernel.UserPtr = 0x80000000
	// StackTop is the initial stack pointer.
	StackTop = UserTop
	// StackPages is the size of the user stack in pages.
	StackPages = 16

	// TextBase is where the loader places program text.
	TextBase kernel.UserPtr = 0x00400000
	// HeapBase is the first address MapHeap hands out.
	HeapBase kernel.UserPtr = 0x10000000
)

type region struct {
	start, end uint64 // [start, end)
	name       string
}

// Space is a sparse user address space. Accesses outside a mapped region
// fail with ErrBadAddress. Pages are allocated on first write.
type Space struct {
	factory *Factory

	mu        sync.Mutex
	regions   []region
	pages     map[uint64]*[PageSize]byte
	heapNext  uint64
	destroyed bool
}

func newSpace(f *Factory) *Space {
	return &Space{
		factory:  f,
		pages:    make(map[uint64]*[PageSize]byte),
		heapNext: uint64(HeapBase),
	}
}

// Map makes [addr, addr+size) accessible. Overlapping an existing region
// is an error.
func (s *Space) Map(name string, addr kernel.UserPtr, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapLocked(name, uint64(addr), uint64(size))
}

func (s *Space) mapLocked(name string, start, size uint64) error {
	s.mustBeLive()
	end := start + size
	if size == 0 || end > uint64(UserTop) {
		return fmt.Errorf("%w: cannot map %s at 0x%x+%d", errors.ErrBadAddress, name, start, size)
	}
	for _, r := range s.regions {
		if start < r.end && r.start < end {
			return fmt.Errorf("%w: %s overlaps %s", errors.ErrInvalidArgument, name, r.name)
		}
	}
	s.regions = append(s.regions, region{start: start, end: end, name: name})
	return nil
}

// MapHeap maps size bytes of fresh heap and returns its address.
func (s *Space) MapHeap(size int) (kernel.UserPtr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.heapNext
	rounded := uint64(size+PageSize-1) / PageSize * PageSize
	if err := s.mapLocked("heap", start, rounded); err != nil {
		return 0, err
	}
	s.heapNext = start + rounded
	return kernel.UserPtr(start), nil
}

// DefineStack maps the user stack below StackTop.
func (s *Space) DefineStack() (kernel.UserPtr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := uint64(StackPages * PageSize)
	if err := s.mapLocked("stack", uint64(StackTop)-size, size); err != nil {
		return 0, err
	}
	return StackTop, nil
}

func (s *Space) mustBeLive() {
	errors.Invariant(!s.destroyed, "use of destroyed address space")
}

// check validates that [addr, addr+n) lies inside one mapped region.
func (s *Space) check(addr kernel.UserPtr, n int) error {
	start := uint64(addr)
	end := start + uint64(n)
	for _, r := range s.regions {
		if start >= r.start && end <= r.end {
			return nil
		}
	}
	return fmt.Errorf("%w: %s+%d is not mapped", errors.ErrBadAddress, addr, n)
}

func (s *Space) page(idx uint64, create bool) *[PageSize]byte {
	p, ok := s.pages[idx]
	if !ok && create {
		p = new([PageSize]byte)
		s.pages[idx] = p
	}
	return p
}

// CopyIn reads len(dst) bytes at src.
func (s *Space) CopyIn(src kernel.UserPtr, dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeLive()

	if err := s.check(src, len(dst)); err != nil {
		return err
	}
	s.read(uint64(src), dst)
	return nil
}

func (s *Space) read(addr uint64, dst []byte) {
	for len(dst) > 0 {
		off := addr % PageSize
		n := min(uint64(len(dst)), PageSize-off)
		if p := s.page(addr/PageSize, false); p != nil {
			copy(dst[:n], p[off:off+n])
		} else {
			clear(dst[:n])
		}
		dst = dst[n:]
		addr += n
	}
}

// CopyOut writes src at dst.
func (s *Space) CopyOut(src []byte, dst kernel.UserPtr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeLive()

	if err := s.check(dst, len(src)); err != nil {
		return err
	}
	addr := uint64(dst)
	for len(src) > 0 {
		off := addr % PageSize
		n := min(uint64(len(src)), PageSize-off)
		p := s.page(addr/PageSize, true)
		copy(p[off:off+n], src[:n])
		src = src[n:]
		addr += n
	}
	return nil
}

// CopyInString reads a NUL-terminated string at src of at most limit bytes
// including the terminator.
func (s *Space) CopyInString(src kernel.UserPtr, limit int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeLive()

	var out []byte
	var b [1]byte
	for i := range limit {
		addr := src + kernel.UserPtr(i)
		if err := s.check(addr, 1); err != nil {
			return "", err
		}
		s.read(uint64(addr), b[:])
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return "", fmt.Errorf("%w: string at %s longer than %d bytes", errors.ErrInvalidArgument, src, limit)
}

// Copy returns a deep copy of the space.
func (s *Space) Copy() (kernel.AddressSpace, error) {
	if err := s.factory.copyFailure(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeLive()

	c := newSpace(s.factory)
	c.regions = slices.Clone(s.regions)
	c.heapNext = s.heapNext
	for idx, p := range s.pages {
		cp := *p
		c.pages[idx] = &cp
	}
	s.factory.track()
	return c, nil
}

// Destroy releases the space.
func (s *Space) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustBeLive()

	s.destroyed = true
	s.pages = nil
	s.regions = nil
	s.factory.untrack()
}

// Equal reports whether the mapped contents of s and other are identical.
func (s *Space) Equal(other *Space) bool {
	if s == other {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	if !slices.Equal(s.regions, other.regions) {
		return false
	}
	keys := slices.Sorted(maps.Keys(s.pages))
	if !slices.Equal(keys, slices.Sorted(maps.Keys(other.pages))) {
		return false
	}
	for _, k := range keys {
		if !bytes.Equal(s.pages[k][:], other.pages[k][:]) {
			return false
		}
	}
	return true
}

var _ kernel.AddressSpace = (*Space)(nil)
