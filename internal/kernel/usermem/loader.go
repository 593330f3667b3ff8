package usermem

import (
	"fmt"
	"sync"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/kernel"
)

// Program is a loadable image: its text is copied to TextBase and
// execution starts at TextBase+EntryOffset.
type Program struct {
	Text        []byte
	EntryOffset int
}

// Loader loads programs from an in-memory registry.
type Loader struct {
	mu       sync.RWMutex
	programs map[string]Program
}

// NewLoader returns a loader that knows the given program paths, each with
// a small placeholder text segment.
func NewLoader(paths ...string) *Loader {
	l := &Loader{programs: make(map[string]Program)}
	for _, p := range paths {
		l.Register(p, Program{Text: []byte("\x00\x00\x00\x0c" + p)})
	}
	return l
}

// Register adds or replaces the program at path.
func (l *Loader) Register(path string, prog Program) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[path] = prog
}

// Programs returns the registered paths.
func (l *Loader) Programs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.programs))
	for p := range l.programs {
		out = append(out, p)
	}
	return out
}

// Load maps the program's text into as and returns its entry point. as
// must be a *Space.
func (l *Loader) Load(path string, as kernel.AddressSpace) (kernel.UserPtr, error) {
	l.mu.RLock()
	prog, ok := l.programs[path]
	l.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", errors.ErrNotFound, path)
	}

	space, ok := as.(*Space)
	if !ok {
		return 0, fmt.Errorf("%w: cannot load into %T", errors.ErrInvalidArgument, as)
	}
	size := max(len(prog.Text), 1)
	if err := space.Map("text", TextBase, size); err != nil {
		return 0, err
	}
	if len(prog.Text) > 0 {
		if err := space.CopyOut(prog.Text, TextBase); err != nil {
			return 0, err
		}
	}
	return TextBase + kernel.UserPtr(prog.EntryOffset), nil
}

var _ kernel.Loader = (*Loader)(nil)
