package usermem

import (
	"sync"

	"github.com/Iron-Ham/synchcore/internal/kernel"
)

// Factory creates Spaces and counts the live ones.
type Factory struct {
	mu         sync.Mutex
	live       int
	created    int
	failCreate error
	failCopy   error
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns a new empty Space, or the injected failure.
func (f *Factory) Create() (kernel.AddressSpace, error) {
	f.mu.Lock()
	if err := f.failCreate; err != nil {
		f.failCreate = nil
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	s := newSpace(f)
	f.track()
	return s, nil
}

// FailNextCreate makes the next Create return err.
func (f *Factory) FailNextCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate = err
}

// FailNextCopy makes the next Copy of any of this factory's spaces return
// err.
func (f *Factory) FailNextCopy(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCopy = err
}

func (f *Factory) copyFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failCopy
	f.failCopy = nil
	return err
}

func (f *Factory) track() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live++
	f.created++
}

func (f *Factory) untrack() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live--
}

// Live returns the number of spaces created and not yet destroyed.
func (f *Factory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// Created returns the number of spaces ever created, copies included.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}
