package usermem

import (
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/synchcore/internal/kernel"
)

// Threads runs kernel threads as goroutines.
type Threads struct {
	wg conc.WaitGroup

	mu      sync.Mutex
	started []string
	failErr error
}

// NewThreads returns an idle spawner.
func NewThreads() *Threads {
	return &Threads{}
}

// CreateThread starts entry on a new goroutine, or returns the injected
// failure without starting anything.
func (t *Threads) CreateThread(name string, entry func()) error {
	t.mu.Lock()
	if err := t.failErr; err != nil {
		t.failErr = nil
		t.mu.Unlock()
		return err
	}
	t.started = append(t.started, name)
	t.mu.Unlock()

	t.wg.Go(entry)
	return nil
}

// FailNext makes the next CreateThread return err.
func (t *Threads) FailNext(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failErr = err
}

// Started returns the names of every thread started so far.
func (t *Threads) Started() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.started...)
}

// Wait blocks until every started thread has returned. A panic in any
// thread is re-raised here.
func (t *Threads) Wait() {
	t.wg.Wait()
}

var _ kernel.ThreadSpawner = (*Threads)(nil)
