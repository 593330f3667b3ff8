package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	var n atomic.Int32
	go func() {
		for range 5 {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}
	}()

	Eventually(t, DefaultTimeout, func() bool { return n.Load() == 5 }, "counter reaches 5")
}

func TestGoReceive(t *testing.T) {
	ch := Go(func() int { return 42 })
	if got := Receive(t, ch, DefaultTimeout, "result"); got != 42 {
		t.Errorf("Receive() = %d, want 42", got)
	}
}

func TestNotWithin(t *testing.T) {
	release := make(chan struct{})
	ch := Go(func() bool {
		<-release
		return true
	})

	NotWithin(t, ch, 20*time.Millisecond, "blocked goroutine")
	close(release)
	Receive(t, ch, DefaultTimeout, "released goroutine")
}
