// Package testutil provides testing utilities for synchcore tests.
package testutil

import (
	"testing"
	"time"
)

// DefaultTimeout bounds every blocking assertion in the helpers below.
const DefaultTimeout = 2 * time.Second

// Eventually polls cond every few milliseconds until it returns true or the
// timeout elapses, in which case the test fails with msg.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// Go runs fn on a new goroutine and returns a channel that receives its
// result.
func Go[T any](fn func() T) <-chan T {
	ch := make(chan T, 1)
	go func() { ch <- fn() }()
	return ch
}

// Receive waits up to timeout for a value on ch.
func Receive[T any](t testing.TB, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for %s", timeout, what)
		var zero T
		return zero
	}
}

// NotWithin asserts that nothing arrives on ch for d, i.e. the goroutine
// feeding it is still blocked.
func NotWithin[T any](t testing.TB, ch <-chan T, d time.Duration, what string) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("%s should still be blocked, got %v", what, v)
	case <-time.After(d):
	}
}
