// Package intersection implements admission control for a four-way
// intersection.
//
// Vehicles arrive from one of four origins and ask to leave through one of
// the other three. The [Controller] admits a vehicle only when its movement
// is compatible with every vehicle already inside (see [Safe]) and its
// origin has not been throttled. An origin is throttled once it has
// threshold vehicles in flight and reopens when its last vehicle leaves, so
// a busy approach cannot starve the other three.
//
// Each origin has its own condition variable. A refused vehicle sleeps on
// its origin's condition and re-evaluates the admission predicate every
// time it is woken. An exit wakes every other origin (the departed vehicle
// may have been their only conflict) and wakes its own origin when the
// throttle reopens.
//
// # Basic Usage
//
//	ctl := intersection.New(intersection.WithThreshold(4))
//	if err := ctl.BeforeEntry(intersection.North, intersection.South); err != nil {
//	    return err
//	}
//	// ... drive through ...
//	_ = ctl.AfterExit(intersection.North, intersection.South)
package intersection
