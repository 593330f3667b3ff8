package intersection

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/testutil"
)

const blockCheck = 30 * time.Millisecond

func TestBeforeEntry_InvalidArgument(t *testing.T) {
	ctl := New()

	tests := []struct {
		name        string
		origin, dst Direction
	}{
		{"u-turn", North, North},
		{"unknown origin", Direction(-1), North},
		{"unknown destination", North, Direction(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ctl.BeforeEntry(tt.origin, tt.dst); !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("BeforeEntry() error = %v, want InvalidArgument", err)
			}
		})
	}

	if s := ctl.Snapshot(); len(s.Active) != 0 || s.Admitted != 0 {
		t.Errorf("invalid requests modified state: %+v", s)
	}
}

func TestBeforeEntry_CompatibleAdmittedImmediately(t *testing.T) {
	ctl := New()

	done := testutil.Go(func() error {
		if err := ctl.BeforeEntry(North, South); err != nil {
			return err
		}
		return ctl.BeforeEntry(South, North)
	})
	if err := testutil.Receive(t, done, testutil.DefaultTimeout, "compatible entries"); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	// W->S shares its destination with N->S and must wait for it.
	blocked := testutil.Go(func() error { return ctl.BeforeEntry(West, South) })
	testutil.Eventually(t, testutil.DefaultTimeout, func() bool {
		return ctl.Snapshot().Waiting() == 1
	}, "west vehicle waiting")

	if err := ctl.AfterExit(North, South); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	if err := testutil.Receive(t, blocked, testutil.DefaultTimeout, "west entry"); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	if s := ctl.Snapshot(); len(s.Active) != 2 {
		t.Fatalf("active = %v, want 2 vehicles", s.Active)
	}
}

func TestBeforeEntry_ConflictBlocksUntilExit(t *testing.T) {
	ctl := New()

	if err := ctl.BeforeEntry(North, South); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	done := testutil.Go(func() error { return ctl.BeforeEntry(East, West) })
	testutil.Eventually(t, testutil.DefaultTimeout, func() bool {
		return ctl.Snapshot().Directions[East].Waiting == 1
	}, "east vehicle waiting")
	testutil.NotWithin(t, done, blockCheck, "conflicting entry")

	if err := ctl.AfterExit(North, South); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	if err := testutil.Receive(t, done, testutil.DefaultTimeout, "east entry"); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	s := ctl.Snapshot()
	if len(s.Active) != 1 || s.Active[0] != (Vehicle{East, West}) {
		t.Errorf("active = %v, want [east->west]", s.Active)
	}
	if s.Directions[East].Waiting != 0 {
		t.Errorf("east waiting = %d, want 0", s.Directions[East].Waiting)
	}
}

func TestBeforeEntry_Throttle(t *testing.T) {
	ctl := New(WithThreshold(2))

	for range 2 {
		if err := ctl.BeforeEntry(North, South); err != nil {
			t.Fatalf("BeforeEntry() error = %v", err)
		}
	}
	s := ctl.Snapshot()
	if s.Directions[North].Enabled {
		t.Fatal("north should be throttled at the threshold")
	}

	third := testutil.Go(func() error { return ctl.BeforeEntry(North, South) })
	testutil.NotWithin(t, third, blockCheck, "throttled entry")

	// One exit leaves the count above zero with the flag cleared, so north
	// stays closed.
	if err := ctl.AfterExit(North, South); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	testutil.NotWithin(t, third, blockCheck, "throttled entry after one exit")

	if err := ctl.AfterExit(North, South); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	if err := testutil.Receive(t, third, testutil.DefaultTimeout, "reopened entry"); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	s = ctl.Snapshot()
	if s.Directions[North].InFlight != 1 || !s.Directions[North].Enabled {
		t.Errorf("north state = %+v, want one in flight and enabled", s.Directions[North])
	}
}

func TestBeforeEntry_ThrottledOriginLetsOthersIn(t *testing.T) {
	ctl := New(WithThreshold(1))

	if err := ctl.BeforeEntry(North, South); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}
	// South->North is compatible with North->South and south is not throttled.
	done := testutil.Go(func() error { return ctl.BeforeEntry(South, North) })
	if err := testutil.Receive(t, done, testutil.DefaultTimeout, "south entry"); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}
}

func TestAfterExit_NotInIntersection(t *testing.T) {
	ctl := New()

	if err := ctl.BeforeEntry(North, South); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}
	before := ctl.Snapshot()

	err := ctl.AfterExit(South, North)
	if !errors.Is(err, errors.ErrNotInIntersection) {
		t.Fatalf("AfterExit() error = %v, want ErrNotInIntersection", err)
	}
	if errors.Errno(err) != errors.EINVAL {
		t.Errorf("Errno = %v, want EINVAL", errors.Errno(err))
	}

	after := ctl.Snapshot()
	if len(after.Active) != len(before.Active) || after.Exited != before.Exited ||
		after.Directions[South] != before.Directions[South] {
		t.Errorf("state changed: before %+v, after %+v", before, after)
	}

	if err := ctl.AfterExit(North, North); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("AfterExit(u-turn) error = %v, want InvalidArgument", err)
	}
}

func TestAfterExit_RemovesOneOfDuplicates(t *testing.T) {
	ctl := New()
	for range 3 {
		if err := ctl.BeforeEntry(West, East); err != nil {
			t.Fatalf("BeforeEntry() error = %v", err)
		}
	}
	if err := ctl.AfterExit(West, East); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}

	s := ctl.Snapshot()
	if len(s.Active) != 2 || s.Directions[West].InFlight != 2 {
		t.Errorf("after one exit: active = %d, in flight = %d, want 2 and 2",
			len(s.Active), s.Directions[West].InFlight)
	}
	if s.Admitted != 3 || s.Exited != 1 {
		t.Errorf("totals = %d/%d, want 3/1", s.Admitted, s.Exited)
	}
}

func TestEvents(t *testing.T) {
	bus := event.NewBus()
	var types []string
	bus.SubscribeAll(func(e event.Event) { types = append(types, e.EventType()) })

	ctl := New(WithEventBus(bus), WithThreshold(1))
	if err := ctl.BeforeEntry(North, South); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}
	if err := ctl.AfterExit(North, South); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}

	want := []string{event.TypeVehicleAdmitted, event.TypeVehicleExited}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestWaitingEventPublishedOnce(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	var waits []event.VehicleWaitingEvent
	var admits []event.VehicleAdmittedEvent
	bus.Subscribe(event.TypeVehicleWaiting, func(e event.Event) {
		mu.Lock()
		waits = append(waits, e.(event.VehicleWaitingEvent))
		mu.Unlock()
	})
	bus.Subscribe(event.TypeVehicleAdmitted, func(e event.Event) {
		mu.Lock()
		admits = append(admits, e.(event.VehicleAdmittedEvent))
		mu.Unlock()
	})

	ctl := New(WithEventBus(bus))
	if err := ctl.BeforeEntry(North, South); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}
	if err := ctl.BeforeEntry(South, North); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	// West->East conflicts with both; each exit wakes it once more.
	done := testutil.Go(func() error { return ctl.BeforeEntry(West, East) })
	testutil.Eventually(t, testutil.DefaultTimeout, func() bool {
		return ctl.Snapshot().Waiting() == 1
	}, "west vehicle waiting")

	if err := ctl.AfterExit(North, South); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	testutil.NotWithin(t, done, blockCheck, "entry behind south->north")
	if err := ctl.AfterExit(South, North); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	if err := testutil.Receive(t, done, testutil.DefaultTimeout, "west entry"); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(waits) != 1 {
		t.Fatalf("got %d waiting events, want 1", len(waits))
	}
	if waits[0].Reason != ReasonConflict || waits[0].Origin != "west" {
		t.Errorf("waiting event = %+v", waits[0])
	}
	if len(admits) != 3 || admits[0].Waited || admits[1].Waited || !admits[2].Waited {
		t.Errorf("admitted events = %+v, want only the west vehicle marked as waited", admits)
	}
}

func TestClose(t *testing.T) {
	ctl := New()
	if err := ctl.BeforeEntry(East, North); err != nil {
		t.Fatalf("BeforeEntry() error = %v", err)
	}

	if err := ctl.Close(); !errors.Is(err, errors.ErrIntersectionBusy) {
		t.Fatalf("Close() with active vehicle error = %v, want ErrIntersectionBusy", err)
	}

	if err := ctl.AfterExit(East, North); err != nil {
		t.Fatalf("AfterExit() error = %v", err)
	}
	if err := ctl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ctl.BeforeEntry(East, North); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("BeforeEntry() after Close error = %v, want InvalidArgument", err)
	}
}

// TestRandomTraffic drives random vehicles through the controller and checks
// from the event stream that the active set is always pairwise safe and no
// origin exceeds the threshold.
func TestRandomTraffic(t *testing.T) {
	const (
		threshold = 3
		vehicles  = 400
		workers   = 16
	)

	bus := event.NewBus()
	var (
		mirror     []Vehicle
		violations []string
		overLimit  int
	)
	bus.Subscribe(event.TypeVehicleAdmitted, func(e event.Event) {
		adm := e.(event.VehicleAdmittedEvent)
		v := mustVehicle(t, adm.Origin, adm.Destination)
		for _, other := range mirror {
			if !Safe(v, other) {
				violations = append(violations, v.String()+" with "+other.String())
			}
		}
		mirror = append(mirror, v)
		if adm.InFlight > threshold {
			overLimit++
		}
	})
	bus.Subscribe(event.TypeVehicleExited, func(e event.Event) {
		ex := e.(event.VehicleExitedEvent)
		v := mustVehicle(t, ex.Origin, ex.Destination)
		for i, other := range mirror {
			if other == v {
				mirror = append(mirror[:i], mirror[i+1:]...)
				break
			}
		}
	})

	ctl := New(WithThreshold(threshold), WithEventBus(bus))
	all := allVehicles()

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, 7))
			for range vehicles / workers {
				v := all[rng.IntN(len(all))]
				if err := ctl.BeforeEntry(v.Origin, v.Destination); err != nil {
					t.Errorf("BeforeEntry(%v) error = %v", v, err)
					return
				}
				time.Sleep(time.Duration(rng.IntN(200)) * time.Microsecond)
				if err := ctl.AfterExit(v.Origin, v.Destination); err != nil {
					t.Errorf("AfterExit(%v) error = %v", v, err)
					return
				}
			}
		}(uint64(w))
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(20 * time.Second):
		t.Fatalf("traffic did not complete; snapshot %+v", ctl.Snapshot())
	}

	if len(violations) > 0 {
		t.Errorf("%d unsafe admissions, first: %s", len(violations), violations[0])
	}
	if overLimit > 0 {
		t.Errorf("%d admissions exceeded the threshold", overLimit)
	}
	s := ctl.Snapshot()
	if s.Admitted != vehicles || s.Exited != vehicles || len(s.Active) != 0 {
		t.Errorf("final snapshot = %+v", s)
	}
	for _, d := range s.Directions {
		if !d.Enabled || d.InFlight != 0 {
			t.Errorf("direction %v left in state %+v", d.Direction, d)
		}
	}
}

func mustVehicle(t *testing.T, origin, destination string) Vehicle {
	o, err := ParseDirection(origin)
	if err != nil {
		t.Errorf("bad origin in event: %v", err)
	}
	d, err := ParseDirection(destination)
	if err != nil {
		t.Errorf("bad destination in event: %v", err)
	}
	return Vehicle{o, d}
}
