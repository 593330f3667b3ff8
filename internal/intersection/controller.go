package intersection

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Iron-Ham/synchcore/internal/errors"
	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/logging"
)

// DefaultThreshold is the per-origin in-flight limit used when none is given.
const DefaultThreshold = 4

// Wait reasons reported on intersection.waiting events.
const (
	ReasonConflict  = "conflict"
	ReasonThrottled = "throttled"
)

// lane is the admission state of one origin.
type lane struct {
	cond     *sync.Cond
	inFlight int
	enabled  bool
	waiting  int
	admitted uint64
}

// Controller serializes conflicting movements through the intersection.
// All state is guarded by a single mutex; each origin has its own condition
// variable bound to that mutex.
type Controller struct {
	mu        sync.Mutex
	threshold int
	active    []Vehicle
	lanes     [numDirections]lane
	admitted  uint64
	exited    uint64
	closed    bool

	logger *logging.Logger
	bus    *event.Bus
}

// Option configures a Controller.
type Option func(*Controller)

// WithThreshold sets the number of in-flight vehicles after which an origin
// is throttled. Values below 1 are ignored.
func WithThreshold(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.threshold = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEventBus publishes admissions, waits and exits to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(c *Controller) {
		c.bus = bus
	}
}

// New creates a controller with every origin open and the intersection empty.
func New(opts ...Option) *Controller {
	c := &Controller{
		threshold: DefaultThreshold,
		logger:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("intersection")
	for i := range c.lanes {
		c.lanes[i].cond = sync.NewCond(&c.mu)
		c.lanes[i].enabled = true
	}
	return c
}

// Threshold returns the per-origin in-flight limit.
func (c *Controller) Threshold() int {
	return c.threshold
}

// BeforeEntry blocks until the vehicle travelling from origin to destination
// may enter, then records it as active. It returns an InvalidArgument error,
// without blocking, for an unknown direction or a U-turn.
func (c *Controller) BeforeEntry(origin, destination Direction) error {
	v := Vehicle{Origin: origin, Destination: destination}
	if err := v.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: intersection is closed", errors.ErrInvalidArgument)
	}

	l := &c.lanes[origin]
	waited := false
	for {
		conflict := firstConflict(c.active, v)
		if conflict < 0 && l.enabled {
			break
		}
		if !waited {
			waited = true
			l.waiting++
			reason := ReasonThrottled
			if conflict >= 0 {
				reason = ReasonConflict
			}
			c.logger.Debug("vehicle waiting", "vehicle", v.String(), "reason", reason)
			c.bus.Publish(event.NewVehicleWaitingEvent(origin.String(), destination.String(), reason))
		}
		l.cond.Wait()
	}
	if waited {
		l.waiting--
	}

	c.active = append(c.active, v)
	l.inFlight++
	l.admitted++
	c.admitted++
	throttled := false
	if l.inFlight >= c.threshold {
		l.enabled = false
		throttled = true
	}

	c.logger.Debug("vehicle admitted",
		"vehicle", v.String(),
		"active", len(c.active),
		"in_flight", l.inFlight,
		"throttled", throttled)
	e := event.NewVehicleAdmittedEvent(origin.String(), destination.String(),
		len(c.active), l.inFlight, throttled)
	e.Waited = waited
	c.bus.Publish(e)
	return nil
}

// AfterExit removes one active vehicle travelling from origin to destination
// and wakes every origin that may now be admissible. It returns
// ErrNotInIntersection, leaving all state untouched, if no such vehicle is
// active.
func (c *Controller) AfterExit(origin, destination Direction) error {
	v := Vehicle{Origin: origin, Destination: destination}
	if err := v.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := slices.Index(c.active, v)
	if idx < 0 {
		return fmt.Errorf("%w: %s", errors.ErrNotInIntersection, v)
	}
	c.active = slices.Delete(c.active, idx, idx+1)
	c.exited++

	for _, d := range Directions() {
		if d != origin {
			c.lanes[d].cond.Broadcast()
		}
	}

	l := &c.lanes[origin]
	l.inFlight--
	if l.inFlight <= 0 || l.enabled {
		l.enabled = true
		l.cond.Broadcast()
	}

	c.logger.Debug("vehicle exited",
		"vehicle", v.String(),
		"active", len(c.active),
		"in_flight", l.inFlight,
		"enabled", l.enabled)
	c.bus.Publish(event.NewVehicleExitedEvent(origin.String(), destination.String(),
		len(c.active), l.inFlight, l.enabled))
	return nil
}

// DirectionState is the admission state of one origin at a point in time.
type DirectionState struct {
	Direction Direction `json:"direction"`
	InFlight  int       `json:"in_flight"`
	Enabled   bool      `json:"enabled"`
	Waiting   int       `json:"waiting"`
	Admitted  uint64    `json:"admitted"`
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Threshold  int                           `json:"threshold"`
	Active     []Vehicle                     `json:"active"`
	Directions [numDirections]DirectionState `json:"directions"`
	Admitted   uint64                        `json:"admitted"`
	Exited     uint64                        `json:"exited"`
}

// Waiting returns the number of vehicles blocked across all origins.
func (s Snapshot) Waiting() int {
	n := 0
	for _, d := range s.Directions {
		n += d.Waiting
	}
	return n
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Threshold: c.threshold,
		Active:    slices.Clone(c.active),
		Admitted:  c.admitted,
		Exited:    c.exited,
	}
	for i := range c.lanes {
		l := &c.lanes[i]
		s.Directions[i] = DirectionState{
			Direction: Direction(i),
			InFlight:  l.inFlight,
			Enabled:   l.enabled,
			Waiting:   l.waiting,
			Admitted:  l.admitted,
		}
	}
	return s
}

// Close tears the controller down. It fails with ErrIntersectionBusy while
// any vehicle is inside or waiting; afterwards BeforeEntry is refused.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiting := 0
	for i := range c.lanes {
		waiting += c.lanes[i].waiting
	}
	if len(c.active) > 0 || waiting > 0 {
		return fmt.Errorf("%w: %d active, %d waiting", errors.ErrIntersectionBusy, len(c.active), waiting)
	}
	c.closed = true
	c.logger.Debug("intersection closed", "admitted", c.admitted, "exited", c.exited)
	return nil
}
