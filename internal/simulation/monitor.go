package simulation

import (
	"fmt"
	"sync"

	"github.com/Iron-Ham/synchcore/internal/event"
	"github.com/Iron-Ham/synchcore/internal/intersection"
)

// maxViolations caps how many violations a Monitor keeps verbatim.
const maxViolations = 32

// Monitor checks intersection traffic against the admission rules by
// mirroring the active set from bus events. The controller publishes while
// holding its lock, so the mirror sees admissions and exits in lock order.
type Monitor struct {
	threshold int

	mu          sync.Mutex
	active      []intersection.Vehicle
	maxActive   int
	maxInFlight [4]int
	waiters     [4][]int // admissions of other origins seen by each waiter, oldest first
	maxBypass   int
	admitted    int
	exited      int
	waited      int
	waitedBy    [4]int
	violations  []string
	dropped     int

	subs []string
	bus  *event.Bus
}

// NewMonitor returns a monitor that flags any origin holding more than
// threshold vehicles at once.
func NewMonitor(threshold int) *Monitor {
	return &Monitor{threshold: threshold}
}

// Attach subscribes the monitor to the intersection events on bus.
func (m *Monitor) Attach(bus *event.Bus) {
	m.bus = bus
	m.subs = append(m.subs,
		bus.Subscribe(event.TypeVehicleAdmitted, m.onAdmitted),
		bus.Subscribe(event.TypeVehicleWaiting, m.onWaiting),
		bus.Subscribe(event.TypeVehicleExited, m.onExited),
	)
}

// Detach removes the subscriptions made by Attach.
func (m *Monitor) Detach() {
	for _, id := range m.subs {
		m.bus.Unsubscribe(id)
	}
	m.subs = nil
}

func (m *Monitor) violation(format string, args ...any) {
	if len(m.violations) >= maxViolations {
		m.dropped++
		return
	}
	m.violations = append(m.violations, fmt.Sprintf(format, args...))
}

func parseVehicle(origin, destination string) (intersection.Vehicle, error) {
	o, err := intersection.ParseDirection(origin)
	if err != nil {
		return intersection.Vehicle{}, err
	}
	d, err := intersection.ParseDirection(destination)
	if err != nil {
		return intersection.Vehicle{}, err
	}
	return intersection.Vehicle{Origin: o, Destination: d}, nil
}

func (m *Monitor) onAdmitted(e event.Event) {
	ev := e.(event.VehicleAdmittedEvent)
	v, err := parseVehicle(ev.Origin, ev.Destination)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.violation("admitted event with bad vehicle: %v", err)
		return
	}

	for _, other := range m.active {
		if !intersection.Safe(v, other) {
			m.violation("unsafe admission: %s entered alongside %s", v, other)
		}
	}
	m.active = append(m.active, v)
	m.admitted++
	m.maxActive = max(m.maxActive, len(m.active))

	o := int(v.Origin)
	m.maxInFlight[o] = max(m.maxInFlight[o], ev.InFlight)
	if ev.InFlight > m.threshold {
		m.violation("origin %s has %d vehicles in flight, threshold %d", v.Origin, ev.InFlight, m.threshold)
	}

	if ev.Waited {
		m.waited++
		m.waitedBy[o]++
		if len(m.waiters[o]) > 0 {
			m.maxBypass = max(m.maxBypass, m.waiters[o][0])
			m.waiters[o] = m.waiters[o][1:]
		}
	}
	for d := range m.waiters {
		if d == o {
			continue
		}
		for i := range m.waiters[d] {
			m.waiters[d][i]++
		}
	}
}

func (m *Monitor) onWaiting(e event.Event) {
	ev := e.(event.VehicleWaitingEvent)
	o, err := intersection.ParseDirection(ev.Origin)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.violation("waiting event with bad origin: %v", err)
		return
	}
	m.waiters[o] = append(m.waiters[o], 0)
}

func (m *Monitor) onExited(e event.Event) {
	ev := e.(event.VehicleExitedEvent)
	v, err := parseVehicle(ev.Origin, ev.Destination)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.violation("exited event with bad vehicle: %v", err)
		return
	}
	for i, a := range m.active {
		if a == v {
			m.active = append(m.active[:i], m.active[i+1:]...)
			m.exited++
			return
		}
	}
	m.violation("exit of %s which the monitor never saw enter", v)
}

// MonitorReport is what a Monitor observed.
type MonitorReport struct {
	Admitted       int      `json:"admitted"`
	Exited         int      `json:"exited"`
	Waited         int      `json:"waited"`
	WaitedByOrigin [4]int   `json:"waited_by_origin"`
	StillInside    int      `json:"still_inside"`
	MaxActive      int      `json:"max_active"`
	MaxInFlight    [4]int   `json:"max_in_flight"`
	MaxBypass      int      `json:"max_bypass"`
	Violations     []string `json:"violations,omitempty"`
	Dropped        int      `json:"dropped_violations,omitempty"`
}

// OK reports whether no rule was broken.
func (r MonitorReport) OK() bool {
	return len(r.Violations) == 0 && r.Dropped == 0
}

// Report returns what the monitor has observed so far.
func (m *Monitor) Report() MonitorReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MonitorReport{
		Admitted:       m.admitted,
		Exited:         m.exited,
		Waited:         m.waited,
		WaitedByOrigin: m.waitedBy,
		StillInside:    len(m.active),
		MaxActive:      m.maxActive,
		MaxInFlight:    m.maxInFlight,
		MaxBypass:      m.maxBypass,
		Violations:     append([]string(nil), m.violations...),
		Dropped:        m.dropped,
	}
}
