package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeVehicleAdmitted   = "intersection.admitted"
	TypeVehicleWaiting    = "intersection.waiting"
	TypeVehicleExited     = "intersection.exited"
	TypeProcessRegistered = "proc.registered"
	TypeProcessExited     = "proc.exited"
	TypeProcessReaped     = "proc.reaped"
	TypeProcessOrphaned   = "proc.orphaned"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Intersection Events
// -----------------------------------------------------------------------------

// VehicleAdmittedEvent is emitted when a vehicle enters the intersection.
type VehicleAdmittedEvent struct {
	baseEvent
	Origin      string
	Destination string
	Active      int  // size of the active set after admission
	InFlight    int  // in-flight count of the origin after admission
	Throttled   bool // the admission closed the origin's throttle
	Waited      bool // the vehicle was refused at least once before entering
}

// NewVehicleAdmittedEvent creates a VehicleAdmittedEvent.
func NewVehicleAdmittedEvent(origin, destination string, active, inFlight int, throttled bool) VehicleAdmittedEvent {
	return VehicleAdmittedEvent{
		baseEvent:   newBaseEvent(TypeVehicleAdmitted),
		Origin:      origin,
		Destination: destination,
		Active:      active,
		InFlight:    inFlight,
		Throttled:   throttled,
	}
}

// VehicleWaitingEvent is emitted the first time a vehicle is refused entry.
type VehicleWaitingEvent struct {
	baseEvent
	Origin      string
	Destination string
	Reason      string // "conflict" or "throttled"
}

// NewVehicleWaitingEvent creates a VehicleWaitingEvent.
func NewVehicleWaitingEvent(origin, destination, reason string) VehicleWaitingEvent {
	return VehicleWaitingEvent{
		baseEvent:   newBaseEvent(TypeVehicleWaiting),
		Origin:      origin,
		Destination: destination,
		Reason:      reason,
	}
}

// VehicleExitedEvent is emitted when a vehicle leaves the intersection.
type VehicleExitedEvent struct {
	baseEvent
	Origin      string
	Destination string
	Active      int
	InFlight    int
	Reopened    bool // the origin's throttle is open after the exit
}

// NewVehicleExitedEvent creates a VehicleExitedEvent.
func NewVehicleExitedEvent(origin, destination string, active, inFlight int, reopened bool) VehicleExitedEvent {
	return VehicleExitedEvent{
		baseEvent:   newBaseEvent(TypeVehicleExited),
		Origin:      origin,
		Destination: destination,
		Active:      active,
		InFlight:    inFlight,
		Reopened:    reopened,
	}
}

// -----------------------------------------------------------------------------
// Process Events
// -----------------------------------------------------------------------------

// ProcessRegisteredEvent is emitted when a process node is created.
type ProcessRegisteredEvent struct {
	baseEvent
	PID    int
	Parent int
}

// NewProcessRegisteredEvent creates a ProcessRegisteredEvent.
func NewProcessRegisteredEvent(pid, parent int) ProcessRegisteredEvent {
	return ProcessRegisteredEvent{
		baseEvent: newBaseEvent(TypeProcessRegistered),
		PID:       pid,
		Parent:    parent,
	}
}

// ProcessExitedEvent is emitted when a process exits. Status is the node's
// state after the exit: "zombie" or "reaped".
type ProcessExitedEvent struct {
	baseEvent
	PID      int
	ExitCode int
	Status   string
}

// NewProcessExitedEvent creates a ProcessExitedEvent.
func NewProcessExitedEvent(pid, exitCode int, status string) ProcessExitedEvent {
	return ProcessExitedEvent{
		baseEvent: newBaseEvent(TypeProcessExited),
		PID:       pid,
		ExitCode:  exitCode,
		Status:    status,
	}
}

// Reap causes.
const (
	ReapedBySelf       = "self"        // parentless process exited
	ReapedByWait       = "wait"        // parent collected the status
	ReapedByParentExit = "parent-exit" // zombie discarded when its parent exited
	ReapedByAbandon    = "abandon"     // fork rolled back
)

// ProcessReapedEvent is emitted when a node reaches REAPED and its pid is
// recycled.
type ProcessReapedEvent struct {
	baseEvent
	PID int
	By  string
}

// NewProcessReapedEvent creates a ProcessReapedEvent.
func NewProcessReapedEvent(pid int, by string) ProcessReapedEvent {
	return ProcessReapedEvent{
		baseEvent: newBaseEvent(TypeProcessReaped),
		PID:       pid,
		By:        by,
	}
}

// ProcessOrphanedEvent is emitted when a running child loses its parent.
type ProcessOrphanedEvent struct {
	baseEvent
	PID          int
	FormerParent int
}

// NewProcessOrphanedEvent creates a ProcessOrphanedEvent.
func NewProcessOrphanedEvent(pid, formerParent int) ProcessOrphanedEvent {
	return ProcessOrphanedEvent{
		baseEvent:    newBaseEvent(TypeProcessOrphaned),
		PID:          pid,
		FormerParent: formerParent,
	}
}
