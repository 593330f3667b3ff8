// Package event provides a synchronous pub-sub bus that the synchronization
// subsystems use to report state transitions to observers.
//
// The intersection controller and the process table publish events while
// holding their own locks, so a subscriber sees transitions in exactly the
// order the subsystem applied them. The simulation monitor relies on this to
// check the intersection's safety property from the outside.
//
// # Event Categories
//
// Intersection:
//   - [VehicleAdmittedEvent]: a vehicle entered
//   - [VehicleWaitingEvent]: a vehicle was refused and is blocking
//   - [VehicleExitedEvent]: a vehicle left
//
// Process table:
//   - [ProcessRegisteredEvent], [ProcessExitedEvent]
//   - [ProcessReapedEvent]: the pid went back to the pool
//   - [ProcessOrphanedEvent]: a running child lost its parent
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeVehicleAdmitted, func(e event.Event) {
//	    adm := e.(event.VehicleAdmittedEvent)
//	    log.Printf("%s -> %s admitted", adm.Origin, adm.Destination)
//	})
//
// Handlers run on the publisher's goroutine. They must not block and must
// not call back into the publishing subsystem.
package event
