// Package simulation drives the synchronization cores end to end.
//
// TrafficSim sends seeded random vehicles through an intersection
// Controller on a bounded goroutine pool while a Monitor, subscribed to the
// controller's event bus, mirrors the active set and checks every admission
// against the safety rule and the per-origin threshold. It also counts how
// many vehicles from other origins overtook each waiting vehicle.
//
// ScenarioRunner executes YAML scripts of process syscalls (spawn, fork,
// exit, wait, expect, join) against a fresh kernel over in-memory user
// memory and reports the outcome of every step. A set of scenarios covering
// the exit and wait semantics is embedded in the binary.
package simulation
