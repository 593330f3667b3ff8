// Package usermem provides in-memory implementations of the kernel's
// collaborators: a sparse, page-backed user address space and its factory,
// a program loader backed by a registry, and a goroutine thread spawner.
//
// The factory and spawner support one-shot failure injection so tests can
// drive the kernel's teardown paths, and the factory counts live address
// spaces so those tests can check nothing leaked.
package usermem
