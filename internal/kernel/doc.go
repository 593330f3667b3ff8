// Package kernel is the process syscall surface of the teaching kernel:
// fork, _exit, getpid, waitpid and execv, plus Spawn for the first user
// process.
//
// The kernel owns a [proctable.Table] for parent/child bookkeeping and a
// registry of live [Process] values. Address spaces, program loading and
// thread creation are delegated to the [Collaborators] passed to [New];
// package usermem provides in-memory implementations.
//
// Lock order: a Process's own lock may be held while calling into the
// process table, but the registry lock never is.
package kernel
