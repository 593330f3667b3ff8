// Package proctable tracks process nodes, their parent links and exit
// status, and implements the blocking wait/exit state machine.
//
// A node is RUNNING from registration until its process exits. A process
// with a live parent becomes a ZOMBIE on exit and stays one until the
// parent collects its status through [Table.Wait] or exits itself; a
// process without a parent is REAPED as soon as it exits. Only REAPED pids
// go back to the recycle pool.
//
// All mutations happen under a single table lock, and every waiter sleeps
// on one shared condition variable bound to it. Exit broadcasts, so waiters
// must re-validate their child after every wake.
package proctable
