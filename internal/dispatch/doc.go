// Package dispatch implements the handler registry and message fan-out.
//
// The Registry holds an ordered list of (pattern, handler) entries keyed
// by pattern text. Dispatch matches a routing key against every entry and
// invokes each matching handler with the cast entity. Up to three
// connection read loops dispatch concurrently while callers register and
// deregister handlers; the table is guarded by a single mutex and entries
// are snapshotted before invocation so handlers never run under the lock.
package dispatch
