// Package store provides SQLite-backed durable storage for field events.
//
// The store holds three append-mostly event streams and two small state tables:
//   - tracking_points: accepted background positions
//   - start_stop_events: user start/stop of a working session
//   - contract_checkins: check-ins at contract locations
//   - app_state: key/value flags (tracking active, last upload, ...)
//   - contracts: per-employee contract list snapshot
//
// # Single Writer
//
// Every statement, query and transaction is submitted as a closure to one FIFO
// queue owned by the Store and executed by a single worker goroutine in arrival
// order. A failed closure never stalls the queue. Lock contention is retried
// inside the closure's queue slot with a linear backoff before it is reported
// as a store-fatal error.
//
// # Idempotency
//
//   - Tracking points are unique on (employee, timestamp, latitude, longitude)
//   - Start/stop events are unique on (employee, kind, timestamp)
//   - Contract check-ins are unique per (contract, employee, civil date) unless
//     the contract is the tracking sentinel
//
// Re-inserting an existing identity is a no-op. The uploaded flag only moves
// from 0 to 1, except under Reset.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: short, contention is retried by the queue
//   - foreign_keys=ON
package store
