// Package model defines the records that flow between capture, storage,
// synchronization and the remote API.
//
// All record timestamps are civil (wall-clock) strings in the configured zone
// with second precision, e.g. "2025-03-14T08:30:00". The first ten characters
// are the civil date used for per-day rules and pruning.
package model
