// Package syncer pushes pending local rows to the remote API.
//
// An Engine runs cycles on a ticker and on demand. Each cycle drains the
// three streams (tracking points, start/stop events, contract check-ins)
// one after another through the shared Uploader, so remote load stays
// bounded by one batch at a time. Only rows whose own upload returned
// success are marked uploaded.
//
// Ordering is per stream and eventual: older rows are attempted first in a
// cycle, but a failing row may be passed by a younger one that succeeds.
package syncer
