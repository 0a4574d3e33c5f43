// Package api is the client for the field-agent remote API.
//
// Every authenticated call goes through Transport.Do, which:
//  1. renders the body as canonical JSON
//  2. skips the call with an Offline result when there is no connectivity
//  3. captures the timestamp and signs under the endpoint lock
//  4. on 401 refreshes the credential once and retries with the SAME timestamp
//  5. classifies failures into fault kinds
//
// Client methods return fault.Result so callers can distinguish success,
// offline and classified failure without inspecting error strings.
package api
