// Package mockapi is an in-memory implementation of the field-agent remote
// API. It issues HS256 access tokens, verifies request signatures and keeps
// every accepted save so tests and local runs can inspect what was uploaded.
//
// Failure injection hooks (FailNext, RejectNext, ExpireTokens) let tests
// drive the client through its retry, refresh and rejection paths.
package mockapi
