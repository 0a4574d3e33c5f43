// Package session owns everything needed to sign an authenticated request:
// the cached credential and its de-duplicated refresh, the per-endpoint
// signing lock, and the request signature itself.
//
// The signature is
//
//	hex(HMAC-SHA512(secret, METHOD:path:token:hex(sha256(body)):timestamp))
//
// where token is the access token without a "Bearer " prefix and body is the
// canonical JSON request body ("" when there is none).
package session
