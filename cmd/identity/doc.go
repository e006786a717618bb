// Package identity tracks the authenticated principal for a Loom client.
//
// It owns the current principal + bearer token pair, notifies dependents on
// change through explicit subscription handles, and exposes the token to the
// transport layer for connection handshakes.
//
// This package is intentionally dependency-light.
package identity
