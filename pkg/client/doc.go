// Package client wraps the control-plane HTTP API for CLI usage.
// Server-side classified errors round-trip: a NotFound from the daemon
// is a NotFound from the client.
package client
