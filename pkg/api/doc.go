/*
Package api exposes the HTTP control plane: mission submission and
inspection, cancellation, the swarm report, health, Prometheus metrics,
and the Server-Sent Events stream of mission and agent events.

Errors carry a machine-readable kind in the response body; the kind
also selects the HTTP status, so clients can branch without parsing
messages.
*/
package api
