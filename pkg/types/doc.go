// Package types defines the shared data model for the Aegis orchestrator:
// mission briefs, decomposed tasks, agents, worker slots, workspaces, the
// classified error type, and the wire shapes of the control API.
//
// The package is intentionally dependency-free so every component can import
// it without cycles.
package types
