// Package metrics declares and registers the orchestrator's Prometheus
// collectors. Components update these directly; the /metrics endpoint on
// the control listener serves them via Handler.
package metrics
