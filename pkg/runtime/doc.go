// Package runtime wraps containerd for the containerised slot strategy.
// A Sandbox is one task container: workspace bind-mounted at /workspace,
// combined output captured for progress parsing, stopped with a SIGTERM
// grace period and removed with snapshot cleanup.
package runtime
