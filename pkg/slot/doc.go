/*
Package slot implements the worker slot: one concurrency unit of the
swarm, executing a single task assignment at a time.

A slot is Available, Busy, or Unhealthy. Assign transitions Available to
Busy atomically and runs the configured Executor in its own goroutine.
While Busy the slot emits, in order: one task:started, zero or more
strictly non-decreasing task:progress reports, interleaved log lines, and
exactly one terminal task:completed or task:failed. Nothing is emitted
after the terminal event; a duplicate terminal (executor return racing a
terminate) is discarded, first writer wins.

Two executors exist: SimulatedExecutor drives a phase timeline and writes
an output JSON into the workspace; ContainerExecutor runs the task in a
containerd sandbox, parsing [PROGRESS:<n>] markers from its output.
*/
package slot
