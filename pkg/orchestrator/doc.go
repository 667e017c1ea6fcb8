/*
Package orchestrator turns mission briefs into running missions.

Submission validates the brief (shape, duplicate ids, unknown
dependencies, cycles), decomposes it into the scaffold / implement /
test / review / document DAG, creates the mission workspace, and starts
a dedicated scheduling loop. Each tick the loop collects pending tasks
whose dependencies are complete, orders them by priority weight with
creation order as the tie-break, and claims swarm slots for as many as
fit.

Terminal task results arrive on a single channel from the swarm. A
completed task unblocks its dependents on the next tick; a failed task
is requeued until its retry budget runs out, after which it is marked
failed permanently. A permanently failed critical task fails the whole
mission immediately. The mission completes when no task is in progress
and none can become ready.

Cancellation is cooperative: the loop stops, the mission's agents are
terminated and awaited, the workspace is deleted (or left to the TTL
sweep, per configuration), and mission:cancelled is the channel's final
event before its subscriber group is drained. All mission state is in
memory and dies with the process.
*/
package orchestrator
