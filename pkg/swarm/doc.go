/*
Package swarm manages the fixed pool of worker slots and the registry of
live agents.

SpawnAgent picks the lowest-indexed available slot, binds a fresh agent
to it, and assigns the task; when every slot is occupied it returns a
NoSlot error with no side effects, leaving the retry to the caller's
next scheduling tick. Slot events flow through a single translation
loop that updates the agent table, publishes the corresponding task and
agent events on the bus in slot order, and delivers terminal results to
the orchestrator over the Results channel.

A periodic sweep checks slot health (task overrun, dead sandbox) and
logs offenders; an unhealthy slot keeps its assignment until the mission
itself acts.
*/
package swarm
