/*
Package events provides the in-memory fan-out bus for Aegis lifecycle
events.

Subscribers register against a mission id (or the "global" channel) and
receive that mission's agent, task, and mission events over a buffered
channel. A single dispatch goroutine drains the publish queue, which gives
per-mission FIFO delivery to every subscriber without coordination.

Delivery guarantees:

  - per-mission publish order, per subscriber
  - no cross-mission fan-in (mission subscribers never see other missions)
  - at-most-once: a subscriber whose outbound buffer is full is
    disconnected and its channel closed; the publisher never blocks
  - CleanupMission drops a mission group only after every event published
    before the call has been delivered, by riding the same queue

Event payloads form a tagged union: each Type has a corresponding
*Payload struct and consumers dispatch on Event.Type.
*/
package events
