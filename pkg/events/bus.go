package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/metrics"
)

const (
	// GlobalChannel receives every event regardless of mission.
	GlobalChannel = "global"

	// defaultSubscriberBuffer is the per-subscriber outbound buffer.
	// A subscriber whose buffer fills is disconnected, not waited on.
	defaultSubscriberBuffer = 64

	// busBuffer decouples publishers from the dispatch loop.
	busBuffer = 256
)

// Subscription is one subscriber's handle on the bus
type Subscription struct {
	missionID string
	ch        chan *Event
	closeOnce sync.Once
}

// C returns the subscriber's event channel. It is closed when the
// subscriber is disconnected or its mission group is cleaned up.
func (s *Subscription) C() <-chan *Event {
	return s.ch
}

// MissionID returns the channel key this subscription is bound to.
func (s *Subscription) MissionID() string {
	return s.missionID
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Bus fans events out to per-mission subscriber groups plus a global
// group. A single dispatch goroutine preserves publish order per mission;
// delivery to each subscriber is non-blocking with disconnect-on-overflow.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}

	eventCh  chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	bufferSize int
	logger     zerolog.Logger
}

// NewBus creates a bus; Start must be called before publishing.
func NewBus() *Bus {
	return &Bus{
		groups:     make(map[string]map[*Subscription]struct{}),
		eventCh:    make(chan *Event, busBuffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		bufferSize: defaultSubscriberBuffer,
		logger:     log.WithComponent("events"),
	}
}

// Start begins the dispatch loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop ends the dispatch loop and closes every subscriber channel.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	<-b.doneCh

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, group := range b.groups {
		for sub := range group {
			sub.close()
		}
	}
	b.groups = make(map[string]map[*Subscription]struct{})
}

// Subscribe registers a subscriber for one mission's events.
func (b *Bus) Subscribe(missionID string) *Subscription {
	sub := &Subscription{
		missionID: missionID,
		ch:        make(chan *Event, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.groups[missionID]
	if !ok {
		group = make(map[*Subscription]struct{})
		b.groups[missionID] = group
	}
	group[sub] = struct{}{}
	metrics.EventSubscribers.Inc()
	return sub
}

// SubscribeGlobal registers an administrative subscriber for all events.
func (b *Bus) SubscribeGlobal() *Subscription {
	return b.Subscribe(GlobalChannel)
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	b.remove(sub)
	b.mu.Unlock()
}

// remove must be called with b.mu held.
func (b *Bus) remove(sub *Subscription) {
	group, ok := b.groups[sub.missionID]
	if !ok {
		return
	}
	if _, ok := group[sub]; !ok {
		return
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(b.groups, sub.missionID)
	}
	sub.close()
	metrics.EventSubscribers.Dec()
}

// Publish enqueues an event for delivery. It never blocks on subscribers;
// it only blocks if the bus buffer itself is full, which bounds memory.
func (b *Bus) Publish(event *Event) {
	select {
	case b.eventCh <- event:
		metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	case <-b.stopCh:
	}
}

// CleanupMission drops the mission's subscriber group once every event
// published before this call has been delivered. The marker rides the
// same queue as regular events, so ordering is free.
func (b *Bus) CleanupMission(missionID string) {
	select {
	case b.eventCh <- &Event{MissionID: missionID, cleanup: true}:
	case <-b.stopCh:
	}
}

// SubscriberCount returns the number of live subscribers for a channel key.
func (b *Bus) SubscriberCount(missionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[missionID])
}

func (b *Bus) run() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			if event.cleanup {
				b.dropGroup(event.MissionID)
				continue
			}
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) dropGroup(missionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.groups[missionID]
	if !ok {
		return
	}
	for sub := range group {
		sub.close()
		metrics.EventSubscribers.Dec()
	}
	delete(b.groups, missionID)
}

// broadcast delivers to the mission group and the global group. A send
// that would block means the subscriber has fallen behind; it is
// disconnected rather than stalling the producer.
func (b *Bus) broadcast(event *Event) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, 4)
	for sub := range b.groups[event.MissionID] {
		targets = append(targets, sub)
	}
	if event.MissionID != GlobalChannel {
		for sub := range b.groups[GlobalChannel] {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	var slow []*Subscription
	for _, sub := range targets {
		select {
		case sub.ch <- event:
		default:
			slow = append(slow, sub)
		}
	}

	if len(slow) == 0 {
		return
	}
	b.mu.Lock()
	for _, sub := range slow {
		b.logger.Warn().
			Str("mission_id", sub.missionID).
			Msg("subscriber buffer full, disconnecting")
		metrics.EventsDropped.Inc()
		b.remove(sub)
	}
	b.mu.Unlock()
}
