package swarm

import (
	"time"

	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/slot"
	"github.com/aegisai/aegis/pkg/types"
)

// run drains slot events, updates the agent table, and forwards
// translated events to the bus in the order slots produced them.
func (s *Swarm) run() {
	defer close(s.doneCh)
	for {
		select {
		case ev := <-s.slotEvents:
			s.translate(ev)
		case <-s.stopCh:
			// Drain whatever the slots managed to emit before stop.
			for {
				select {
				case ev := <-s.slotEvents:
					s.translate(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Swarm) translate(ev slot.Event) {
	switch ev.Type {
	case slot.EventTaskStarted:
		s.onStarted(ev)
	case slot.EventTaskProgress:
		s.onProgress(ev)
	case slot.EventLog:
		s.onLog(ev)
	case slot.EventTaskCompleted:
		s.onTerminal(ev, true)
	case slot.EventTaskFailed:
		s.onTerminal(ev, false)
	}
}

// setStatus updates an agent's status and returns the previous one.
// ok is false for unknown agents (already destroyed).
func (s *Swarm) setStatus(agentID string, status types.AgentStatus) (types.AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[agentID]
	if !ok {
		return "", false
	}
	prev := rec.agent.Status
	rec.agent.Status = status
	rec.agent.UpdatedAt = time.Now()
	metrics.AgentsActive.Set(float64(s.countActiveLocked()))
	return prev, true
}

func (s *Swarm) onStarted(ev slot.Event) {
	prev, ok := s.setStatus(ev.AgentID, types.AgentStatusCoding)
	if !ok {
		return
	}

	s.bus.Publish(events.New(events.TaskStarted, ev.MissionID, events.TaskStartedPayload{
		TaskID:    ev.Task.ID,
		AgentID:   ev.AgentID,
		TaskTitle: ev.Task.Title,
	}))
	s.bus.Publish(events.New(events.AgentStatusChanged, ev.MissionID, events.AgentStatusChangedPayload{
		AgentID:        ev.AgentID,
		PreviousStatus: prev,
		NewStatus:      types.AgentStatusCoding,
	}))
	s.bus.Publish(events.New(events.AgentTaskStarted, ev.MissionID, events.AgentTaskPayload{
		AgentID:   ev.AgentID,
		TaskID:    ev.Task.ID,
		TaskTitle: ev.Task.Title,
	}))
}

func (s *Swarm) onProgress(ev slot.Event) {
	s.mu.Lock()
	rec, ok := s.agents[ev.AgentID]
	if ok {
		rec.agent.Progress = ev.Progress
		rec.agent.UpdatedAt = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.bus.Publish(events.New(events.TaskProgress, ev.MissionID, events.TaskProgressPayload{
		TaskID:   ev.Task.ID,
		AgentID:  ev.AgentID,
		Progress: ev.Progress,
	}))
}

func (s *Swarm) onLog(ev slot.Event) {
	s.mu.Lock()
	rec, ok := s.agents[ev.AgentID]
	if ok {
		rec.logRing = append(rec.logRing, ev.Line)
		if len(rec.logRing) > logRingSize {
			rec.logRing = rec.logRing[len(rec.logRing)-logRingSize:]
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.bus.Publish(events.New(events.AgentLog, ev.MissionID, events.AgentLogPayload{
		AgentID: ev.AgentID,
		Line:    ev.Line,
	}))
}

// onTerminal handles a slot's terminal event: translates it to the
// task and agent event pair, destroys the agent record, and hands the
// result to the orchestrator. The task terminal event is published
// before the result is queued, so subscribers observe the task finish
// before the mission is reassessed.
func (s *Swarm) onTerminal(ev slot.Event, completed bool) {
	s.mu.Lock()
	rec, ok := s.agents[ev.AgentID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug().Str("agent_id", ev.AgentID).Msg("terminal event for unknown agent discarded")
		return
	}
	prev := rec.agent.Status
	terminated := ev.Terminated
	if terminated {
		rec.agent.Status = types.AgentStatusTerminated
	} else if completed {
		rec.agent.Status = types.AgentStatusComplete
		rec.agent.Progress = 100
	} else {
		rec.agent.Status = types.AgentStatusError
	}
	newStatus := rec.agent.Status
	rec.agent.UpdatedAt = time.Now()
	// The agent dies with its slot assignment; retries get a new agent.
	delete(s.agents, ev.AgentID)
	metrics.AgentsActive.Set(float64(s.countActiveLocked()))
	s.mu.Unlock()

	if completed {
		s.bus.Publish(events.New(events.TaskCompleted, ev.MissionID, events.TaskCompletedPayload{
			TaskID:     ev.Task.ID,
			AgentID:    ev.AgentID,
			DurationMs: ev.DurationMs,
		}))
	} else {
		s.bus.Publish(events.New(events.TaskFailed, ev.MissionID, events.TaskFailedPayload{
			TaskID:  ev.Task.ID,
			AgentID: ev.AgentID,
			Error:   ev.Error,
		}))
	}

	s.bus.Publish(events.New(events.AgentStatusChanged, ev.MissionID, events.AgentStatusChangedPayload{
		AgentID:        ev.AgentID,
		PreviousStatus: prev,
		NewStatus:      newStatus,
	}))

	switch {
	case terminated:
		s.bus.Publish(events.New(events.AgentTerminated, ev.MissionID, events.AgentTerminatedPayload{
			AgentID: ev.AgentID,
			Reason:  ev.Error,
		}))
	case completed:
		s.bus.Publish(events.New(events.AgentTaskCompleted, ev.MissionID, events.AgentTaskPayload{
			AgentID:    ev.AgentID,
			TaskID:     ev.Task.ID,
			TaskTitle:  ev.Task.Title,
			DurationMs: ev.DurationMs,
		}))
	default:
		s.bus.Publish(events.New(events.AgentTaskFailed, ev.MissionID, events.AgentTaskFailedPayload{
			AgentID: ev.AgentID,
			TaskID:  ev.Task.ID,
			Error:   ev.Error,
		}))
	}

	result := TaskResult{
		MissionID:  ev.MissionID,
		TaskID:     ev.Task.ID,
		AgentID:    ev.AgentID,
		Completed:  completed,
		Terminated: terminated,
		Error:      ev.Error,
		DurationMs: ev.DurationMs,
	}
	select {
	case s.results <- result:
	case <-s.stopCh:
		// Shutdown: nobody is consuming results anymore.
	}
}

// healthLoop periodically checks every slot. Unhealthy slots are logged
// and counted; the assignment is left to the mission's own policy.
func (s *Swarm) healthLoop() {
	ticker := time.NewTicker(s.healthEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Swarm) sweep() {
	counts := map[types.SlotStatus]int{}
	for _, sl := range s.slots {
		status := sl.Status()
		if status == types.SlotStatusBusy && !sl.CheckHealth() {
			status = types.SlotStatusUnhealthy
			snap := sl.Snapshot()
			s.logger.Warn().
				Int("slot", sl.Index).
				Str("agent_id", snap.AgentID).
				Str("task_id", snap.TaskID).
				Msg("slot unhealthy")
		}
		counts[status]++
	}
	for _, status := range []types.SlotStatus{types.SlotStatusAvailable, types.SlotStatusBusy, types.SlotStatusUnhealthy} {
		metrics.SlotsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
