package orchestrator

import (
	"time"

	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/swarm"
	"github.com/aegisai/aegis/pkg/types"
)

// runMission is the per-mission scheduling loop. Each tick it computes
// the ready set, spawns agents up to the swarm's free capacity, and
// checks for completion. The loop ends when the mission reaches a
// terminal state or the orchestrator shuts down.
func (o *Orchestrator) runMission(m *mission) {
	m.mu.Lock()
	prev := m.status
	m.status = types.MissionStatusInProgress
	m.mu.Unlock()

	o.bus.Publish(events.New(events.MissionStarted, m.id, events.MissionProgressPayload{
		Total: len(m.tasks),
	}))
	o.bus.Publish(events.New(events.MissionPhaseChanged, m.id, events.MissionPhaseChangedPayload{
		PreviousPhase: prev,
		NewPhase:      types.MissionStatusInProgress,
	}))
	o.updateMissionGauges()

	ticker := time.NewTicker(o.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if done := o.tick(m); done {
				return
			}
		case <-m.stopCh:
			return
		case <-o.stopCh:
			return
		}
	}
}

// tick runs one scheduling round. It returns true once the mission is
// terminal and the loop should exit.
func (o *Orchestrator) tick(m *mission) bool {
	start := time.Now()
	defer func() {
		metrics.SchedulingTickSeconds.Observe(time.Since(start).Seconds())
	}()

	m.mu.Lock()
	if !m.runningLocked() {
		m.mu.Unlock()
		return true
	}
	ready := m.readySetLocked()
	m.mu.Unlock()

	free := o.pool.AvailableSlots()
	if len(ready) > free {
		ready = ready[:free]
	}

	for _, task := range ready {
		o.dispatch(m, task)
	}

	return o.assess(m)
}

// dispatch moves one task to in_progress and hands it to the swarm. A
// NoSlot rejection reverts the task; it stays ready for the next tick.
func (o *Orchestrator) dispatch(m *mission, task *types.Task) {
	m.mu.Lock()
	if _, stillPending := m.pending[task.ID]; !stillPending {
		m.mu.Unlock()
		return
	}
	m.moveLocked(task.ID, types.TaskStatusInProgress)
	enteringTesting := task.Type == types.TaskTypeTest && !m.testingSeen
	if enteringTesting {
		m.testingSeen = true
	}
	m.mu.Unlock()

	agent, err := o.pool.SpawnAgent(task, m.id, m.workspacePath)
	if err != nil {
		m.mu.Lock()
		m.moveLocked(task.ID, types.TaskStatusPending)
		if enteringTesting {
			m.testingSeen = false
		}
		m.mu.Unlock()
		if !types.IsKind(err, types.KindNoSlot) {
			m.logger.Error().Err(err).Str("task_id", task.ID).Msg("spawn failed")
		}
		return
	}

	m.mu.Lock()
	m.agents[agent.ID] = struct{}{}
	var phaseEvent *events.Event
	if enteringTesting && m.status == types.MissionStatusInProgress {
		m.status = types.MissionStatusTesting
		phaseEvent = events.New(events.MissionPhaseChanged, m.id, events.MissionPhaseChangedPayload{
			PreviousPhase: types.MissionStatusInProgress,
			NewPhase:      types.MissionStatusTesting,
		})
	}
	m.mu.Unlock()

	if phaseEvent != nil {
		o.bus.Publish(phaseEvent)
		o.updateMissionGauges()
	}

	m.logger.Debug().
		Str("task_id", task.ID).
		Str("agent_id", agent.ID).
		Int("slot", agent.SlotIndex).
		Msg("task dispatched")
}

// resultLoop consumes terminal task results from the swarm until the
// orchestrator stops.
func (o *Orchestrator) resultLoop() {
	defer close(o.doneCh)
	for {
		select {
		case result := <-o.pool.Results():
			o.handleResult(result)
		case <-o.stopCh:
			return
		}
	}
}

// handleResult applies one terminal result to its mission. Results for
// unknown missions, missions already terminal, tasks no longer in
// progress, or terminated agents are discarded; a terminal mission has
// already decided every remaining task's fate and must not emit
// further progress after its own terminal event.
func (o *Orchestrator) handleResult(result swarm.TaskResult) {
	o.mu.RLock()
	m, ok := o.missions[result.MissionID]
	o.mu.RUnlock()
	if !ok {
		return
	}

	m.mu.Lock()
	delete(m.agents, result.AgentID)
	if m.status.Terminal() {
		m.mu.Unlock()
		return
	}
	task, known := m.tasks[result.TaskID]
	_, inProgress := m.inProgress[result.TaskID]
	if !known || !inProgress || result.Terminated {
		m.mu.Unlock()
		return
	}

	if result.Completed {
		m.moveLocked(result.TaskID, types.TaskStatusCompleted)
		task.Error = ""
		progressed := m.computeProgressLocked()
		counters := m.countersLocked()
		progress := m.progress
		m.mu.Unlock()

		if progressed {
			o.bus.Publish(events.New(events.MissionProgress, m.id, events.MissionProgressPayload{
				Progress:  progress,
				Completed: counters.Completed,
				Total:     counters.Total,
			}))
		}
		o.assess(m)
		return
	}

	// Failure path: retry while budget remains, then mark failed.
	task.Error = result.Error
	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		retry := task.RetryCount
		m.moveLocked(result.TaskID, types.TaskStatusPending)
		m.mu.Unlock()

		metrics.TaskRetries.Inc()
		m.logger.Warn().
			Str("task_id", result.TaskID).
			Int("attempt", retry).
			Int("max_retries", task.MaxRetries).
			Str("error", result.Error).
			Msg("task failed, requeued")
		return
	}

	m.moveLocked(result.TaskID, types.TaskStatusFailed)
	critical := task.Priority == types.PriorityCritical
	m.mu.Unlock()

	m.logger.Error().
		Str("task_id", result.TaskID).
		Str("error", result.Error).
		Msg("task failed permanently")

	if critical {
		o.failMission(m, "critical task failed: "+result.Error)
		return
	}
	o.assess(m)
}

// assess checks whether the mission has run out of schedulable work and
// finishes it if so. A failed task strands its dependents in pending
// forever, so with nothing in progress and no ready task the DAG cannot
// advance. Returns true when the mission is terminal.
func (o *Orchestrator) assess(m *mission) bool {
	m.mu.Lock()
	if !m.runningLocked() {
		m.mu.Unlock()
		return true
	}
	if len(m.inProgress) > 0 {
		m.mu.Unlock()
		return false
	}
	if len(m.pending) > 0 && len(m.readySetLocked()) > 0 {
		m.mu.Unlock()
		return false
	}
	failed := len(m.failed)
	m.mu.Unlock()

	if failed > 0 {
		o.failMission(m, "mission finished with failed tasks")
	} else {
		o.completeMission(m)
	}
	return true
}

func (o *Orchestrator) completeMission(m *mission) {
	m.mu.Lock()
	if m.status.Terminal() {
		m.mu.Unlock()
		return
	}
	prev := m.status
	m.status = types.MissionStatusCompleted
	m.endTime = time.Now()
	m.progress = 100
	counters := m.countersLocked()
	duration := m.endTime.Sub(m.startTime)
	m.mu.Unlock()

	m.stopLoop()

	o.bus.Publish(events.New(events.MissionPhaseChanged, m.id, events.MissionPhaseChangedPayload{
		PreviousPhase: prev,
		NewPhase:      types.MissionStatusCompleted,
	}))
	o.bus.Publish(events.New(events.MissionCompleted, m.id, events.MissionCompletedPayload{
		DurationMs:     duration.Milliseconds(),
		Workspace:      m.workspacePath,
		CompletedTasks: counters.Completed,
		FailedTasks:    counters.Failed,
	}))
	o.bus.CleanupMission(m.id)
	o.updateMissionGauges()

	m.logger.Info().
		Int64("duration_ms", duration.Milliseconds()).
		Int("tasks", counters.Total).
		Msg("mission completed")
}

// failMission marks the mission failed and emits the terminal events.
// It never terminates agents synchronously: it runs on the result loop,
// and awaiting a slot from there would wedge the swarm's event pipe.
// Leftover agents of a failed mission finish their tasks and their
// results are discarded as no-longer-in-progress.
func (o *Orchestrator) failMission(m *mission, reason string) {
	m.mu.Lock()
	if m.status.Terminal() {
		m.mu.Unlock()
		return
	}
	m.status = types.MissionStatusFailed
	m.reason = reason
	m.endTime = time.Now()
	m.mu.Unlock()

	m.stopLoop()

	o.bus.Publish(events.New(events.MissionFailed, m.id, events.MissionFailedPayload{Reason: reason}))
	o.bus.CleanupMission(m.id)
	o.updateMissionGauges()

	m.logger.Warn().Str("reason", reason).Msg("mission failed")
}
