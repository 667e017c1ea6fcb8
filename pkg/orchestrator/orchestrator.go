package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisai/aegis/pkg/config"
	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/slot"
	"github.com/aegisai/aegis/pkg/swarm"
	"github.com/aegisai/aegis/pkg/types"
	"github.com/aegisai/aegis/pkg/workspace"
)

// Orchestrator is the decision layer: it admits mission briefs, builds
// their task DAGs, and drives one scheduling loop per mission against
// the shared swarm.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	wsCfg    config.WorkspaceConfig
	store    *workspace.Store
	pool     *swarm.Swarm
	bus      *events.Bus
	estimate func(types.TaskType) time.Duration

	mu       sync.RWMutex
	missions map[string]*mission

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// New wires the orchestrator to its collaborators.
func New(cfg config.OrchestratorConfig, wsCfg config.WorkspaceConfig, store *workspace.Store, pool *swarm.Swarm, bus *events.Bus) *Orchestrator {
	estimator := slot.NewSimulatedExecutor()
	return &Orchestrator{
		cfg:      cfg,
		wsCfg:    wsCfg,
		store:    store,
		pool:     pool,
		bus:      bus,
		estimate: estimator.Duration,
		missions: make(map[string]*mission),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins consuming terminal task results from the swarm.
func (o *Orchestrator) Start() {
	go o.resultLoop()
}

// Stop halts every mission loop and the result consumer. Missions are
// left in their current state; in-memory state dies with the process.
func (o *Orchestrator) Stop() {
	o.mu.RLock()
	for _, m := range o.missions {
		m.stopLoop()
	}
	o.mu.RUnlock()

	o.stopOnce.Do(func() { close(o.stopCh) })
	<-o.doneCh
}

// ActiveMissions counts missions not yet in a terminal state.
func (o *Orchestrator) ActiveMissions() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, m := range o.missions {
		m.mu.Lock()
		if !m.status.Terminal() {
			n++
		}
		m.mu.Unlock()
	}
	return n
}

// InitializeMission validates and decomposes a brief. Unless dryRun,
// it creates the workspace and schedules execution to begin after the
// response is returned.
func (o *Orchestrator) InitializeMission(brief types.MissionBrief, dryRun bool) (*types.SubmitMissionResponse, error) {
	if err := validateBrief(&brief); err != nil {
		return nil, err
	}
	if brief.Priority == "" {
		brief.Priority = types.PriorityMedium
	}

	missionID := uuid.New().String()
	tasks := decompose(missionID, &brief)
	resp := &types.SubmitMissionResponse{
		MissionID:           missionID,
		Channel:             "mission:" + missionID,
		EstimatedDurationMs: estimateDuration(tasks, o.estimate).Milliseconds(),
		TotalTasks:          len(tasks),
	}

	if dryRun {
		return resp, nil
	}

	if max := o.cfg.MaxActiveMissions; max > 0 && o.ActiveMissions() >= max {
		return nil, types.E(types.KindCapacityExceeded, "orchestrator is saturated: %d active missions", max)
	}

	wsPath, err := o.store.Create(missionID)
	if err != nil {
		return nil, err
	}

	m := newMission(missionID, resp.Channel, brief, tasks, wsPath)

	o.mu.Lock()
	o.missions[missionID] = m
	o.mu.Unlock()
	metrics.MissionsSubmitted.Inc()
	o.updateMissionGauges()

	o.bus.Publish(events.New(events.MissionInitialized, missionID, events.MissionInitializedPayload{
		Title:      brief.Title,
		TotalTasks: len(tasks),
		Channel:    resp.Channel,
	}))

	m.logger.Info().Str("title", brief.Title).Int("tasks", len(tasks)).Msg("mission initialized")

	go o.runMission(m)
	return resp, nil
}

// GetMission returns the full mission state including its agents.
func (o *Orchestrator) GetMission(missionID string) (*types.MissionView, error) {
	o.mu.RLock()
	m, ok := o.missions[missionID]
	o.mu.RUnlock()
	if !ok {
		return nil, types.E(types.KindNotFound, "mission %s not found", missionID)
	}

	view := m.view()
	view.Agents = o.pool.ListAgents(missionID)
	return &view, nil
}

// ListMissions returns summaries of all known missions with aggregate
// counters by status.
func (o *Orchestrator) ListMissions() types.ListMissionsResponse {
	o.mu.RLock()
	missions := make([]*mission, 0, len(o.missions))
	for _, m := range o.missions {
		missions = append(missions, m)
	}
	o.mu.RUnlock()

	resp := types.ListMissionsResponse{
		Missions: make([]types.MissionSummary, 0, len(missions)),
		Counters: make(map[types.MissionStatus]int),
	}
	for _, m := range missions {
		s := m.summary()
		resp.Missions = append(resp.Missions, s)
		resp.Counters[s.Status]++
	}
	return resp
}

// CancelMission stops a mission: the loop ends, every agent of the
// mission is terminated and awaited, the workspace is removed (unless
// configured to defer to TTL), and mission:cancelled goes out before
// the mission's subscriber group is cleaned up. A second cancel is a
// no-op reporting the mission as already cancelled.
func (o *Orchestrator) CancelMission(missionID, reason string) (*types.CancelMissionResponse, error) {
	o.mu.RLock()
	m, ok := o.missions[missionID]
	o.mu.RUnlock()
	if !ok {
		return nil, types.E(types.KindNotFound, "mission %s not found", missionID)
	}

	if reason == "" {
		reason = "cancelled by request"
	}

	m.mu.Lock()
	switch {
	case m.status == types.MissionStatusCancelled:
		m.mu.Unlock()
		view := m.view()
		return &types.CancelMissionResponse{Success: true, Note: "already cancelled", Mission: &view}, nil
	case m.status.Terminal():
		status := m.status
		m.mu.Unlock()
		return nil, types.E(types.KindNotCancellable, "mission %s is %s", missionID, status)
	}
	m.status = types.MissionStatusCancelled
	m.reason = reason
	m.endTime = time.Now()
	m.mu.Unlock()

	m.stopLoop()
	o.pool.TerminateMissionAgents(missionID, reason)

	if o.wsCfg.ShouldDeleteOnCancel() {
		if err := o.store.Delete(missionID); err != nil && !types.IsKind(err, types.KindWorkspaceMissing) {
			m.logger.Warn().Err(err).Msg("failed to delete workspace on cancel")
		}
	}

	o.bus.Publish(events.New(events.MissionCancelled, missionID, events.MissionFailedPayload{Reason: reason}))
	o.bus.CleanupMission(missionID)
	o.updateMissionGauges()

	m.logger.Info().Str("reason", reason).Msg("mission cancelled")

	view := m.view()
	return &types.CancelMissionResponse{Success: true, Mission: &view}, nil
}

func (o *Orchestrator) updateMissionGauges() {
	o.mu.RLock()
	counts := make(map[types.MissionStatus]int)
	taskCounts := make(map[types.TaskStatus]int)
	for _, m := range o.missions {
		m.mu.Lock()
		counts[m.status]++
		c := m.countersLocked()
		m.mu.Unlock()
		taskCounts[types.TaskStatusPending] += c.Pending
		taskCounts[types.TaskStatusInProgress] += c.InProgress
		taskCounts[types.TaskStatusCompleted] += c.Completed
		taskCounts[types.TaskStatusFailed] += c.Failed
	}
	o.mu.RUnlock()

	for _, status := range []types.MissionStatus{
		types.MissionStatusInitializing, types.MissionStatusInProgress, types.MissionStatusTesting,
		types.MissionStatusCompleted, types.MissionStatusFailed, types.MissionStatusCancelled,
	} {
		metrics.MissionsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	for _, state := range []types.TaskStatus{
		types.TaskStatusPending, types.TaskStatusInProgress, types.TaskStatusCompleted, types.TaskStatusFailed,
	} {
		metrics.TasksTotal.WithLabelValues(string(state)).Set(float64(taskCounts[state]))
	}
}
