package swarm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegisai/aegis/pkg/config"
	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/slot"
	"github.com/aegisai/aegis/pkg/types"
)

const (
	// slotEventBuffer absorbs bursts from slots so emitters rarely block.
	slotEventBuffer = 256

	// resultBuffer bounds the queue of terminal results awaiting the
	// orchestrator.
	resultBuffer = 128

	// logRingSize bounds each agent's retained log lines.
	logRingSize = 100
)

// TaskResult is the swarm's terminal report for one assignment,
// consumed by the mission orchestrator.
type TaskResult struct {
	MissionID  string
	TaskID     string
	AgentID    string
	Completed  bool
	Terminated bool
	Error      string
	DurationMs int64
}

// agentRecord is the swarm's live entry for one agent
type agentRecord struct {
	agent   types.Agent
	logRing []string
}

// Swarm owns the fixed pool of worker slots and the table of live
// agents. It translates slot events into agent and task events on the
// bus and hands terminal results to the orchestrator.
type Swarm struct {
	slots      []*slot.Slot
	slotEvents chan slot.Event

	mu     sync.Mutex
	agents map[string]*agentRecord

	bus     *events.Bus
	results chan TaskResult

	healthEvery time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	doneCh      chan struct{}
	logger      zerolog.Logger
}

// New builds a swarm of cfg.MaxWorkers slots sharing one executor.
func New(cfg config.SwarmConfig, executor slot.Executor, bus *events.Bus) *Swarm {
	s := &Swarm{
		slotEvents:  make(chan slot.Event, slotEventBuffer),
		agents:      make(map[string]*agentRecord),
		bus:         bus,
		results:     make(chan TaskResult, resultBuffer),
		healthEvery: cfg.HealthCheckInterval(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      log.WithComponent("swarm"),
	}

	s.slots = make([]*slot.Slot, cfg.MaxWorkers)
	for i := range s.slots {
		s.slots[i] = slot.New(fmt.Sprintf("slot-%d", i), i, executor, cfg.TaskTimeout(), s.slotEvents)
	}
	return s
}

// Start begins the event translation loop and the health sweep. An
// initial sweep seeds the slot gauges so they are scrapeable from boot.
func (s *Swarm) Start() {
	s.sweep()
	go s.run()
	go s.healthLoop()
}

// Stop terminates every active agent and ends the loops.
func (s *Swarm) Stop() {
	s.TerminateAll("swarm shutting down")
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// Results returns the channel of terminal task results.
func (s *Swarm) Results() <-chan TaskResult {
	return s.results
}

// TotalSlots returns the pool size.
func (s *Swarm) TotalSlots() int {
	return len(s.slots)
}

// AvailableSlots counts slots currently accepting assignments.
func (s *Swarm) AvailableSlots() int {
	n := 0
	for _, sl := range s.slots {
		if sl.Status() == types.SlotStatusAvailable {
			n++
		}
	}
	return n
}

// CountActive counts agents that still occupy a slot.
func (s *Swarm) CountActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.agents {
		if rec.agent.Status.Active() {
			n++
		}
	}
	return n
}

// SpawnAgent assigns a task to the lowest-indexed available slot and
// creates the agent bound to it. It returns a NoSlot error, without
// side effects, when every slot is occupied. The find-and-assign
// composite is atomic with respect to concurrent spawns.
func (s *Swarm) SpawnAgent(task *types.Task, missionID, workspacePath string) (*types.Agent, error) {
	s.mu.Lock()

	var chosen *slot.Slot
	for _, sl := range s.slots {
		if sl.Status() == types.SlotStatusAvailable {
			chosen = sl
			break
		}
	}
	if chosen == nil {
		s.mu.Unlock()
		return nil, types.E(types.KindNoSlot, "no available slot for task %s", task.ID)
	}

	now := time.Now()
	agent := types.Agent{
		ID:        uuid.New().String(),
		SlotIndex: chosen.Index,
		MissionID: missionID,
		Task:      task,
		Status:    types.AgentStatusInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := chosen.Assign(agent.ID, missionID, task, workspacePath); err != nil {
		// Slots only become Busy through Assign under s.mu, so this
		// should not happen; treat it like saturation.
		s.mu.Unlock()
		return nil, types.Wrap(types.KindNoSlot, err, "slot %d rejected assignment", chosen.Index)
	}

	s.agents[agent.ID] = &agentRecord{agent: agent}
	metrics.AgentsActive.Set(float64(s.countActiveLocked()))

	// Published before the mutex is released: the translate loop takes
	// s.mu before it can publish anything for the new assignment, so
	// agent:spawned is always the agent's first event on the bus.
	s.bus.Publish(events.New(events.AgentSpawned, missionID, events.AgentSpawnedPayload{
		AgentID:   agent.ID,
		SlotIndex: chosen.Index,
		TaskID:    task.ID,
		TaskTitle: task.Title,
	}))
	s.mu.Unlock()

	cp := agent
	return &cp, nil
}

func (s *Swarm) countActiveLocked() int {
	n := 0
	for _, rec := range s.agents {
		if rec.agent.Status.Active() {
			n++
		}
	}
	return n
}

// GetAgent returns a snapshot of one agent.
func (s *Swarm) GetAgent(agentID string) (*types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[agentID]
	if !ok {
		return nil, types.E(types.KindNotFound, "agent %s not found", agentID)
	}
	cp := s.snapshotLocked(rec)
	return &cp, nil
}

// ListAgents returns snapshots of agents, filtered by mission when
// missionID is non-empty.
func (s *Swarm) ListAgents(missionID string) []*types.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Agent, 0, len(s.agents))
	for _, rec := range s.agents {
		if missionID != "" && rec.agent.MissionID != missionID {
			continue
		}
		cp := s.snapshotLocked(rec)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Swarm) snapshotLocked(rec *agentRecord) types.Agent {
	cp := rec.agent
	cp.Logs = append([]string(nil), rec.logRing...)
	return cp
}

// View assembles the swarm report for the control API.
func (s *Swarm) View() types.SwarmView {
	view := types.SwarmView{
		TotalSlots:   len(s.slots),
		ActiveAgents: s.CountActive(),
		Slots:        make([]types.SlotView, 0, len(s.slots)),
	}
	for _, sl := range s.slots {
		sv := sl.Snapshot()
		if sv.Status == types.SlotStatusAvailable {
			view.AvailableSlots++
		}
		view.Slots = append(view.Slots, sv)
	}
	return view
}

// TerminateAgent forcibly ends one agent's assignment. The slot stamps
// the forced terminal, which is translated to agent:terminated rather
// than agent:task_failed. The slot ignores the call if it has already
// moved on to another agent.
func (s *Swarm) TerminateAgent(agentID, reason string) error {
	s.mu.Lock()
	rec, ok := s.agents[agentID]
	if !ok {
		s.mu.Unlock()
		return types.E(types.KindNotFound, "agent %s not found", agentID)
	}
	if !rec.agent.Status.Active() {
		s.mu.Unlock()
		return nil
	}
	slotIndex := rec.agent.SlotIndex
	s.mu.Unlock()

	s.slots[slotIndex].Terminate(agentID, reason)
	return nil
}

// TerminateMissionAgents terminates every active agent of one mission,
// awaiting each.
func (s *Swarm) TerminateMissionAgents(missionID, reason string) {
	for _, agent := range s.ListAgents(missionID) {
		if agent.Status.Active() {
			_ = s.TerminateAgent(agent.ID, reason)
		}
	}
}

// TerminateAll terminates every active agent.
func (s *Swarm) TerminateAll(reason string) {
	for _, agent := range s.ListAgents("") {
		if agent.Status.Active() {
			_ = s.TerminateAgent(agent.ID, reason)
		}
	}
}
