package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/types"
)

// mission is the orchestrator's live record of one mission. The mutex
// guards the buckets and status; bucket transitions never span a
// blocking operation.
type mission struct {
	mu sync.Mutex

	id      string
	brief   types.MissionBrief
	channel string

	status types.MissionStatus
	reason string

	tasks map[string]*types.Task
	order []string // creation order, the scheduling tie-break

	pending    map[string]struct{}
	inProgress map[string]struct{}
	completed  map[string]struct{}
	failed     map[string]struct{}

	agents map[string]struct{} // agent ids currently working this mission

	progress  int
	startTime time.Time
	endTime   time.Time

	workspacePath string
	testingSeen   bool

	stopCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

func newMission(id, channel string, brief types.MissionBrief, tasks []*types.Task, workspacePath string) *mission {
	m := &mission{
		id:            id,
		brief:         brief,
		channel:       channel,
		logger:        log.WithMissionID(id).With().Str("component", "orchestrator").Logger(),
		status:        types.MissionStatusInitializing,
		tasks:         make(map[string]*types.Task, len(tasks)),
		order:         make([]string, 0, len(tasks)),
		pending:       make(map[string]struct{}, len(tasks)),
		inProgress:    make(map[string]struct{}),
		completed:     make(map[string]struct{}),
		failed:        make(map[string]struct{}),
		agents:        make(map[string]struct{}),
		workspacePath: workspacePath,
		startTime:     time.Now(),
		stopCh:        make(chan struct{}),
	}
	for _, task := range tasks {
		m.tasks[task.ID] = task
		m.order = append(m.order, task.ID)
		m.pending[task.ID] = struct{}{}
	}
	return m
}

func (m *mission) stopLoop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// running reports whether the scheduling loop should still tick.
// Callers hold m.mu.
func (m *mission) runningLocked() bool {
	switch m.status {
	case types.MissionStatusInitializing, types.MissionStatusInProgress, types.MissionStatusTesting:
		return true
	default:
		return false
	}
}

// readySetLocked returns pending tasks whose dependencies are all
// completed, sorted by priority weight then creation order.
func (m *mission) readySetLocked() []*types.Task {
	var ready []*types.Task
	for _, id := range m.order {
		if _, ok := m.pending[id]; !ok {
			continue
		}
		task := m.tasks[id]
		ok := true
		for _, dep := range task.Dependencies {
			if _, done := m.completed[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, task)
		}
	}

	// Creation order is preserved within a priority class because the
	// scan above walks m.order and the sort is stable.
	stableSortByPriority(ready)
	return ready
}

func stableSortByPriority(tasks []*types.Task) {
	// Insertion sort keeps it stable without pulling in sort.SliceStable
	// closures on the hot path; ready sets are tiny.
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].Priority.Weight() > tasks[j-1].Priority.Weight(); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

// counters summarises the buckets. Callers hold m.mu.
func (m *mission) countersLocked() types.TaskCounters {
	return types.TaskCounters{
		Pending:    len(m.pending),
		InProgress: len(m.inProgress),
		Completed:  len(m.completed),
		Failed:     len(m.failed),
		Total:      len(m.tasks),
	}
}

// computeProgressLocked recomputes progress and reports whether it
// changed. Callers hold m.mu.
func (m *mission) computeProgressLocked() bool {
	total := len(m.tasks)
	if total == 0 {
		return false
	}
	p := 100 * len(m.completed) / total
	if p == m.progress {
		return false
	}
	m.progress = p
	return true
}

// moveLocked shifts a task between buckets, keeping the partition
// invariant: a task is in exactly one bucket at any moment.
func (m *mission) moveLocked(taskID string, to types.TaskStatus) {
	delete(m.pending, taskID)
	delete(m.inProgress, taskID)
	delete(m.completed, taskID)
	delete(m.failed, taskID)

	switch to {
	case types.TaskStatusPending:
		m.pending[taskID] = struct{}{}
	case types.TaskStatusInProgress:
		m.inProgress[taskID] = struct{}{}
	case types.TaskStatusCompleted:
		m.completed[taskID] = struct{}{}
	case types.TaskStatusFailed:
		m.failed[taskID] = struct{}{}
	}
	m.tasks[taskID].Status = to
}

// view snapshots the mission for the control API.
func (m *mission) view() types.MissionView {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := types.MissionView{
		ID:        m.id,
		Brief:     m.brief,
		Status:    m.status,
		Progress:  m.progress,
		Counters:  m.countersLocked(),
		Workspace: m.workspacePath,
		Channel:   m.channel,
		Reason:    m.reason,
	}
	if !m.startTime.IsZero() {
		t := m.startTime
		v.StartTime = &t
	}
	if !m.endTime.IsZero() {
		t := m.endTime
		v.EndTime = &t
	}
	v.Tasks = make([]*types.Task, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.tasks[id]
		v.Tasks = append(v.Tasks, &cp)
	}
	return v
}

func (m *mission) summary() types.MissionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := types.MissionSummary{
		ID:         m.id,
		Title:      m.brief.Title,
		Status:     m.status,
		Progress:   m.progress,
		AgentCount: len(m.agents),
	}
	if !m.startTime.IsZero() {
		t := m.startTime
		s.StartTime = &t
	}
	return s
}
