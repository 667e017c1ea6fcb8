package slot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/types"
)

// EventType identifies what a slot is reporting to its owner
type EventType string

const (
	EventTaskStarted   EventType = "task:started"
	EventTaskProgress  EventType = "task:progress"
	EventTaskCompleted EventType = "task:completed"
	EventTaskFailed    EventType = "task:failed"
	EventLog           EventType = "log"
)

// Event is one report from a slot about its current assignment.
// Terminated marks a failure terminal that was forced by Terminate
// rather than produced by the executor; Error then holds the reason.
type Event struct {
	Type       EventType
	SlotIndex  int
	AgentID    string
	MissionID  string
	Task       *types.Task
	Progress   int
	Line       string
	Error      string
	Terminated bool
	DurationMs int64
}

// Executor runs one task to completion inside a slot. report is called
// with progress updates (0..100) and log lines; either argument may be
// zero-valued when not applicable.
type Executor interface {
	Execute(ctx context.Context, task *types.Task, workspacePath string, report func(progress int, line string)) error
}

// HealthProber is implemented by executors that can check the liveness
// of a running assignment beyond wall-clock time.
type HealthProber interface {
	Healthy(taskID string) bool
}

// Slot is a single-assignment executor: one concurrency unit of the
// swarm. Assignment, termination, and terminal-event emission are
// serialised by the slot mutex; exactly one terminal event is emitted
// per assignment, first writer wins.
type Slot struct {
	ID    string
	Index int

	mu           sync.Mutex
	status       types.SlotStatus
	agentID      string
	missionID    string
	task         *types.Task
	startedAt    time.Time
	lastProgress int
	terminalSent bool
	cancel       context.CancelFunc
	done         chan struct{}

	slotMetrics types.SlotMetrics

	executor    Executor
	taskTimeout time.Duration
	events      chan<- Event
	logger      zerolog.Logger
}

// New creates a slot that reports on the given events channel.
func New(id string, index int, executor Executor, taskTimeout time.Duration, events chan<- Event) *Slot {
	return &Slot{
		ID:          id,
		Index:       index,
		status:      types.SlotStatusAvailable,
		executor:    executor,
		taskTimeout: taskTimeout,
		events:      events,
		logger:      log.WithComponent("slot").With().Int("slot", index).Logger(),
	}
}

// Status returns the slot's current status.
func (s *Slot) Status() types.SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns the slot's state for the swarm report.
func (s *Slot) Snapshot() types.SlotView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := types.SlotView{
		Index:    s.Index,
		Status:   s.status,
		AgentID:  s.agentID,
		Progress: s.lastProgress,
		Metrics:  s.slotMetrics,
	}
	if s.task != nil {
		view.TaskID = s.task.ID
		view.TaskTitle = s.task.Title
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		view.StartedAt = &t
	}
	return view
}

// Metrics returns the slot's execution counters.
func (s *Slot) Metrics() types.SlotMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotMetrics
}

// Assign gives the slot a task. It fails with SlotBusy unless the slot
// is Available; the Available -> Busy transition is atomic under the
// slot mutex so the swarm's find-and-assign composite stays consistent.
func (s *Slot) Assign(agentID, missionID string, task *types.Task, workspacePath string) error {
	s.mu.Lock()
	if s.status != types.SlotStatusAvailable {
		s.mu.Unlock()
		return types.E(types.KindSlotBusy, "slot %d is %s", s.Index, s.status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.status = types.SlotStatusBusy
	s.agentID = agentID
	s.missionID = missionID
	s.task = task
	s.startedAt = time.Now()
	s.lastProgress = 0
	s.terminalSent = false
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, agentID, missionID, task, workspacePath, done)
	return nil
}

func (s *Slot) run(ctx context.Context, agentID, missionID string, task *types.Task, workspacePath string, done chan struct{}) {
	defer close(done)

	s.emit(Event{
		Type:      EventTaskStarted,
		SlotIndex: s.Index,
		AgentID:   agentID,
		MissionID: missionID,
		Task:      task,
	})

	err := s.executor.Execute(ctx, task, workspacePath, func(progress int, line string) {
		s.report(agentID, missionID, task, progress, line)
	})

	duration := time.Since(s.started())
	if err != nil {
		s.finish(agentID, missionID, task, duration, err.Error(), false)
	} else {
		s.finish(agentID, missionID, task, duration, "", false)
	}

	s.mu.Lock()
	s.status = types.SlotStatusAvailable
	s.agentID = ""
	s.missionID = ""
	s.task = nil
	s.startedAt = time.Time{}
	s.lastProgress = 0
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Slot) started() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// report forwards progress and log lines, suppressing anything after
// the assignment's terminal event and keeping progress non-decreasing.
func (s *Slot) report(agentID, missionID string, task *types.Task, progress int, line string) {
	s.mu.Lock()
	if s.terminalSent {
		s.mu.Unlock()
		return
	}
	sendProgress := false
	if progress > s.lastProgress {
		if progress > 100 {
			progress = 100
		}
		s.lastProgress = progress
		sendProgress = true
	}
	s.mu.Unlock()

	if sendProgress {
		s.emit(Event{
			Type:      EventTaskProgress,
			SlotIndex: s.Index,
			AgentID:   agentID,
			MissionID: missionID,
			Task:      task,
			Progress:  progress,
		})
	}
	if line != "" {
		s.emit(Event{
			Type:      EventLog,
			SlotIndex: s.Index,
			AgentID:   agentID,
			MissionID: missionID,
			Task:      task,
			Line:      line,
		})
	}
}

// finish emits the assignment's terminal event exactly once and updates
// the slot metrics. A second terminal for the same assignment (executor
// return racing a terminate) is discarded.
func (s *Slot) finish(agentID, missionID string, task *types.Task, duration time.Duration, errMsg string, terminated bool) {
	s.mu.Lock()
	if s.terminalSent {
		s.mu.Unlock()
		s.logger.Debug().Str("task_id", task.ID).Msg("duplicate terminal event discarded")
		return
	}
	s.terminalSent = true

	ms := duration.Milliseconds()
	if errMsg == "" {
		s.slotMetrics.TasksCompleted++
	} else {
		s.slotMetrics.TasksFailed++
	}
	s.slotMetrics.TotalExecutionMs += ms
	if n := s.slotMetrics.TasksCompleted + s.slotMetrics.TasksFailed; n > 0 {
		s.slotMetrics.AvgExecutionMs = s.slotMetrics.TotalExecutionMs / int64(n)
	}
	s.mu.Unlock()

	metrics.TaskExecutionSeconds.Observe(duration.Seconds())
	if errMsg == "" {
		metrics.TasksCompleted.Inc()
		s.emit(Event{
			Type:       EventTaskCompleted,
			SlotIndex:  s.Index,
			AgentID:    agentID,
			MissionID:  missionID,
			Task:       task,
			Progress:   100,
			DurationMs: ms,
		})
	} else {
		metrics.TasksFailed.Inc()
		s.emit(Event{
			Type:       EventTaskFailed,
			SlotIndex:  s.Index,
			AgentID:    agentID,
			MissionID:  missionID,
			Task:       task,
			Error:      errMsg,
			Terminated: terminated,
			DurationMs: ms,
		})
	}
}

// Terminate cancels the assignment bound to agentID, emits a terminal
// failure if none was observed yet, and waits for the executor to wind
// down. It is a no-op when the slot is idle or already runs a different
// agent; a terminated assignment's natural terminal stays in flight and
// must not be claimed on behalf of the slot's next occupant.
func (s *Slot) Terminate(agentID, reason string) {
	s.mu.Lock()
	if s.status != types.SlotStatusBusy || s.agentID != agentID {
		s.mu.Unlock()
		return
	}
	missionID, task := s.missionID, s.task
	startedAt := s.startedAt
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if reason == "" {
		reason = "terminated"
	}
	s.finish(agentID, missionID, task, time.Since(startedAt), reason, true)

	if done != nil {
		<-done
	}
}

// CheckHealth reports false when the current assignment has overrun the
// task timeout or, for probing executors, when the underlying sandbox is
// gone. Health does not change slot status; the swarm decides policy.
func (s *Slot) CheckHealth() bool {
	s.mu.Lock()
	busy := s.status == types.SlotStatusBusy
	startedAt := s.startedAt
	var taskID string
	if s.task != nil {
		taskID = s.task.ID
	}
	s.mu.Unlock()

	if !busy {
		return true
	}
	if s.taskTimeout > 0 && time.Since(startedAt) > s.taskTimeout {
		return false
	}
	if prober, ok := s.executor.(HealthProber); ok && taskID != "" {
		return prober.Healthy(taskID)
	}
	return true
}

func (s *Slot) emit(e Event) {
	s.events <- e
}
