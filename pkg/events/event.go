package events

import (
	"time"

	"github.com/aegisai/aegis/pkg/types"
)

// Type identifies an event in the closed taxonomy
type Type string

const (
	// Agent events
	AgentSpawned       Type = "agent:spawned"
	AgentStatusChanged Type = "agent:status_changed"
	AgentTaskStarted   Type = "agent:task_started"
	AgentTaskCompleted Type = "agent:task_completed"
	AgentTaskFailed    Type = "agent:task_failed"
	AgentTerminated    Type = "agent:terminated"
	AgentLog           Type = "agent:log"

	// Mission events
	MissionInitialized  Type = "mission:initialized"
	MissionStarted      Type = "mission:started"
	MissionProgress     Type = "mission:progress"
	MissionPhaseChanged Type = "mission:phase_changed"
	MissionCompleted    Type = "mission:completed"
	MissionFailed       Type = "mission:failed"
	MissionCancelled    Type = "mission:cancelled"

	// Task events
	TaskStarted   Type = "task:started"
	TaskProgress  Type = "task:progress"
	TaskCompleted Type = "task:completed"
	TaskFailed    Type = "task:failed"
)

// Event is one record pushed to subscribers. Payload holds the
// type-specific struct below; subscribers dispatch on Type.
type Event struct {
	Type      Type      `json:"type"`
	MissionID string    `json:"missionId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`

	// cleanup marks the internal drain marker enqueued by CleanupMission.
	cleanup bool
}

// New builds an event stamped with the current time.
func New(t Type, missionID string, payload any) *Event {
	return &Event{
		Type:      t,
		MissionID: missionID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// AgentSpawnedPayload accompanies agent:spawned
type AgentSpawnedPayload struct {
	AgentID   string `json:"agentId"`
	SlotIndex int    `json:"slotIndex"`
	TaskID    string `json:"taskId"`
	TaskTitle string `json:"taskTitle"`
}

// AgentStatusChangedPayload accompanies agent:status_changed
type AgentStatusChangedPayload struct {
	AgentID        string            `json:"agentId"`
	PreviousStatus types.AgentStatus `json:"previousStatus"`
	NewStatus      types.AgentStatus `json:"newStatus"`
}

// AgentTaskPayload accompanies agent:task_started and agent:task_completed
type AgentTaskPayload struct {
	AgentID    string `json:"agentId"`
	TaskID     string `json:"taskId"`
	TaskTitle  string `json:"taskTitle"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// AgentTaskFailedPayload accompanies agent:task_failed
type AgentTaskFailedPayload struct {
	AgentID string `json:"agentId"`
	TaskID  string `json:"taskId"`
	Error   string `json:"error"`
}

// AgentTerminatedPayload accompanies agent:terminated
type AgentTerminatedPayload struct {
	AgentID string `json:"agentId"`
	Reason  string `json:"reason,omitempty"`
}

// AgentLogPayload accompanies agent:log
type AgentLogPayload struct {
	AgentID string `json:"agentId"`
	Line    string `json:"line"`
}

// MissionInitializedPayload accompanies mission:initialized
type MissionInitializedPayload struct {
	Title      string `json:"title"`
	TotalTasks int    `json:"totalTasks"`
	Channel    string `json:"channel"`
}

// MissionProgressPayload accompanies mission:progress
type MissionProgressPayload struct {
	Progress  int `json:"progress"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// MissionPhaseChangedPayload accompanies mission:phase_changed
type MissionPhaseChangedPayload struct {
	PreviousPhase types.MissionStatus `json:"previousPhase"`
	NewPhase      types.MissionStatus `json:"newPhase"`
}

// MissionCompletedPayload accompanies mission:completed
type MissionCompletedPayload struct {
	DurationMs     int64  `json:"durationMs"`
	Workspace      string `json:"workspace"`
	CompletedTasks int    `json:"completedTasks"`
	FailedTasks    int    `json:"failedTasks"`
}

// MissionFailedPayload accompanies mission:failed and mission:cancelled
type MissionFailedPayload struct {
	Reason string `json:"reason"`
}

// TaskStartedPayload accompanies task:started
type TaskStartedPayload struct {
	TaskID    string `json:"taskId"`
	AgentID   string `json:"agentId"`
	TaskTitle string `json:"taskTitle"`
}

// TaskProgressPayload accompanies task:progress
type TaskProgressPayload struct {
	TaskID   string `json:"taskId"`
	AgentID  string `json:"agentId"`
	Progress int    `json:"progress"`
}

// TaskCompletedPayload accompanies task:completed
type TaskCompletedPayload struct {
	TaskID     string `json:"taskId"`
	AgentID    string `json:"agentId"`
	DurationMs int64  `json:"durationMs"`
}

// TaskFailedPayload accompanies task:failed
type TaskFailedPayload struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
	Error   string `json:"error"`
}
