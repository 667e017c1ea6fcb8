package types

import "time"

// API request/response shapes shared by the server and the CLI client.

// HealthResponse is the control-plane health report
type HealthResponse struct {
	Healthy        bool   `json:"healthy"`
	Version        string `json:"version"`
	UptimeSec      int64  `json:"uptimeSec"`
	ActiveWorkers  int    `json:"activeWorkers"`
	TotalWorkers   int    `json:"totalWorkers"`
	ActiveMissions int    `json:"activeMissions"`
}

// SubmitMissionRequest submits a mission brief for execution
type SubmitMissionRequest struct {
	Brief     MissionBrief `json:"brief"`
	SessionID string       `json:"sessionId,omitempty"`
	Priority  Priority     `json:"priority,omitempty"`
	DryRun    bool         `json:"dryRun,omitempty"`
}

// SubmitMissionResponse acknowledges an accepted mission
type SubmitMissionResponse struct {
	MissionID           string `json:"missionId"`
	Channel             string `json:"channel"`
	EstimatedDurationMs int64  `json:"estimatedDurationMs"`
	TotalTasks          int    `json:"totalTasks"`
}

// SlotView is one slot row in the swarm report
type SlotView struct {
	Index     int         `json:"index"`
	Status    SlotStatus  `json:"status"`
	AgentID   string      `json:"agentId,omitempty"`
	TaskID    string      `json:"taskId,omitempty"`
	TaskTitle string      `json:"taskTitle,omitempty"`
	Progress  int         `json:"progress"`
	StartedAt *time.Time  `json:"startedAt,omitempty"`
	Metrics   SlotMetrics `json:"metrics"`
}

// SwarmView reports the pool state
type SwarmView struct {
	TotalSlots     int        `json:"totalSlots"`
	AvailableSlots int        `json:"availableSlots"`
	ActiveAgents   int        `json:"activeAgents"`
	Slots          []SlotView `json:"slots"`
}

// TaskCounters summarises a mission's task buckets
type TaskCounters struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// MissionSummary is one row in the mission list
type MissionSummary struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Status     MissionStatus `json:"status"`
	Progress   int           `json:"progress"`
	AgentCount int           `json:"agentCount"`
	StartTime  *time.Time    `json:"startTime,omitempty"`
}

// ListMissionsResponse lists known missions with aggregate counters
type ListMissionsResponse struct {
	Missions []MissionSummary      `json:"missions"`
	Counters map[MissionStatus]int `json:"counters"`
}

// MissionView is the full mission state returned by getMission
type MissionView struct {
	ID        string        `json:"id"`
	Brief     MissionBrief  `json:"brief"`
	Status    MissionStatus `json:"status"`
	Progress  int           `json:"progress"`
	Tasks     []*Task       `json:"tasks"`
	Counters  TaskCounters  `json:"counters"`
	Agents    []*Agent      `json:"agents"`
	StartTime *time.Time    `json:"startTime,omitempty"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Workspace string        `json:"workspace,omitempty"`
	Channel   string        `json:"channel"`
	Reason    string        `json:"reason,omitempty"`
}

// CancelMissionRequest optionally carries a cancellation reason
type CancelMissionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelMissionResponse acknowledges a cancellation
type CancelMissionResponse struct {
	Success bool         `json:"success"`
	Note    string       `json:"note,omitempty"`
	Mission *MissionView `json:"mission,omitempty"`
}

// ErrorBody is the wire form of a classified error
type ErrorBody struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ErrorResponse wraps an error for control-plane responses
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
