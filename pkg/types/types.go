package types

import (
	"time"
)

// Priority orders missions and tasks for scheduling
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight returns the numeric rank of a priority (higher runs first).
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the four known priorities.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// UserTask is one task as supplied by the caller in a mission brief
type UserTask struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	Description  string   `json:"description" yaml:"description"`
	Priority     Priority `json:"priority" yaml:"priority"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// MissionBrief is the immutable input describing a mission
type MissionBrief struct {
	ID           string     `json:"id,omitempty" yaml:"id,omitempty"`
	Title        string     `json:"title" yaml:"title"`
	Description  string     `json:"description" yaml:"description"`
	Priority     Priority   `json:"priority" yaml:"priority"`
	Tasks        []UserTask `json:"tasks" yaml:"tasks"`
	TestRequired bool       `json:"testRequired" yaml:"testRequired"`
	Technologies []string   `json:"technologies,omitempty" yaml:"technologies,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty" yaml:"deadline,omitempty"`
}

// TaskType classifies a decomposed task
type TaskType string

const (
	TaskTypeScaffold  TaskType = "scaffold"
	TaskTypeImplement TaskType = "implement"
	TaskTypeTest      TaskType = "test"
	TaskTypeReview    TaskType = "review"
	TaskTypeDocument  TaskType = "document"
)

// TaskStatus represents the state of a decomposed task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is one node of a mission's dependency graph
type Task struct {
	ID           string     `json:"id"`
	MissionID    string     `json:"missionId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Priority     Priority   `json:"priority"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Type         TaskType   `json:"type"`
	Phase        string     `json:"phase"`
	Status       TaskStatus `json:"status"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	CreatedAt    time.Time  `json:"createdAt"`
	Error        string     `json:"error,omitempty"`
}

// MissionStatus represents the state of a mission
type MissionStatus string

const (
	MissionStatusPending      MissionStatus = "pending"
	MissionStatusInitializing MissionStatus = "initializing"
	MissionStatusInProgress   MissionStatus = "in_progress"
	MissionStatusTesting      MissionStatus = "testing"
	MissionStatusCompleted    MissionStatus = "completed"
	MissionStatusFailed       MissionStatus = "failed"
	MissionStatusCancelled    MissionStatus = "cancelled"
)

// Terminal reports whether s is a terminal mission status.
func (s MissionStatus) Terminal() bool {
	return s == MissionStatusCompleted || s == MissionStatusFailed || s == MissionStatusCancelled
}

// AgentStatus represents the lifecycle state of an agent
type AgentStatus string

const (
	AgentStatusInitializing AgentStatus = "initializing"
	AgentStatusCoding       AgentStatus = "coding"
	AgentStatusTesting      AgentStatus = "testing"
	AgentStatusComplete     AgentStatus = "complete"
	AgentStatusError        AgentStatus = "error"
	AgentStatusTerminated   AgentStatus = "terminated"
)

// Active reports whether the agent still occupies a slot.
func (s AgentStatus) Active() bool {
	switch s {
	case AgentStatusComplete, AgentStatusError, AgentStatusTerminated:
		return false
	default:
		return true
	}
}

// Agent is the live execution context for one task assignment on one slot
type Agent struct {
	ID        string      `json:"id"`
	SlotIndex int         `json:"slotIndex"`
	MissionID string      `json:"missionId"`
	Task      *Task       `json:"task,omitempty"`
	Status    AgentStatus `json:"status"`
	Progress  int         `json:"progress"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Logs      []string    `json:"logs,omitempty"`
}

// SlotStatus represents the state of a worker slot
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBusy      SlotStatus = "busy"
	SlotStatusUnhealthy SlotStatus = "unhealthy"
)

// SlotMetrics tracks per-slot execution counters
type SlotMetrics struct {
	TasksCompleted   int   `json:"tasksCompleted"`
	TasksFailed      int   `json:"tasksFailed"`
	TotalExecutionMs int64 `json:"totalExecutionMs"`
	AvgExecutionMs   int64 `json:"avgExecutionMs"`
}

// Workspace describes an isolated per-mission directory
type Workspace struct {
	MissionID      string    `json:"missionId"`
	RootPath       string    `json:"rootPath"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	FileCount      int       `json:"fileCount"`
	TotalBytes     int64     `json:"totalBytes"`
}

// FileInfo describes one entry returned by a workspace listing
type FileInfo struct {
	Path    string    `json:"path"`
	IsDir   bool      `json:"isDir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}
