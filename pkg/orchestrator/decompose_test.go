package orchestrator

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/slot"
	"github.com/aegisai/aegis/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func validBrief() types.MissionBrief {
	return types.MissionBrief{
		Title: "Build a URL shortener",
		Tasks: []types.UserTask{
			{ID: "api", Title: "HTTP API"},
			{ID: "store", Title: "Storage layer"},
			{ID: "wire", Title: "Wire them up", Dependencies: []string{"api", "store"}},
		},
	}
}

func TestValidateBrief(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.MissionBrief)
		wantErr string
	}{
		{
			name:   "valid brief",
			mutate: func(b *types.MissionBrief) {},
		},
		{
			name:    "missing title",
			mutate:  func(b *types.MissionBrief) { b.Title = "" },
			wantErr: "missing title",
		},
		{
			name:    "empty task list",
			mutate:  func(b *types.MissionBrief) { b.Tasks = nil },
			wantErr: "empty task list",
		},
		{
			name:    "task without id",
			mutate:  func(b *types.MissionBrief) { b.Tasks[0].ID = "" },
			wantErr: "missing id",
		},
		{
			name:    "task without title",
			mutate:  func(b *types.MissionBrief) { b.Tasks[1].Title = "" },
			wantErr: "missing title",
		},
		{
			name:    "unknown priority",
			mutate:  func(b *types.MissionBrief) { b.Tasks[0].Priority = "urgent" },
			wantErr: "unknown priority",
		},
		{
			name:    "duplicate task id",
			mutate:  func(b *types.MissionBrief) { b.Tasks[1].ID = "api" },
			wantErr: "duplicate task id",
		},
		{
			name:    "unknown dependency",
			mutate:  func(b *types.MissionBrief) { b.Tasks[2].Dependencies = []string{"ghost"} },
			wantErr: "unknown task",
		},
		{
			name: "dependency cycle",
			mutate: func(b *types.MissionBrief) {
				b.Tasks[0].Dependencies = []string{"wire"}
			},
			wantErr: "cyclic",
		},
		{
			name: "self dependency",
			mutate: func(b *types.MissionBrief) {
				b.Tasks[0].Dependencies = []string{"api"}
			},
			wantErr: "cyclic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brief := validBrief()
			tt.mutate(&brief)
			err := validateBrief(&brief)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsKind(err, types.KindInvalidBrief), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecomposeShape(t *testing.T) {
	brief := validBrief()
	tasks := decompose("m1", &brief)

	// scaffold + 3 implements + review + document
	require.Len(t, tasks, 6)

	byType := map[types.TaskType][]*types.Task{}
	for _, task := range tasks {
		byType[task.Type] = append(byType[task.Type], task)
		assert.Equal(t, "m1", task.MissionID)
		assert.Equal(t, types.TaskStatusPending, task.Status)
	}

	scaffold := byType[types.TaskTypeScaffold][0]
	assert.Empty(t, scaffold.Dependencies)
	assert.Equal(t, types.PriorityCritical, scaffold.Priority)
	assert.Equal(t, 1, scaffold.MaxRetries)

	implements := byType[types.TaskTypeImplement]
	require.Len(t, implements, 3)
	ids := map[string]*types.Task{}
	for _, task := range implements {
		ids[task.ID] = task
		assert.Equal(t, 3, task.MaxRetries)
	}

	// Root user tasks hang off the scaffold; explicit deps are kept.
	assert.Equal(t, []string{scaffold.ID}, ids["api"].Dependencies)
	assert.Equal(t, []string{scaffold.ID}, ids["store"].Dependencies)
	assert.ElementsMatch(t, []string{"api", "store"}, ids["wire"].Dependencies)
	assert.Equal(t, types.PriorityMedium, ids["api"].Priority, "unset priority defaults to medium")

	require.Empty(t, byType[types.TaskTypeTest], "no test task unless required")

	review := byType[types.TaskTypeReview][0]
	assert.ElementsMatch(t, []string{"api", "store", "wire"}, review.Dependencies)
	assert.Equal(t, types.PriorityMedium, review.Priority)

	document := byType[types.TaskTypeDocument][0]
	assert.Equal(t, []string{review.ID}, document.Dependencies)
	assert.Equal(t, types.PriorityLow, document.Priority)
}

func TestDecomposeWithTestPhase(t *testing.T) {
	brief := validBrief()
	brief.TestRequired = true
	tasks := decompose("m1", &brief)

	require.Len(t, tasks, 7)

	var test, review *types.Task
	for _, task := range tasks {
		switch task.Type {
		case types.TaskTypeTest:
			test = task
		case types.TaskTypeReview:
			review = task
		}
	}
	require.NotNil(t, test)
	require.NotNil(t, review)

	assert.Equal(t, types.PriorityHigh, test.Priority)
	assert.ElementsMatch(t, []string{"api", "store", "wire"}, test.Dependencies)
	assert.Equal(t, []string{test.ID}, review.Dependencies, "review waits on the test gate")
}

func TestDecomposeKeepsUserPriorities(t *testing.T) {
	brief := validBrief()
	brief.Tasks[0].Priority = types.PriorityHigh
	tasks := decompose("m1", &brief)

	for _, task := range tasks {
		if task.ID == "api" {
			assert.Equal(t, types.PriorityHigh, task.Priority)
			return
		}
	}
	t.Fatal("user task not found in decomposition")
}

func TestEstimateDurationCriticalPath(t *testing.T) {
	perType := slot.NewSimulatedExecutor().Duration

	brief := validBrief()
	tasks := decompose("m1", &brief)

	// scaffold -> implement -> implement(wire) -> review -> document:
	// the two root implements run in parallel so only one counts.
	want := 8*time.Second + 20*time.Second + 20*time.Second + 10*time.Second + 8*time.Second
	assert.Equal(t, want, estimateDuration(tasks, perType))

	brief = validBrief()
	brief.TestRequired = true
	tasks = decompose("m1", &brief)
	assert.Equal(t, want+15*time.Second, estimateDuration(tasks, perType))
}

func TestReadySetOrdering(t *testing.T) {
	brief := types.MissionBrief{
		Title: "ordering",
		Tasks: []types.UserTask{
			{ID: "low", Title: "low", Priority: types.PriorityLow},
			{ID: "crit", Title: "crit", Priority: types.PriorityCritical},
			{ID: "med1", Title: "med1"},
			{ID: "med2", Title: "med2"},
		},
	}
	tasks := decompose("m1", &brief)
	m := newMission("m1", "mission:m1", brief, tasks, "/tmp/ws")

	// Complete the scaffold so the user tasks become ready.
	var scaffoldID string
	for _, task := range tasks {
		if task.Type == types.TaskTypeScaffold {
			scaffoldID = task.ID
		}
	}
	m.mu.Lock()
	m.moveLocked(scaffoldID, types.TaskStatusCompleted)
	ready := m.readySetLocked()
	m.mu.Unlock()

	require.Len(t, ready, 4)
	assert.Equal(t, "crit", ready[0].ID)
	assert.Equal(t, "med1", ready[1].ID, "equal priorities keep creation order")
	assert.Equal(t, "med2", ready[2].ID)
	assert.Equal(t, "low", ready[3].ID)
}
