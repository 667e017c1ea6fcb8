package slot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// funcExecutor adapts a function to the Executor interface.
type funcExecutor func(ctx context.Context, task *types.Task, workspacePath string, report func(int, string)) error

func (f funcExecutor) Execute(ctx context.Context, task *types.Task, workspacePath string, report func(int, string)) error {
	return f(ctx, task, workspacePath, report)
}

func testTask(id string) *types.Task {
	return &types.Task{
		ID:        id,
		MissionID: "m1",
		Title:     "test task " + id,
		Type:      types.TaskTypeImplement,
		Priority:  types.PriorityMedium,
	}
}

func collect(t *testing.T, events <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestAssignRunsTask(t *testing.T) {
	events := make(chan Event, 32)
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, task *types.Task, _ string, report func(int, string)) error {
		report(50, "halfway")
		return nil
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))

	got := collect(t, events, 4)
	assert.Equal(t, EventTaskStarted, got[0].Type)
	assert.Equal(t, EventTaskProgress, got[1].Type)
	assert.Equal(t, 50, got[1].Progress)
	assert.Equal(t, EventLog, got[2].Type)
	assert.Equal(t, "halfway", got[2].Line)
	assert.Equal(t, EventTaskCompleted, got[3].Type)
	assert.Equal(t, "agent-1", got[3].AgentID)
	assert.Equal(t, "m1", got[3].MissionID)

	assert.Eventually(t, func() bool {
		return s.Status() == types.SlotStatusAvailable
	}, time.Second, 5*time.Millisecond)

	m := s.Metrics()
	assert.Equal(t, 1, m.TasksCompleted)
	assert.Equal(t, 0, m.TasksFailed)
}

func TestAssignBusySlot(t *testing.T) {
	events := make(chan Event, 32)
	release := make(chan struct{})
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		<-release
		return nil
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))

	err := s.Assign("agent-2", "m1", testTask("t2"), t.TempDir())
	assert.True(t, types.IsKind(err, types.KindSlotBusy))

	close(release)
}

func TestExecutorFailure(t *testing.T) {
	events := make(chan Event, 32)
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return errors.New("compilation failed")
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))

	got := collect(t, events, 2)
	assert.Equal(t, EventTaskStarted, got[0].Type)
	assert.Equal(t, EventTaskFailed, got[1].Type)
	assert.Equal(t, "compilation failed", got[1].Error)

	assert.Eventually(t, func() bool {
		return s.Metrics().TasksFailed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProgressMonotonicAndClamped(t *testing.T) {
	events := make(chan Event, 64)
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, report func(int, string)) error {
		report(30, "")
		report(20, "") // regression, suppressed
		report(30, "") // duplicate, suppressed
		report(250, "") // clamped to 100
		return nil
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))

	got := collect(t, events, 4)
	assert.Equal(t, EventTaskStarted, got[0].Type)
	require.Equal(t, EventTaskProgress, got[1].Type)
	assert.Equal(t, 30, got[1].Progress)
	require.Equal(t, EventTaskProgress, got[2].Type)
	assert.Equal(t, 100, got[2].Progress)
	assert.Equal(t, EventTaskCompleted, got[3].Type)
}

func TestTerminateWinsOverCompletion(t *testing.T) {
	events := make(chan Event, 32)
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		<-ctx.Done()
		return nil // executor claims success after cancellation
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))
	_ = collect(t, events, 1) // started

	s.Terminate("agent-1", "mission cancelled")

	got := collect(t, events, 1)
	assert.Equal(t, EventTaskFailed, got[0].Type)
	assert.Equal(t, "mission cancelled", got[0].Error)
	assert.True(t, got[0].Terminated)

	// No second terminal from the executor's return.
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}

	assert.Equal(t, types.SlotStatusAvailable, s.Status())
	m := s.Metrics()
	assert.Equal(t, 0, m.TasksCompleted)
	assert.Equal(t, 1, m.TasksFailed)
}

func TestTerminateIdleSlotIsNoop(t *testing.T) {
	events := make(chan Event, 8)
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return nil
	}), time.Minute, events)

	s.Terminate("agent-1", "nothing running")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s from idle slot", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTerminateWrongAgentIsNoop(t *testing.T) {
	events := make(chan Event, 32)
	release := make(chan struct{})
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-2", "m1", testTask("t2"), t.TempDir()))
	_ = collect(t, events, 1) // started

	// A stale terminate aimed at the slot's previous occupant must not
	// touch the current assignment.
	s.Terminate("agent-1", "stale terminate")
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s for mismatched agent", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	got := collect(t, events, 1)
	assert.Equal(t, EventTaskCompleted, got[0].Type)
	assert.Equal(t, "agent-2", got[0].AgentID)
	assert.False(t, got[0].Terminated)

	assert.Eventually(t, func() bool {
		return s.Status() == types.SlotStatusAvailable
	}, time.Second, 5*time.Millisecond)
	m := s.Metrics()
	assert.Equal(t, 1, m.TasksCompleted)
	assert.Equal(t, 0, m.TasksFailed)
}

func TestReportSuppressedAfterTerminal(t *testing.T) {
	events := make(chan Event, 32)
	reported := make(chan struct{})
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, report func(int, string)) error {
		<-ctx.Done()
		report(99, "should not surface")
		close(reported)
		return errors.New("cancelled")
	}), time.Minute, events)

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))
	_ = collect(t, events, 1) // started

	s.Terminate("agent-1", "stop")
	<-reported

	got := collect(t, events, 1)
	assert.Equal(t, EventTaskFailed, got[0].Type)

	select {
	case ev := <-events:
		t.Fatalf("suppressed report leaked as %s", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCheckHealthTimeout(t *testing.T) {
	events := make(chan Event, 8)
	release := make(chan struct{})
	s := New("slot-0", 0, funcExecutor(func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), 20*time.Millisecond, events)

	assert.True(t, s.CheckHealth(), "idle slot is healthy")

	require.NoError(t, s.Assign("agent-1", "m1", testTask("t1"), t.TempDir()))
	assert.True(t, s.CheckHealth(), "fresh assignment is healthy")

	assert.Eventually(t, func() bool {
		return !s.CheckHealth()
	}, time.Second, 5*time.Millisecond, "overrun assignment turns unhealthy")

	close(release)
}

func TestSimulatedExecutor(t *testing.T) {
	dir := t.TempDir()
	exec := &SimulatedExecutor{Scale: 0.001}
	task := testTask("t1")

	var progress []int
	err := exec.Execute(context.Background(), task, dir, func(p int, _ string) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 60, 85, 100, 100}, progress)

	data, err := os.ReadFile(filepath.Join(dir, ".aegis", "output", "t1.json"))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "t1", out["taskId"])
}

func TestSimulatedExecutorCancelled(t *testing.T) {
	exec := &SimulatedExecutor{Scale: 10} // long phases, cancellation must cut in
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, testTask("t1"), t.TempDir(), func(int, string) {})
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedDurationScales(t *testing.T) {
	full := NewSimulatedExecutor()
	assert.Equal(t, 8*time.Second, full.Duration(types.TaskTypeScaffold))
	assert.Equal(t, 20*time.Second, full.Duration(types.TaskTypeImplement))

	half := &SimulatedExecutor{Scale: 0.5}
	assert.Equal(t, 10*time.Second, half.Duration(types.TaskTypeImplement))
}
