package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisai/aegis/pkg/config"
	"github.com/aegisai/aegis/pkg/events"
	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// funcExecutor adapts a function to the slot.Executor interface.
type funcExecutor func(ctx context.Context, task *types.Task, workspacePath string, report func(int, string)) error

func (f funcExecutor) Execute(ctx context.Context, task *types.Task, workspacePath string, report func(int, string)) error {
	return f(ctx, task, workspacePath, report)
}

func testTask(id string) *types.Task {
	return &types.Task{
		ID:        id,
		MissionID: "m1",
		Title:     "task " + id,
		Type:      types.TaskTypeImplement,
		Priority:  types.PriorityMedium,
	}
}

func newTestSwarm(t *testing.T, workers int, exec funcExecutor) (*Swarm, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	s := New(config.SwarmConfig{
		MaxWorkers:            workers,
		TaskTimeoutMs:         60000,
		HealthCheckIntervalMs: 50,
	}, exec, bus)
	s.Start()
	t.Cleanup(s.Stop)
	return s, bus
}

func waitEvent(t *testing.T, sub *events.Subscription, want events.Type) *events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C():
			require.True(t, ok, "subscription closed waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestSpawnAgentPicksLowestSlot(t *testing.T) {
	block := make(chan struct{})
	s, _ := newTestSwarm(t, 3, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	a1, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, a1.SlotIndex)

	a2, err := s.SpawnAgent(testTask("t2"), "m1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, a2.SlotIndex)

	a3, err := s.SpawnAgent(testTask("t3"), "m1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, a3.SlotIndex)

	assert.Equal(t, 0, s.AvailableSlots())

	_, err = s.SpawnAgent(testTask("t4"), "m1", t.TempDir())
	assert.True(t, types.IsKind(err, types.KindNoSlot))

	close(block)
}

func TestSlotReuseAfterCompletion(t *testing.T) {
	s, bus := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return nil
	})
	sub := bus.Subscribe("m1")

	_, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)
	waitEvent(t, sub, events.TaskCompleted)

	assert.Eventually(t, func() bool {
		return s.AvailableSlots() == 1
	}, time.Second, 5*time.Millisecond)

	a2, err := s.SpawnAgent(testTask("t2"), "m1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, a2.SlotIndex)
}

func TestEventTranslation(t *testing.T) {
	s, bus := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, report func(int, string)) error {
		report(40, "writing code")
		return nil
	})
	sub := bus.Subscribe("m1")

	agent, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)

	spawned := waitEvent(t, sub, events.AgentSpawned)
	assert.Equal(t, agent.ID, spawned.Payload.(events.AgentSpawnedPayload).AgentID)

	started := waitEvent(t, sub, events.TaskStarted)
	assert.Equal(t, "t1", started.Payload.(events.TaskStartedPayload).TaskID)

	progress := waitEvent(t, sub, events.TaskProgress)
	assert.Equal(t, 40, progress.Payload.(events.TaskProgressPayload).Progress)

	logEv := waitEvent(t, sub, events.AgentLog)
	assert.Equal(t, "writing code", logEv.Payload.(events.AgentLogPayload).Line)

	waitEvent(t, sub, events.TaskCompleted)
	completed := waitEvent(t, sub, events.AgentTaskCompleted)
	assert.Equal(t, agent.ID, completed.Payload.(events.AgentTaskPayload).AgentID)
}

func TestFailureTranslation(t *testing.T) {
	s, bus := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return errors.New("tests are red")
	})
	sub := bus.Subscribe("m1")

	_, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)

	failed := waitEvent(t, sub, events.TaskFailed)
	assert.Equal(t, "tests are red", failed.Payload.(events.TaskFailedPayload).Error)
	waitEvent(t, sub, events.AgentTaskFailed)

	result := <-s.Results()
	assert.Equal(t, "t1", result.TaskID)
	assert.False(t, result.Completed)
	assert.False(t, result.Terminated)
	assert.Equal(t, "tests are red", result.Error)
}

func TestResultDelivery(t *testing.T) {
	s, _ := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return nil
	})

	_, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)

	select {
	case result := <-s.Results():
		assert.Equal(t, "m1", result.MissionID)
		assert.Equal(t, "t1", result.TaskID)
		assert.True(t, result.Completed)
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}
}

func TestTerminateAgent(t *testing.T) {
	s, bus := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		<-ctx.Done()
		return ctx.Err()
	})
	sub := bus.Subscribe("m1")

	agent, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)
	waitEvent(t, sub, events.TaskStarted)

	require.NoError(t, s.TerminateAgent(agent.ID, "operator request"))

	terminated := waitEvent(t, sub, events.AgentTerminated)
	assert.Equal(t, "operator request", terminated.Payload.(events.AgentTerminatedPayload).Reason)

	result := <-s.Results()
	assert.True(t, result.Terminated)
	assert.False(t, result.Completed)

	_, err = s.GetAgent(agent.ID)
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestTerminateUnknownAgent(t *testing.T) {
	s, _ := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return nil
	})
	err := s.TerminateAgent("ghost", "whatever")
	assert.True(t, types.IsKind(err, types.KindNotFound))
}

func TestListAgentsFiltersByMission(t *testing.T) {
	block := make(chan struct{})
	s, _ := newTestSwarm(t, 4, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	t1 := testTask("t1")
	t2 := &types.Task{ID: "t2", MissionID: "m2", Title: "other", Type: types.TaskTypeImplement, Priority: types.PriorityMedium}

	_, err := s.SpawnAgent(t1, "m1", t.TempDir())
	require.NoError(t, err)
	_, err = s.SpawnAgent(t2, "m2", t.TempDir())
	require.NoError(t, err)

	assert.Len(t, s.ListAgents("m1"), 1)
	assert.Len(t, s.ListAgents("m2"), 1)
	assert.Len(t, s.ListAgents(""), 2)

	close(block)
}

func TestSlotGaugesSeededAtStart(t *testing.T) {
	newTestSwarm(t, 3, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return nil
	})

	// Start seeds the gauges before the first health tick, so /metrics
	// reports the pool from boot.
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.SlotsTotal.WithLabelValues(string(types.SlotStatusAvailable))))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SlotsTotal.WithLabelValues(string(types.SlotStatusBusy))))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.SlotsTotal.WithLabelValues(string(types.SlotStatusUnhealthy))))
}

func TestSpawnedIsFirstAgentEvent(t *testing.T) {
	s, bus := newTestSwarm(t, 1, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		return nil
	})
	sub := bus.Subscribe("m1")
	dir := t.TempDir()

	// Drain each lifecycle fully, so the next event after a spawn is
	// always that agent's first. agent:spawned must lead every time,
	// not just when scheduling happens to favour it.
	for i := 0; i < 25; i++ {
		agent, err := s.SpawnAgent(testTask(fmt.Sprintf("t%d", i)), "m1", dir)
		require.NoError(t, err)

		first := nextEvent(t, sub)
		require.Equal(t, events.AgentSpawned, first.Type, "iteration %d", i)
		assert.Equal(t, agent.ID, first.Payload.(events.AgentSpawnedPayload).AgentID)

		waitEvent(t, sub, events.AgentTaskCompleted)
		require.Eventually(t, func() bool {
			return s.AvailableSlots() == 1
		}, time.Second, time.Millisecond)
	}
}

func nextEvent(t *testing.T, sub *events.Subscription) *events.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for next event")
		return nil
	}
}

func TestViewReportsSlots(t *testing.T) {
	block := make(chan struct{})
	s, _ := newTestSwarm(t, 2, func(ctx context.Context, _ *types.Task, _ string, _ func(int, string)) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})

	_, err := s.SpawnAgent(testTask("t1"), "m1", t.TempDir())
	require.NoError(t, err)

	view := s.View()
	assert.Equal(t, 2, view.TotalSlots)
	assert.Equal(t, 1, view.AvailableSlots)
	require.Len(t, view.Slots, 2)
	assert.Equal(t, types.SlotStatusBusy, view.Slots[0].Status)
	assert.Equal(t, types.SlotStatusAvailable, view.Slots[1].Status)

	close(block)
}
