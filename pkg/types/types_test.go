package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityWeight(t *testing.T) {
	assert.Greater(t, PriorityCritical.Weight(), PriorityHigh.Weight())
	assert.Greater(t, PriorityHigh.Weight(), PriorityMedium.Weight())
	assert.Greater(t, PriorityMedium.Weight(), PriorityLow.Weight())
}

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		assert.True(t, p.Valid(), string(p))
	}
	assert.False(t, Priority("urgent").Valid())
	assert.False(t, Priority("").Valid())
}

func TestMissionStatusTerminal(t *testing.T) {
	tests := []struct {
		status   MissionStatus
		terminal bool
	}{
		{MissionStatusPending, false},
		{MissionStatusInitializing, false},
		{MissionStatusInProgress, false},
		{MissionStatusTesting, false},
		{MissionStatusCompleted, true},
		{MissionStatusFailed, true},
		{MissionStatusCancelled, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), string(tt.status))
	}
}

func TestAgentStatusActive(t *testing.T) {
	assert.True(t, AgentStatusInitializing.Active())
	assert.True(t, AgentStatusCoding.Active())
	assert.False(t, AgentStatusComplete.Active())
	assert.False(t, AgentStatusError.Active())
	assert.False(t, AgentStatusTerminated.Active())
}

func TestErrorClassification(t *testing.T) {
	base := E(KindNotFound, "mission %s not found", "m1")
	assert.Equal(t, KindNotFound, KindOf(base))
	assert.True(t, IsKind(base, KindNotFound))
	assert.False(t, IsKind(base, KindSlotBusy))
	assert.Contains(t, base.Error(), "m1")

	wrapped := Wrap(KindIoFailure, base, "reading state")
	assert.Equal(t, KindIoFailure, KindOf(wrapped), "outermost kind wins")
	assert.True(t, errors.Is(wrapped, base))

	// Classified errors survive fmt wrapping.
	refmt := fmt.Errorf("handler: %w", base)
	assert.Equal(t, KindNotFound, KindOf(refmt))

	plain := errors.New("plain")
	assert.Equal(t, KindIoFailure, KindOf(plain))
}
