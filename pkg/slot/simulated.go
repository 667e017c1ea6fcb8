package slot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aegisai/aegis/pkg/types"
)

// phase is one step of a simulated task timeline
type phase struct {
	name     string
	fraction float64 // share of the task's total duration
	progress int     // progress value at phase completion
}

var simulatedPhases = []phase{
	{"analyzing", 0.15, 15},
	{"generating", 0.45, 60},
	{"writing", 0.25, 85},
	{"verifying", 0.15, 100},
}

// baseDuration is the simulated wall time per task type.
var baseDuration = map[types.TaskType]time.Duration{
	types.TaskTypeScaffold:  8 * time.Second,
	types.TaskTypeImplement: 20 * time.Second,
	types.TaskTypeTest:      15 * time.Second,
	types.TaskTypeReview:    10 * time.Second,
	types.TaskTypeDocument:  8 * time.Second,
}

// SimulatedExecutor drives a phase timeline with synthesised progress
// and writes a result file into the workspace. Scale shrinks or
// stretches the timeline; tests run with a tiny scale.
type SimulatedExecutor struct {
	Scale float64
}

// NewSimulatedExecutor returns an executor running at real-time scale.
func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{Scale: 1.0}
}

// Duration returns the simulated wall time for a task type.
func (e *SimulatedExecutor) Duration(t types.TaskType) time.Duration {
	d, ok := baseDuration[t]
	if !ok {
		d = 10 * time.Second
	}
	scale := e.Scale
	if scale <= 0 {
		scale = 1.0
	}
	return time.Duration(float64(d) * scale)
}

// Execute walks the phase timeline, polling the cancellation token
// between phases, then writes the task's output JSON.
func (e *SimulatedExecutor) Execute(ctx context.Context, task *types.Task, workspacePath string, report func(progress int, line string)) error {
	total := e.Duration(task.Type)

	report(0, fmt.Sprintf("starting %s task %q", task.Type, task.Title))

	for _, p := range simulatedPhases {
		select {
		case <-ctx.Done():
			return fmt.Errorf("task cancelled during %s: %w", p.name, ctx.Err())
		case <-time.After(time.Duration(float64(total) * p.fraction)):
		}
		report(p.progress, fmt.Sprintf("%s: %s", p.name, task.Title))
	}

	if err := e.writeOutput(task, workspacePath, total); err != nil {
		return err
	}
	report(100, fmt.Sprintf("finished %s task %q", task.Type, task.Title))
	return nil
}

func (e *SimulatedExecutor) writeOutput(task *types.Task, workspacePath string, duration time.Duration) error {
	out := map[string]any{
		"taskId":      task.ID,
		"taskType":    task.Type,
		"title":       task.Title,
		"durationMs":  duration.Milliseconds(),
		"completedAt": time.Now().UTC(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task output: %w", err)
	}

	dir := filepath.Join(workspacePath, ".aegis", "output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, task.ID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write task output: %w", err)
	}
	return nil
}
