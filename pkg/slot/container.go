package slot

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/aegisai/aegis/pkg/runtime"
	"github.com/aegisai/aegis/pkg/types"
)

// progressMarker matches the [PROGRESS:<n>] markers a sandbox prints on
// its output stream.
var progressMarker = regexp.MustCompile(`\[PROGRESS:(\d{1,3})\]`)

// stopGrace is how long a sandbox gets between SIGTERM and SIGKILL.
const stopGrace = 5 * time.Second

// ContainerExecutor runs each task in an isolated sandbox with the
// mission workspace bound at /workspace.
type ContainerExecutor struct {
	rt *runtime.Runtime

	mu      sync.Mutex
	running map[string]*runtime.Sandbox // taskID -> live sandbox
}

// NewContainerExecutor wraps a containerd runtime.
func NewContainerExecutor(rt *runtime.Runtime) *ContainerExecutor {
	return &ContainerExecutor{
		rt:      rt,
		running: make(map[string]*runtime.Sandbox),
	}
}

// Execute starts a sandbox for the task, parses progress markers from
// its output stream, and tears the sandbox down on exit or cancellation.
func (e *ContainerExecutor) Execute(ctx context.Context, task *types.Task, workspacePath string, report func(progress int, line string)) error {
	env := []string{
		"AEGIS_TASK_ID=" + task.ID,
		"AEGIS_TASK_TYPE=" + string(task.Type),
		"AEGIS_TASK_TITLE=" + task.Title,
		"AEGIS_MISSION_ID=" + task.MissionID,
	}

	sandbox, err := e.rt.Start(ctx, "aegis-"+task.ID, workspacePath, env)
	if err != nil {
		return fmt.Errorf("failed to start sandbox: %w", err)
	}

	e.mu.Lock()
	e.running[task.ID] = sandbox
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.running, task.ID)
		e.mu.Unlock()

		stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace+10*time.Second)
		defer cancel()
		_ = e.rt.Stop(stopCtx, sandbox, stopGrace)
	}()

	// Cancellation stops the sandbox, which unblocks the output scanner
	// and the wait below.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace+10*time.Second)
			defer cancel()
			_ = e.rt.Stop(stopCtx, sandbox, stopGrace)
		case <-watchDone:
		}
	}()

	scanner := bufio.NewScanner(sandbox.Output())
	for scanner.Scan() {
		line := scanner.Text()
		progress := -1
		if m := progressMarker.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n <= 100 {
				progress = n
			}
		}
		if progress >= 0 {
			report(progress, line)
		} else {
			report(0, line)
		}
	}

	// On cancellation the watcher's Stop may have consumed the exit
	// status already; waiting on ctx keeps this from blocking forever.
	code, err := sandbox.Wait(ctx)
	if ctx.Err() != nil {
		return fmt.Errorf("task cancelled: %w", ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("sandbox wait failed: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("sandbox exited with code %d", code)
	}
	return nil
}

// Healthy reports whether the task's sandbox is still in the Running
// state. Unknown task ids are healthy; the slot falls back to its
// wall-clock check.
func (e *ContainerExecutor) Healthy(taskID string) bool {
	e.mu.Lock()
	sandbox, ok := e.running[taskID]
	e.mu.Unlock()
	if !ok {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return e.rt.Running(ctx, sandbox)
}
