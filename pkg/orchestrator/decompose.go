package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/aegisai/aegis/pkg/types"
)

// Mission phases, coarser than task types.
const (
	phaseSetup         = "setup"
	phaseDevelopment   = "development"
	phaseTesting       = "testing"
	phaseReview        = "review"
	phaseDocumentation = "documentation"
)

// defaultMaxRetries returns the retry budget for a task type. Scaffold
// is the mission's foundation; one retry is all it gets.
func defaultMaxRetries(t types.TaskType) int {
	if t == types.TaskTypeScaffold {
		return 1
	}
	return 3
}

// validateBrief checks a brief's shape. All failures are InvalidBrief
// with a sub-reason in the message.
func validateBrief(brief *types.MissionBrief) error {
	if brief.Title == "" {
		return types.E(types.KindInvalidBrief, "missing title")
	}
	if len(brief.Tasks) == 0 {
		return types.E(types.KindInvalidBrief, "empty task list")
	}

	seen := make(map[string]struct{}, len(brief.Tasks))
	for i, task := range brief.Tasks {
		if task.ID == "" {
			return types.E(types.KindInvalidBrief, "malformed task at index %d: missing id", i)
		}
		if task.Title == "" {
			return types.E(types.KindInvalidBrief, "malformed task %s: missing title", task.ID)
		}
		if task.Priority != "" && !task.Priority.Valid() {
			return types.E(types.KindInvalidBrief, "malformed task %s: unknown priority %q", task.ID, task.Priority)
		}
		if _, dup := seen[task.ID]; dup {
			return types.E(types.KindInvalidBrief, "duplicate task id %s", task.ID)
		}
		seen[task.ID] = struct{}{}
	}

	for _, task := range brief.Tasks {
		for _, dep := range task.Dependencies {
			if _, ok := seen[dep]; !ok {
				return types.E(types.KindInvalidBrief, "task %s depends on unknown task %s", task.ID, dep)
			}
		}
	}

	if hasCycle(brief.Tasks) {
		return types.E(types.KindInvalidBrief, "cyclic dependencies")
	}
	return nil
}

// hasCycle runs Kahn's algorithm over the user tasks: if the peel-off
// order cannot cover every task, a cycle remains.
func hasCycle(tasks []types.UserTask) bool {
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, task := range tasks {
		inDegree[task.ID] += 0
		for _, dep := range task.Dependencies {
			dependents[dep] = append(dependents[dep], task.ID)
			inDegree[task.ID]++
		}
	}

	queue := make([]string, 0, len(tasks))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return visited != len(tasks)
}

// decompose expands a validated brief into the mission's task DAG:
// scaffold, one implement task per user task (keeping the user task
// ids so dependencies stay valid), an optional test task, review, and
// document. The returned slice is in creation order.
func decompose(missionID string, brief *types.MissionBrief) []*types.Task {
	now := time.Now()
	tasks := make([]*types.Task, 0, len(brief.Tasks)+4)

	newTask := func(id, title, description string, t types.TaskType, phase string, priority types.Priority, deps []string) *types.Task {
		task := &types.Task{
			ID:           id,
			MissionID:    missionID,
			Title:        title,
			Description:  description,
			Priority:     priority,
			Dependencies: deps,
			Type:         t,
			Phase:        phase,
			Status:       types.TaskStatusPending,
			MaxRetries:   defaultMaxRetries(t),
			CreatedAt:    now,
		}
		tasks = append(tasks, task)
		return task
	}

	scaffold := newTask(
		uuid.New().String(),
		"Scaffold project structure",
		"Set up the project skeleton, build configuration, and base layout for: "+brief.Title,
		types.TaskTypeScaffold, phaseSetup, types.PriorityCritical, nil,
	)

	implementIDs := make([]string, 0, len(brief.Tasks))
	for _, user := range brief.Tasks {
		deps := append([]string(nil), user.Dependencies...)
		if len(deps) == 0 {
			deps = []string{scaffold.ID}
		}
		priority := user.Priority
		if priority == "" {
			priority = types.PriorityMedium
		}
		newTask(user.ID, user.Title, user.Description, types.TaskTypeImplement, phaseDevelopment, priority, deps)
		implementIDs = append(implementIDs, user.ID)
	}

	reviewDeps := implementIDs
	if brief.TestRequired {
		test := newTask(
			uuid.New().String(),
			"Run test suite",
			"Exercise the implemented tasks and verify their behavior",
			types.TaskTypeTest, phaseTesting, types.PriorityHigh,
			append([]string(nil), implementIDs...),
		)
		reviewDeps = []string{test.ID}
	}

	review := newTask(
		uuid.New().String(),
		"Review changes",
		"Review the generated code for consistency and correctness",
		types.TaskTypeReview, phaseReview, types.PriorityMedium,
		append([]string(nil), reviewDeps...),
	)

	newTask(
		uuid.New().String(),
		"Write documentation",
		"Document the delivered work",
		types.TaskTypeDocument, phaseDocumentation, types.PriorityLow,
		[]string{review.ID},
	)

	return tasks
}

// estimateDuration computes the DAG's critical path using the simulated
// per-type baselines, which is what the submit response reports.
func estimateDuration(tasks []*types.Task, perType func(types.TaskType) time.Duration) time.Duration {
	byID := make(map[string]*types.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	memo := make(map[string]time.Duration, len(tasks))
	var finish func(id string) time.Duration
	finish = func(id string) time.Duration {
		if d, ok := memo[id]; ok {
			return d
		}
		task := byID[id]
		var latest time.Duration
		for _, dep := range task.Dependencies {
			if d := finish(dep); d > latest {
				latest = d
			}
		}
		d := latest + perType(task.Type)
		memo[id] = d
		return d
	}

	var longest time.Duration
	for _, task := range tasks {
		if d := finish(task.ID); d > longest {
			longest = d
		}
	}
	return longest
}
