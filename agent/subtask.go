package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kandada/aacode/session"
	"github.com/kandada/aacode/tools"
)

// SubtaskManager tracks fire-and-forget sub-agent runs a Driver dispatches.
// Sub-agents share the parent's Context Store, tool registry, todo manager,
// and event logger, but each gets its own Session so its message history
// never interleaves with the parent's — matching the concurrency model's
// "share the Context Store but not the message list" rule.
type SubtaskManager struct {
	mu      sync.Mutex
	tasks   map[string]*subtaskState
	counter int
	spawn   func(ctx context.Context, description string) Outcome
	group   *errgroup.Group
}

type subtaskState struct {
	description string
	status      string
	outcome     *Outcome
}

func newSubtaskManager(spawn func(ctx context.Context, description string) Outcome) *SubtaskManager {
	return &SubtaskManager{
		tasks: map[string]*subtaskState{},
		spawn: spawn,
		group: new(errgroup.Group),
	}
}

// Dispatch launches description on its own goroutine and returns its
// subtask ID immediately — the caller never blocks on the sub-agent
// finishing. The sub-agent runs against context.Background(), independent
// of any particular tool call's deadline, so a parent iteration's 60-second
// tool timeout doesn't cut it short.
func (m *SubtaskManager) Dispatch(description string) string {
	m.mu.Lock()
	m.counter++
	id := fmt.Sprintf("subtask-%d", m.counter)
	m.tasks[id] = &subtaskState{description: description, status: "running"}
	m.mu.Unlock()

	m.group.Go(func() error {
		outcome := m.spawn(context.Background(), description)
		m.mu.Lock()
		st := m.tasks[id]
		st.status = string(outcome.Status)
		st.outcome = &outcome
		m.mu.Unlock()
		return nil
	})
	return id
}

// Status reports a subtask's current state: "running" until its spawn
// closure returns, then the Outcome's own status string.
func (m *SubtaskManager) Status(id string) (status string, outcome *Outcome, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tasks[id]
	if !ok {
		return "", nil, false
	}
	return st.status, st.outcome, true
}

// Wait blocks until every dispatched sub-agent has finished, so process
// shutdown doesn't orphan one mid-write.
func (m *SubtaskManager) Wait() error {
	return m.group.Wait()
}

var dispatchSubtaskSchema = tools.Schema{
	Name: "dispatch_subtask",
	Description: "Delegate a self-contained piece of work to an independent sub-agent. " +
		"Returns immediately with a subtask id; the sub-agent keeps running in the background.",
	Parameters: []tools.Parameter{
		{Name: "task", Type: tools.TypeString, Required: true,
			Description: "the task to delegate", Aliases: []string{"description", "task_description"}},
	},
	Returns: "the dispatched subtask's id",
}

var checkSubtaskStatusSchema = tools.Schema{
	Name:        "check_subtask_status",
	Description: "Poll a previously dispatched sub-agent for its current status and, once finished, its result.",
	Parameters: []tools.Parameter{
		{Name: "id", Type: tools.TypeString, Required: true,
			Description: "the subtask id returned by dispatch_subtask", Aliases: []string{"subtask_id", "task_id"}},
	},
	Returns: "the subtask's status (running/completed/max_iterations_reached/error/cancelled) and final thought once done",
}

// EnableSubtasks wires the dispatch_subtask/check_subtask_status tools into
// this Driver's registry. Each dispatched sub-agent is itself a Driver
// sharing this one's context store, registry, todo manager, logger, and
// compactor, but with its own session store scoped to a dedicated
// subdirectory under workDir.
func (d *Driver) EnableSubtasks(workDir string) {
	sm := newSubtaskManager(func(ctx context.Context, description string) Outcome {
		subDir := filepath.Join(workDir, ".aacode", "subtasks", fmt.Sprintf("%d", time.Now().UnixNano()))
		sessions, err := session.NewStore(subDir, 200000)
		if err != nil {
			return Outcome{Status: StatusError, Err: err}
		}
		child := &Driver{
			cfg:       d.cfg,
			caller:    d.caller,
			registry:  d.registry,
			ctxStore:  d.ctxStore,
			sessions:  sessions,
			todos:     d.todos,
			logger:    d.logger,
			compactor: d.compactor,
		}
		return child.Run(ctx, description)
	})
	d.subtasks = sm

	d.registry.Register(dispatchSubtaskSchema, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		desc, _ := params["task"].(string)
		if desc == "" {
			return tools.Result{Success: false, Error: "missing required parameter: task"}, nil
		}
		id := sm.Dispatch(desc)
		return tools.Result{Success: true, Output: fmt.Sprintf("dispatched %s", id), Extra: map[string]any{"id": id}}, nil
	})

	d.registry.Register(checkSubtaskStatusSchema, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		id, _ := params["id"].(string)
		status, outcome, ok := sm.Status(id)
		if !ok {
			return tools.Result{Success: false, Error: fmt.Sprintf("unknown subtask id %q", id)}, nil
		}
		out := "status: " + status
		if outcome != nil {
			out += fmt.Sprintf("\nfinal thought: %s\niterations: %d", outcome.FinalThought, outcome.Iterations)
		}
		return tools.Result{Success: true, Output: out}, nil
	})
}

// WaitForSubtasks blocks until every sub-agent this Driver dispatched has
// finished. A no-op if EnableSubtasks was never called.
func (d *Driver) WaitForSubtasks() error {
	if d.subtasks == nil {
		return nil
	}
	return d.subtasks.Wait()
}
