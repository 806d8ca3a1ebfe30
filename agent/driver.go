// Package agent implements the ReAct orchestration loop: it alternates
// model calls with tool execution until the model signals completion or
// the iteration budget runs out, wiring together the session store,
// context store, tool registry, safety guard, todo manager, event logger,
// response parser, and compactor built elsewhere in this module.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kandada/aacode/compactor"
	"github.com/kandada/aacode/contextstore"
	"github.com/kandada/aacode/eventlog"
	"github.com/kandada/aacode/llm"
	"github.com/kandada/aacode/parser"
	"github.com/kandada/aacode/session"
	"github.com/kandada/aacode/todo"
	"github.com/kandada/aacode/tools"
)

// Status is the terminal state of a Run.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusMaxIterations   Status = "max_iterations_reached"
	StatusError           Status = "error"
	StatusCancelled       Status = "cancelled"
)

// Outcome is what Run returns.
type Outcome struct {
	Status       Status
	FinalThought string
	Iterations   int
	TotalTime    time.Duration
	Err          error
	Steps        []parser.Step
}

// Config tunes the loop.
type Config struct {
	MaxIterations       int
	MaxRetries          int
	CompactTriggerToken int
	ToolTimeout         time.Duration
	CompletionTimeout   time.Duration
}

// DefaultConfig matches the original system's defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       50,
		MaxRetries:          3,
		CompactTriggerToken: 8000,
		ToolTimeout:         60 * time.Second,
		CompletionTimeout:   30 * time.Second,
	}
}

// retryableErrorKeywords mark an observation as worth retrying rather
// than surfacing immediately.
var retryableErrorKeywords = []string{"timeout", "connection", "temporary", "暂时"}

// errorKeywords flag an observation as a failure for completion-check and
// logging purposes.
var errorKeywords = []string{
	"error", "exception", "traceback", "failed", "failure",
	"错误", "异常", "失败",
	"importerror", "syntaxerror", "nameerror", "typeerror", "valueerror", "attributeerror",
}

// finalActions are action names that unconditionally signal completion.
var finalActions = map[string]bool{"finalize": true, "complete_task": true, "finish": true}

// subtaskActions are reported to the Observer as sub-agent activity
// rather than as ordinary tool calls.
var subtaskActions = map[string]bool{"dispatch_subtask": true, "check_subtask_status": true}

// Observer receives a live narration of one Run, for a caller that wants
// to stream progress to a terminal rather than wait silently for Outcome.
// All methods are optional no-ops when Observer is nil.
type Observer interface {
	OnThought(thought string)
	OnAction(name string, input map[string]any)
	OnObservation(name string, observation string)
}

// Driver owns one task run's components.
type Driver struct {
	cfg       Config
	caller    llm.Caller
	registry  *tools.Registry
	ctxStore  *contextstore.Store
	sessions  *session.Store
	todos     *todo.Manager
	logger    *eventlog.Logger
	compactor *compactor.Compactor
	subtasks  *SubtaskManager // nil unless EnableSubtasks was called
	observer  Observer        // nil unless SetObserver was called

	recentObservations []string // last 3 action observations, most recent last
}

// New wires a Driver from its components.
func New(cfg Config, caller llm.Caller, registry *tools.Registry, ctxStore *contextstore.Store, sessions *session.Store, todos *todo.Manager, logger *eventlog.Logger, comp *compactor.Compactor) *Driver {
	return &Driver{cfg: cfg, caller: caller, registry: registry, ctxStore: ctxStore, sessions: sessions, todos: todos, logger: logger, compactor: comp}
}

// SetObserver attaches a progress observer; pass nil to detach it.
func (d *Driver) SetObserver(o Observer) {
	d.observer = o
}

// Run drives the ReAct loop for one task until completion, cancellation,
// or exhausting the iteration budget.
func (d *Driver) Run(ctx context.Context, taskDescription string) Outcome {
	start := time.Now()

	taskID, err := d.logger.StartTask("", taskDescription)
	if err != nil {
		return Outcome{Status: StatusError, Err: err}
	}

	systemPrompt := d.buildSystemPrompt()
	initialContext := d.ctxStore.GetContext()
	initialUserMessage := fmt.Sprintf(
		"Task: %s\n\nCurrent context:\n%s\n\nRespond with Thought then Action (do not output Observation — the system executes tools and supplies real results).",
		taskDescription, initialContext)

	// CreateSession seeds both halves of the canonical two-message start
	// state ([system_prompt, initial_user_task]) in one place, so the
	// compactor's header partition always lines up with reality.
	if _, err := d.sessions.CreateSession(systemPrompt, initialUserMessage, taskDescription); err != nil {
		return Outcome{Status: StatusError, Err: err}
	}

	var finalThought string
	var steps []parser.Step
	status := StatusMaxIterations
	iteration := 0

	for ; iteration < d.cfg.MaxIterations; iteration++ {
		select {
		case <-ctx.Done():
			d.logger.FinishTask(string(StatusCancelled), iteration, time.Since(start), nil)
			return Outcome{Status: StatusCancelled, Iterations: iteration, TotalTime: time.Since(start), Err: ctx.Err(), Steps: steps}
		default:
		}

		iterStart := time.Now()
		messages := d.currentMessages()

		modelStart := time.Now()
		response, err := d.caller.CallModel(ctx, messages)
		modelTime := time.Since(modelStart)
		if err != nil {
			d.logger.LogError("model_call_failure", err.Error(), nil)
			d.logger.FinishTask(string(StatusError), iteration, time.Since(start), nil)
			return Outcome{Status: StatusError, Iterations: iteration, TotalTime: time.Since(start), Err: err, Steps: steps}
		}
		d.logger.LogModelCall(messages, response, modelTime, eventlog.ModelInfo{Provider: "", Model: ""})

		result := parser.Parse(response)
		finalThought = result.Thought
		steps = append(steps, parser.Step{Thought: result.Thought, Actions: result.Actions, Timestamp: iterStart})
		d.updateTodoFromThought(result.Thought)
		if d.observer != nil && result.Thought != "" {
			d.observer.OnThought(result.Thought)
		}

		firstAction := ""
		if len(result.Actions) > 0 {
			firstAction = result.Actions[0].Action
		}
		if d.isTaskCompleted(ctx, result.Thought, firstAction, taskDescription) {
			d.logger.LogIteration(iteration+1, result.Thought, "", nil, "", time.Since(iterStart))
			d.logger.FinishTask(string(StatusCompleted), iteration+1, time.Since(start), map[string]any{"final_thought": result.Thought})
			return Outcome{Status: StatusCompleted, FinalThought: result.Thought, Iterations: iteration + 1, TotalTime: time.Since(start), Steps: steps}
		}

		observations := d.executeActions(ctx, result.Actions)
		combined := make([]string, len(observations))
		for i, obs := range observations {
			combined[i] = fmt.Sprintf("Action %d result: %s", i+1, obs)
		}
		observation := strings.Join(combined, "\n")

		d.recordRecentObservations(observations)

		d.logger.LogIteration(iteration+1, result.Thought, joinActionNames(result.Actions), map[string]any{"count": len(result.Actions)}, observation, time.Since(iterStart))

		d.ctxStore.Update(observation)

		d.sessions.AddMessage(session.RoleAssistant, response, nil)
		d.sessions.AddMessage(session.RoleUser, fmt.Sprintf("Observation: %s\n\nContinue...", observation), nil)

		if d.sessions.TotalTokens() > d.cfg.CompactTriggerToken {
			d.runCompaction(ctx, iteration, steps)
		}
	}

	d.logger.FinishTask(string(status), d.cfg.MaxIterations, time.Since(start), map[string]any{"last_thought": finalThought})
	return Outcome{Status: status, FinalThought: finalThought, Iterations: d.cfg.MaxIterations, TotalTime: time.Since(start), Steps: steps}
}

func (d *Driver) currentMessages() []llm.Message {
	sess := d.sessions.Current()
	if sess == nil {
		return nil
	}
	out := make([]llm.Message, len(sess.Messages))
	for i, m := range sess.Messages {
		out[i] = llm.Message{Role: llm.Role(m.Role), Content: m.Content}
	}
	return out
}

func (d *Driver) runCompaction(ctx context.Context, iteration int, steps []parser.Step) {
	sess := d.sessions.Current()
	if sess == nil {
		return
	}
	compacted, err := d.compactor.Compact(ctx, sess.Messages, steps)
	if err != nil {
		d.logger.LogError("compaction_failure", err.Error(), nil)
		return
	}
	if err := d.sessions.ReplaceMessages(compacted); err != nil {
		d.logger.LogError("compaction_apply_failure", err.Error(), nil)
		return
	}
	d.logger.LogContextUpdate("compact", fmt.Sprintf("reduced context after iteration %d", iteration+1))
}

// executeActions runs every action sequentially (spec.md §5 fixes
// sequential-only execution — actions within one iteration never run in
// parallel), retrying retryable-looking observations up to MaxRetries
// times with a 1-second delay between attempts.
func (d *Driver) executeActions(ctx context.Context, actions []parser.ActionItem) []string {
	observations := make([]string, len(actions))
	for i, action := range actions {
		if d.observer != nil {
			d.observer.OnAction(action.Action, action.Input)
		}

		start := time.Now()
		observation, _ := d.executeWithRetry(ctx, action)
		observations[i] = observation

		success := !looksLikeError(observation)
		d.logger.LogToolCall(action.Action, action.Input, observation, time.Since(start), success, errIfFailed(success, observation))

		if d.observer != nil {
			d.observer.OnObservation(action.Action, observation)
		}

		d.updateTodoFromError(observation)
	}
	return observations
}

func (d *Driver) executeWithRetry(ctx context.Context, action parser.ActionItem) (string, int) {
	maxRetries := d.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var observation string
	for retry := 0; retry < maxRetries; retry++ {
		observation = d.executeOne(ctx, action)
		timedOut := observation == "执行超时"
		if !timedOut && !looksLikeError(observation) {
			return observation, retry
		}
		if !timedOut && !isRetryable(observation) {
			return observation, retry
		}
		if retry < maxRetries-1 {
			select {
			case <-ctx.Done():
				return observation, retry
			case <-time.After(time.Second):
			}
		}
	}
	return observation, maxRetries - 1
}

func (d *Driver) executeOne(ctx context.Context, action parser.ActionItem) string {
	if errMsg, ok := action.Input["_error"]; ok {
		return fmt.Sprintf("could not parse action input: %v", errMsg)
	}

	valid, errMsg, warning := d.registry.ValidateCall(action.Action, action.Input)
	if !valid {
		return errMsg
	}
	if warning != "" {
		d.logger.LogError("validation_warning", warning, map[string]any{"action": action.Action})
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()

	res, err := d.registry.Execute(timeoutCtx, action.Action, action.Input)
	if timeoutCtx.Err() != nil {
		return "执行超时"
	}
	if err != nil {
		return fmt.Sprintf("tool execution error: %v", err)
	}
	if !res.Success {
		if res.Error != "" {
			return res.Error
		}
		return "tool reported failure with no message"
	}
	return res.Output
}

func looksLikeError(observation string) bool {
	lower := strings.ToLower(observation)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func errIfFailed(success bool, observation string) string {
	if success {
		return ""
	}
	return observation
}

func isRetryable(observation string) bool {
	lower := strings.ToLower(observation)
	for _, kw := range retryableErrorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func joinActionNames(actions []parser.ActionItem) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Action
	}
	return strings.Join(names, ", ")
}

func (d *Driver) recordRecentObservations(observations []string) {
	d.recentObservations = append(d.recentObservations, observations...)
	if len(d.recentObservations) > 3 {
		d.recentObservations = d.recentObservations[len(d.recentObservations)-3:]
	}
}

func (d *Driver) hasRecentErrors() bool {
	for _, obs := range d.recentObservations {
		if looksLikeError(obs) {
			return true
		}
	}
	return false
}

// isTaskCompleted decides whether an iteration with no further action (or
// an explicit finalize/complete_task/finish action) really ends the task.
// With no action, a recent error short-circuits to "not complete"; absent
// that, the model is asked a single YES/NO question.
func (d *Driver) isTaskCompleted(ctx context.Context, thought, firstAction, taskDescription string) bool {
	if firstAction != "" {
		return finalActions[strings.ToLower(firstAction)]
	}

	if d.hasRecentErrors() {
		return false
	}

	prompt := fmt.Sprintf(`Judge whether the following task has truly been completed.

Original task: %s

Current thought: %s

Recent execution context:
%s

Judge strictly:
1. Has the task's core goal actually been achieved (e.g. if asked to write a scraper, was the scraper both written AND tested)?
2. Is this only a sub-step (e.g. "marked a todo item complete" does not count as the task)?
3. Is it explicit that the entire task is done with nothing further needed?
4. If recent execution shows errors, the task is not complete.
5. If code was written but never actually run and verified, the task is not complete.

Answer only "YES" or "NO":
- YES: the whole task is complete, tested, and error-free.
- NO: the task is not complete, has errors to fix, or only a sub-step finished.

Answer:`, taskDescription, thought, strings.Join(d.recentObservations, "\n"))

	timeoutCtx, cancel := context.WithTimeout(ctx, d.cfg.CompletionTimeout)
	defer cancel()

	resp, err := d.caller.CallModel(timeoutCtx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return !d.hasRecentErrors()
	}

	upper := strings.ToUpper(strings.TrimSpace(resp))
	if len(upper) > 10 {
		upper = upper[:10]
	}
	return strings.Contains(upper, "YES")
}

func (d *Driver) updateTodoFromThought(thought string) {
	if d.todos == nil || thought == "" {
		return
	}
	lower := strings.ToLower(thought)
	if strings.Contains(lower, "completed") || strings.Contains(lower, "done") || strings.Contains(lower, "finished") {
		d.todos.AddExecutionRecord(truncate(thought, 80))
	}
}

func (d *Driver) updateTodoFromError(observation string) {
	if d.todos == nil || !looksLikeError(observation) {
		return
	}
	d.todos.AddExecutionRecord("error encountered: " + truncate(observation, 60))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (d *Driver) buildSystemPrompt() string {
	var todoSection string
	if d.todos != nil {
		if summary, err := d.todos.GetTodoSummary(); err == nil {
			todoSection = fmt.Sprintf(`

## Todo list
A todo file is tracking this task: %s
Pending: %d, Completed: %d.
Reference and update it as you work: mark items complete when finished, add new items when you discover more work, and leave a short execution record each iteration.`,
				summary.File, summary.Pending, summary.Completed)
		}
	}

	toolDocs := strings.Join(d.registry.Names(), ", ")

	return fmt.Sprintf(`You are an autonomous coding assistant working in this project directory.%s

Available tools: %s

Output format (important):
Each reply should contain only:
1. Thought: your reasoning
2. Action: the tool to invoke
3. Action Input: the tool's parameters (JSON)

Do not output an Observation — the system executes the tool and supplies the real result.
You may issue one or more actions per reply.

Example:
Thought: I need to read the config file to understand the project setup
Action: read_file
Action Input: {"path": "config.go"}

Keep iterating until the task is verifiably done: write code, then run it or test it immediately.
If a test or run fails, do not stop — diagnose, fix, and retry.
Do not declare the task finished until it has actually been run and verified.`,
		todoSection, toolDocs)
}
