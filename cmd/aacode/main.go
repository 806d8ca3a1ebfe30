// Command aacode is the REPL entrypoint for the ReAct orchestration core:
// it resolves configuration, wires the session/context/todo/event stores
// together with the tool registry and safety guard, and drives the Driver
// one task per input line until the user quits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kandada/aacode/agent"
	"github.com/kandada/aacode/compactor"
	"github.com/kandada/aacode/config"
	"github.com/kandada/aacode/contextstore"
	"github.com/kandada/aacode/eventlog"
	"github.com/kandada/aacode/llm"
	"github.com/kandada/aacode/safety"
	"github.com/kandada/aacode/session"
	"github.com/kandada/aacode/todo"
	"github.com/kandada/aacode/tools"
	"github.com/kandada/aacode/ui"
)

var version = "dev"

func main() {
	provider := flag.String("provider", "", "LLM provider (openai or anthropic)")
	flag.Parse()

	cfg, err := config.Load(*provider)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	workDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	term := ui.NewTerminal()
	r := newREPL(cfg, workDir, term)
	r.run()
}

type repl struct {
	cfg     *config.Config
	workDir string
	term    *ui.Terminal

	caller    llm.Caller
	guard     *safety.Guard
	registry  *tools.Registry
	ctxStore  *contextstore.Store
	sessions  *session.Store
	todos     *todo.Manager
	logger    *eventlog.Logger
	compactor *compactor.Compactor
	driver    *agent.Driver
	observer  *replObserver
}

func newREPL(cfg *config.Config, workDir string, term *ui.Terminal) *repl {
	r := &repl{cfg: cfg, workDir: workDir, term: term}
	r.caller = newCaller(cfg)
	r.guard = safety.New(workDir)

	var err error
	if r.ctxStore, err = contextstore.New(workDir); err != nil {
		term.PrintError(fmt.Errorf("open context store: %w", err))
		os.Exit(1)
	}
	if r.sessions, err = session.NewStore(workDir, cfg.Driver.MaxSessionTokens); err != nil {
		term.PrintError(fmt.Errorf("open session store: %w", err))
		os.Exit(1)
	}
	if r.todos, err = todo.New(workDir, cfg.Driver.TodoRecordCap); err != nil {
		term.PrintError(fmt.Errorf("open todo manager: %w", err))
		os.Exit(1)
	}
	if r.logger, err = eventlog.New(workDir); err != nil {
		term.PrintError(fmt.Errorf("open event logger: %w", err))
		os.Exit(1)
	}

	r.registry = tools.RegisterAll(workDir, r.guard, r.confirm)
	r.observer = &replObserver{term: term}
	r.compactor = compactor.New(compactor.Config{
		ProtectFirstRounds: cfg.Driver.ProtectFirstRounds,
		KeepRecentRounds:   cfg.Driver.KeepRecentRounds,
		SummaryMaxMessages: 30,
	}, r.caller, r.ctxStore)

	r.driver = agent.New(agent.Config{
		MaxIterations:       cfg.Driver.MaxIterations,
		MaxRetries:          cfg.Driver.MaxRetries,
		CompactTriggerToken: cfg.Driver.CompactTriggerTokens,
		ToolTimeout:         time.Duration(cfg.Driver.ToolTimeoutSeconds) * time.Second,
		CompletionTimeout:   time.Duration(cfg.Driver.CompletionTimeoutSeconds) * time.Second,
	}, r.caller, r.registry, r.ctxStore, r.sessions, r.todos, r.logger, r.compactor)
	r.driver.EnableSubtasks(workDir)
	r.driver.SetObserver(r.observer)

	return r
}

// replObserver streams one Run's thoughts, tool calls, and observations to
// the terminal as they happen, instead of leaving the user staring at a
// spinner until the whole task finishes. Sub-task dispatch/poll calls get
// the indented sub-agent treatment; edit_file/write_file calls get a diff
// or file preview instead of the generic truncated-args line.
type replObserver struct {
	term *ui.Terminal
}

func (o *replObserver) OnThought(thought string) {
	o.term.ClearSpinner()
	o.term.PrintAssistant(thought)
	o.term.PrintAssistantDone()
}

func (o *replObserver) OnAction(name string, input map[string]any) {
	o.term.ClearSpinner()
	switch name {
	case "dispatch_subtask", "check_subtask_status":
		o.term.PrintSubAgentToolCall(name, formatArgs(input))
		return
	case "edit_file":
		path, _ := input["path"].(string)
		oldText, _ := input["old_text"].(string)
		newText, _ := input["new_text"].(string)
		if path != "" {
			o.term.PrintDiff(path, oldText, newText)
			return
		}
	case "write_file":
		path, _ := input["path"].(string)
		content, _ := input["content"].(string)
		if path != "" {
			o.term.PrintFilePreview(path, content)
			return
		}
	}
	o.term.PrintToolCall(name, formatArgs(input))
}

func (o *replObserver) OnObservation(name string, observation string) {
	switch name {
	case "dispatch_subtask", "check_subtask_status":
		o.term.PrintSubAgentStatus(observation)
	default:
		o.term.PrintToolResult(observation)
	}
	o.term.PrintSpinner()
}

func formatArgs(input map[string]any) string {
	parts := make([]string, 0, len(input))
	for k, v := range input {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

func newCaller(cfg *config.Config) llm.Caller {
	if cfg.Provider == "anthropic" {
		return llm.NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.BaseURL)
	}
	return llm.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.BaseURL)
}

// confirm is the Confirmer wired into the run_shell tool.
func (r *repl) confirm(command string, decision safety.Decision) bool {
	fmt.Printf("\nThe assistant wants to run (%s): %s\n", decision.RiskLevel, command)
	return r.term.ConfirmAction("Allow?")
}

func (r *repl) run() {
	r.term.PrintBanner(r.cfg.Model, r.workDir, version)

	reader := bufio.NewReader(os.Stdin)
	for {
		r.term.PrintPrompt()
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if r.handleCommand(line) {
				break
			}
			continue
		}

		r.runTask(line)
	}

	if err := r.driver.WaitForSubtasks(); err != nil {
		r.term.PrintWarning("some sub-agents did not finish cleanly: " + err.Error())
	}
}

func (r *repl) handleCommand(line string) (quit bool) {
	switch {
	case line == "/help":
		r.term.PrintHelp()
	case line == "/quit" || line == "/exit":
		return true
	case line == "/clear":
		if _, err := r.sessions.CreateSession("", "", "new session"); err != nil {
			r.term.PrintError(err)
			return false
		}
		fmt.Println("Conversation cleared.")
		fmt.Println()
	case line == "/compact":
		sess := r.sessions.Current()
		if sess == nil {
			r.term.PrintWarning("no active session")
			return false
		}
		compacted, err := r.compactor.Compact(context.Background(), sess.Messages, nil)
		if err != nil {
			r.term.PrintError(err)
			return false
		}
		if err := r.sessions.ReplaceMessages(compacted); err != nil {
			r.term.PrintError(err)
			return false
		}
		fmt.Printf("Compacted %d messages down to %d.\n\n", len(sess.Messages), len(compacted))
	case line == "/context":
		r.printContextUsage()
	case line == "/tasks":
		r.printTasks()
	case line == "/resume":
		r.resumeSession()
	default:
		r.term.PrintWarning("unknown command: " + line)
	}
	return false
}

func (r *repl) printContextUsage() {
	total := r.sessions.TotalTokens()
	window := r.cfg.ContextWindow
	threshold := window * 80 / 100
	sess := r.sessions.Current()
	msgCount := 0
	if sess != nil {
		msgCount = len(sess.Messages)
	}
	r.term.PrintContextUsage(total, window, threshold, msgCount, 0, 0, total, total)
}

func (r *repl) printTasks() {
	summary, err := r.todos.GetTodoSummary()
	if err != nil {
		r.term.PrintWarning("no active todo list yet")
		return
	}
	data, err := os.ReadFile(summary.File)
	if err != nil {
		r.term.PrintError(err)
		return
	}
	r.term.PrintTodoList(string(data), summary.Pending, summary.Completed)
}

func (r *repl) resumeSession() {
	summaries := r.sessions.ListSessions()
	if len(summaries) == 0 {
		r.term.PrintWarning("no previous sessions")
		return
	}
	items := make([]ui.SessionListItem, len(summaries))
	for i, s := range summaries {
		items[i] = ui.SessionListItem{ID: s.SessionID, Updated: s.LastActivity, Preview: s.Title, MsgCount: s.TotalMessages}
	}
	r.term.PrintSessionList(items)

	fmt.Print("Pick a session number: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	idx, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || idx < 1 || idx > len(summaries) {
		r.term.PrintWarning("invalid selection")
		return
	}

	chosen := summaries[idx-1]
	if err := r.sessions.SwitchSession(chosen.SessionID); err != nil {
		r.term.PrintError(err)
		return
	}
	messages, err := r.sessions.GetMessages(chosen.SessionID)
	if err != nil {
		r.term.PrintError(err)
		return
	}
	r.term.PrintSessionResumed(len(messages), chosen.Title)
	r.term.PrintConversationHistory(messages)
}

// runTask drives one task through the Driver with Ctrl+C scoped to just
// this run: a single interrupt cancels the task, a second interrupt while
// the cancellation is still draining exits the process; outside a run,
// Ctrl+C falls through to the default terminate-process behavior.
func (r *repl) runTask(description string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			r.term.PrintWarning("second interrupt, exiting")
			os.Exit(130)
		case <-ctx.Done():
		}
	}()

	r.term.PrintSpinner()
	outcome := r.driver.Run(ctx, description)
	r.term.ClearSpinner()

	switch outcome.Status {
	case agent.StatusCompleted:
		fmt.Println(outcome.FinalThought)
	case agent.StatusCancelled:
		r.term.PrintWarning("cancelled")
	case agent.StatusMaxIterations:
		r.term.PrintWarning(fmt.Sprintf("reached the %d-iteration limit without a confirmed completion", outcome.Iterations))
	case agent.StatusError:
		r.term.PrintError(outcome.Err)
	}
	fmt.Println()
}
