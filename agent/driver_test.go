package agent

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kandada/aacode/compactor"
	"github.com/kandada/aacode/contextstore"
	"github.com/kandada/aacode/eventlog"
	"github.com/kandada/aacode/llm"
	"github.com/kandada/aacode/session"
	"github.com/kandada/aacode/todo"
	"github.com/kandada/aacode/tools"
)

type scriptedCaller struct {
	responses []string
	calls     int32
}

func (s *scriptedCaller) CallModel(ctx context.Context, messages []llm.Message) (string, error) {
	i := atomic.AddInt32(&s.calls, 1) - 1
	if int(i) >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[i], nil
}

func newTestDriver(t *testing.T, caller llm.Caller) (*Driver, string) {
	t.Helper()
	dir := t.TempDir()

	ctxStore, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := session.NewStore(dir, 200000)
	if err != nil {
		t.Fatal(err)
	}
	todos, err := todo.New(dir, 20)
	if err != nil {
		t.Fatal(err)
	}
	logger, err := eventlog.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	archive, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	comp := compactor.New(compactor.DefaultConfig(), caller, archive)

	registry := tools.New()
	registry.Register(tools.WriteSchema, tools.NewWriteTool(dir))
	registry.Register(tools.ReadSchema, tools.NewReadTool(dir))

	d := New(DefaultConfig(), caller, registry, ctxStore, sessions, todos, logger, comp)
	return d, dir
}

func TestRunCompletesOnEmptyAction(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`{"thought":"wrote the file", "actions":[{"action":"write_file","action_input":{"path":"hello.txt","content":"hi"}}]}`,
		`{"thought":"all done, task is finished"}`,
		"YES",
	}}
	d, _ := newTestDriver(t, caller)

	outcome := d.Run(context.Background(), "create hello.txt containing hi")
	if outcome.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %s (err=%v)", outcome.Status, outcome.Err)
	}
	if outcome.Iterations != 2 {
		t.Fatalf("expected 2 iterations, got %d", outcome.Iterations)
	}
}

func TestIsRetryableMatchesKnownKeywords(t *testing.T) {
	cases := map[string]bool{
		"connection reset by peer": true,
		"operation timeout":        true,
		"暂时无法连接":                   true,
		"permission denied":        false,
	}
	for obs, want := range cases {
		if got := isRetryable(obs); got != want {
			t.Errorf("isRetryable(%q) = %v, want %v", obs, got, want)
		}
	}
}

func TestLooksLikeErrorMatchesKnownKeywords(t *testing.T) {
	if !looksLikeError("Traceback (most recent call last): NameError: x is not defined") {
		t.Fatal("expected a Python traceback to be flagged as an error observation")
	}
	if looksLikeError("wrote 12 bytes to hello.txt") {
		t.Fatal("expected a plain success message not to be flagged as an error")
	}
}

func TestRunRespectsMaxIterations(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`{"thought":"keep going", "actions":[{"action":"write_file","action_input":{"path":"a.txt","content":"x"}}]}`,
	}}
	d, dir := newTestDriver(t, caller)
	d.cfg.MaxIterations = 2

	outcome := d.Run(context.Background(), "loop forever")
	if outcome.Status != StatusMaxIterations {
		t.Fatalf("expected max_iterations_reached, got %s", outcome.Status)
	}
	if outcome.Iterations != 2 {
		t.Fatalf("expected exactly 2 iterations, got %d", outcome.Iterations)
	}
	_ = dir
}

func TestIsTaskCompletedHonorsRecentErrors(t *testing.T) {
	caller := &scriptedCaller{}
	d, _ := newTestDriver(t, caller)
	d.recentObservations = []string{"error: something failed"}

	if d.isTaskCompleted(context.Background(), "i think it's done", "", "some task") {
		t.Fatal("expected recent errors to short-circuit completion to false")
	}
}

func TestIsTaskCompletedHonorsFinalAction(t *testing.T) {
	d, _ := newTestDriver(t, &scriptedCaller{})
	if !d.isTaskCompleted(context.Background(), "wrapping up", "finalize", "some task") {
		t.Fatal("expected an explicit finalize action to signal completion")
	}
}

func TestToolNotFoundSurfacesAsObservationAndBlocksCompletion(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`{"thought":"use a nonexistent tool", "actions":[{"action":"frobnicate","action_input":{}}]}`,
		`{"thought":"done"}`,
	}}
	d, _ := newTestDriver(t, caller)
	d.cfg.MaxIterations = 2

	outcome := d.Run(context.Background(), "do something impossible")
	// A recent unknown-tool observation is itself an error marker, so the
	// no-action completion check short-circuits to "not complete" and the
	// run exhausts its iteration budget instead of finishing.
	if outcome.Status != StatusMaxIterations {
		t.Fatalf("expected the unresolved tool error to block completion, got %s (err=%v)", outcome.Status, outcome.Err)
	}
}

func TestRunCancellation(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`{"thought":"working", "actions":[{"action":"write_file","action_input":{"path":"a.txt","content":"x"}}]}`,
	}}
	d, _ := newTestDriver(t, caller)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := d.Run(ctx, "some task")
	if outcome.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", outcome.Status)
	}
}

func TestTruncateRespectsShortStrings(t *testing.T) {
	if truncate("short", 80) != "short" {
		t.Fatal("expected short strings to pass through unchanged")
	}
	if got := truncate(strings.Repeat("x", 100), 10); len(got) != 10 {
		t.Fatalf("expected truncation to 10 chars, got %d", len(got))
	}
}

func TestRunRecordsStepHistory(t *testing.T) {
	caller := &scriptedCaller{responses: []string{
		`{"thought":"wrote the file", "actions":[{"action":"write_file","action_input":{"path":"hello.txt","content":"hi"}}]}`,
		`{"thought":"all done, task is finished"}`,
		"YES",
	}}
	d, _ := newTestDriver(t, caller)

	outcome := d.Run(context.Background(), "create hello.txt containing hi")
	if len(outcome.Steps) != 2 {
		t.Fatalf("expected 2 recorded steps, got %d", len(outcome.Steps))
	}
	if outcome.Steps[0].Thought != "wrote the file" {
		t.Fatalf("unexpected first step thought: %q", outcome.Steps[0].Thought)
	}
	if len(outcome.Steps[0].Actions) != 1 || outcome.Steps[0].Actions[0].Action != "write_file" {
		t.Fatalf("expected first step to carry the write_file action, got %v", outcome.Steps[0].Actions)
	}
	if outcome.Steps[1].Thought != "all done, task is finished" {
		t.Fatalf("unexpected second step thought: %q", outcome.Steps[1].Thought)
	}
}

func TestBuildSystemPromptListsTools(t *testing.T) {
	d, _ := newTestDriver(t, &scriptedCaller{})
	prompt := d.buildSystemPrompt()
	if !strings.Contains(prompt, "write_file") || !strings.Contains(prompt, "read_file") {
		t.Fatalf("expected tool names in system prompt, got %q", prompt)
	}
}
