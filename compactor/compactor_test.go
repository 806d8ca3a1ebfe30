package compactor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kandada/aacode/contextstore"
	"github.com/kandada/aacode/llm"
	"github.com/kandada/aacode/parser"
	"github.com/kandada/aacode/session"
)

type stubCaller struct {
	response string
	err      error
}

func (s stubCaller) CallModel(ctx context.Context, messages []llm.Message) (string, error) {
	return s.response, s.err
}

func buildMessages(n int) []session.Message {
	msgs := []session.Message{
		{Role: session.RoleSystem, Content: "system prompt"},
		{Role: session.RoleUser, Content: "initial task"},
	}
	for i := 0; i < n; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		msgs = append(msgs, session.Message{Role: role, Content: "message body", Timestamp: time.Now()})
	}
	return msgs
}

func TestCompactLeavesSmallHistoryUntouched(t *testing.T) {
	dir := t.TempDir()
	archive, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	c := New(DefaultConfig(), stubCaller{}, archive)

	msgs := buildMessages(4)
	out, err := c.Compact(context.Background(), msgs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(msgs) {
		t.Fatalf("expected untouched history, got %d messages", len(out))
	}
}

func TestCompactProducesThreePartSummary(t *testing.T) {
	dir := t.TempDir()
	archive, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	resp := `{"file_content_summary": "read config.go", "tool_execution_summary": "ran tests, all passed", "keep_original_summary": "remember to use UTC"}`
	c := New(Config{ProtectFirstRounds: 1, KeepRecentRounds: 2, SummaryMaxMessages: 30}, stubCaller{response: resp}, archive)

	msgs := buildMessages(20)
	out, err := c.Compact(context.Background(), msgs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) >= len(msgs) {
		t.Fatalf("expected a shorter history, got %d >= %d", len(out), len(msgs))
	}

	var summary string
	for _, m := range out {
		if strings.Contains(m.Content, "File activity") {
			summary = m.Content
		}
	}
	if summary == "" {
		t.Fatal("expected a summary message in the compacted output")
	}
	if !strings.Contains(summary, "read config.go") || !strings.Contains(summary, "ran tests") {
		t.Fatalf("expected model-provided summary text, got %q", summary)
	}
}

func TestCompactFallsBackOnModelError(t *testing.T) {
	dir := t.TempDir()
	archive, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	c := New(Config{ProtectFirstRounds: 1, KeepRecentRounds: 2, SummaryMaxMessages: 30}, stubCaller{err: errors.New("model unavailable")}, archive)

	msgs := buildMessages(20)
	out, err := c.Compact(context.Background(), msgs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) >= len(msgs) {
		t.Fatalf("expected fallback summary to still shorten history, got %d messages", len(out))
	}
}

func TestCompactArchivesStepHistoryAndReferencesIt(t *testing.T) {
	dir := t.TempDir()
	archive, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	resp := `{"file_content_summary": "", "tool_execution_summary": "ran tests", "keep_original_summary": ""}`
	c := New(Config{ProtectFirstRounds: 1, KeepRecentRounds: 2, SummaryMaxMessages: 30}, stubCaller{response: resp}, archive)

	steps := []parser.Step{
		{Thought: "first thought", Actions: []parser.ActionItem{{Action: "read_file", Input: map[string]any{"path": "a.go"}}}, Timestamp: time.Now()},
		{Thought: "second thought", Actions: nil, Timestamp: time.Now()},
	}

	msgs := buildMessages(20)
	out, err := c.Compact(context.Background(), msgs, steps)
	if err != nil {
		t.Fatal(err)
	}

	var summary string
	for _, m := range out {
		if strings.Contains(m.Content, "Step history") {
			summary = m.Content
		}
	}
	if summary == "" {
		t.Fatal("expected a step history section in the compacted summary")
	}
	if !strings.Contains(summary, "2 prior thought/action steps archived at") {
		t.Fatalf("expected summary to reference the step archive, got %q", summary)
	}
}

func TestArchiveLargeContentReplacesFencedBlocks(t *testing.T) {
	dir := t.TempDir()
	archive, err := contextstore.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	c := New(DefaultConfig(), stubCaller{}, archive)

	big := strings.Repeat("x", 600)
	msgs := []session.Message{{Role: session.RoleAssistant, Content: "```\n" + big + "\n```"}}
	out := c.archiveLargeContent(context.Background(), msgs)
	if !strings.Contains(out[0].Content, "[archived content]") {
		t.Fatalf("expected fenced block to be archived, got %q", out[0].Content)
	}
}
