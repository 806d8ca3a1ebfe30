// Package ui provides terminal output formatting, colorized diffs, user prompts,
// and all user-facing display logic.
package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kandada/aacode/session"
)

// ANSI color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"
	White   = "\033[97m"
)

// Terminal handles all user-facing output.
type Terminal struct {
	color bool
}

// NewTerminal creates a terminal with color detection.
func NewTerminal() *Terminal {
	return &Terminal{
		color: isTerminal(),
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (t *Terminal) c(code, text string) string {
	if !t.color {
		return text
	}
	return code + text + Reset
}

// PrintBanner prints the startup banner.
func (t *Terminal) PrintBanner(model, workDir, version string) {
	banner := `
  ____  ____  ____  ____
 / __ \/ __ \/ ___/ __ \
/ /_/ / /_/ / /__/ /_/ /
\__,_/\__,_/\___/\____/
`
	fmt.Print(t.c(Bold+Cyan, banner))

	versionStr := ""
	if version != "" && version != "dev" {
		versionStr = " v" + version
	}

	fmt.Println(t.c(Bold+White, "ReAct Orchestration Core") + t.c(Gray, versionStr))
	fmt.Println()
	fmt.Println(t.c(Gray, "  Model:   ") + t.c(Cyan, model))
	fmt.Println(t.c(Gray, "  Dir:     ") + t.c(White, workDir))
	fmt.Println()
	fmt.Println(t.c(Gray, "  Type ") + t.c(Cyan, "/help") + t.c(Gray, " for commands"))
	fmt.Println()
}

// Prompt returns the formatted prompt string.
func (t *Terminal) Prompt() string {
	return t.c(Bold+Blue, "> ")
}

// PrintPrompt prints the input prompt.
func (t *Terminal) PrintPrompt() {
	fmt.Print(t.Prompt())
}

// ReadLine reads a line of input using standard buffered I/O.
// The OS terminal handles line editing (arrow keys, Home/End, backspace).
func (t *Terminal) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PrintAssistant prints assistant text.
func (t *Terminal) PrintAssistant(text string) {
	fmt.Print(text)
}

// PrintAssistantDone signals end of assistant output.
func (t *Terminal) PrintAssistantDone() {
	fmt.Println()
	fmt.Println()
}

// PrintToolCall prints a tool invocation.
func (t *Terminal) PrintToolCall(name string, args string) {
	fmt.Println(t.c(Yellow, fmt.Sprintf("  ↳ %s", name)) + t.c(Gray, fmt.Sprintf(" %s", truncate(args, 100))))
}

// PrintToolResult prints a tool's result (truncated).
func (t *Terminal) PrintToolResult(result string) {
	lines := strings.Split(result, "\n")
	if len(lines) > 5 {
		for _, line := range lines[:5] {
			fmt.Println(t.c(Gray, "    "+truncate(line, 120)))
		}
		fmt.Println(t.c(Gray, fmt.Sprintf("    ... (%d more lines)", len(lines)-5)))
	} else {
		for _, line := range lines {
			fmt.Println(t.c(Gray, "    "+truncate(line, 120)))
		}
	}
}

// PrintSubAgentToolCall prints a sub-agent's tool invocation with deeper indentation.
func (t *Terminal) PrintSubAgentToolCall(name string, args string) {
	fmt.Println(t.c(Dim+Yellow, fmt.Sprintf("      ↳ %s", name)) + t.c(Gray, fmt.Sprintf(" %s", truncate(args, 80))))
}

// PrintSubAgentStatus prints a sub-agent status line.
func (t *Terminal) PrintSubAgentStatus(msg string) {
	fmt.Println(t.c(Gray, "      "+msg))
}

// PrintError prints an error message.
func (t *Terminal) PrintError(err error) {
	fmt.Fprintln(os.Stderr, t.c(Red, "Error: "+err.Error()))
	fmt.Println()
}

// PrintWarning prints a warning message.
func (t *Terminal) PrintWarning(msg string) {
	fmt.Println(t.c(Yellow, "Warning: "+msg))
}

// PrintSpinner prints a thinking indicator.
func (t *Terminal) PrintSpinner() {
	fmt.Print(t.c(Gray, "  thinking..."))
}

// ClearSpinner clears the thinking indicator.
func (t *Terminal) ClearSpinner() {
	fmt.Print("\r\033[K")
}

// PrintHelp prints all available slash commands.
func (t *Terminal) PrintHelp() {
	fmt.Println(t.c(Bold, "Commands"))
	fmt.Println(t.c(Cyan, "  /help   ") + " Show this help message")
	fmt.Println(t.c(Cyan, "  /compact") + " Compact conversation (LLM summarizes history)")
	fmt.Println(t.c(Cyan, "  /clear  ") + " Clear conversation history")
	fmt.Println(t.c(Cyan, "  /context") + " Show context window usage")
	fmt.Println(t.c(Cyan, "  /tasks  ") + " Show current task list")
	fmt.Println(t.c(Cyan, "  /resume ") + " Resume a previous session")
	fmt.Println(t.c(Cyan, "  /quit   ") + " Exit")
	fmt.Println()
}

// PrintContextUsage prints context usage statistics.
func (t *Terminal) PrintContextUsage(total, window, threshold, msgCount, systemTokens, toolDefTokens, messageTokens, actualTokens int) {
	fmt.Println(t.c(Bold, "Context Usage"))
	if actualTokens > 0 {
		pct := 0.0
		if window > 0 {
			pct = float64(actualTokens) / float64(window) * 100
		}
		fmt.Printf("  Tokens: %s / %s (%.1f%%)\n", formatNum(actualTokens), formatNum(window), pct)
		fmt.Printf("  Compact at: %s (80%%)\n", formatNum(threshold))
		fmt.Printf("  Messages: %d\n", msgCount)
	} else {
		pct := 0.0
		if window > 0 {
			pct = float64(total) / float64(window) * 100
		}
		fmt.Printf("  Tokens: ~%s / %s (~%.1f%%)\n", formatNum(total), formatNum(window), pct)
		fmt.Printf("  Compact at: %s (80%%)\n", formatNum(threshold))
		fmt.Println()
		fmt.Printf("    %s\n", t.c(Bold, "Breakdown (estimated):"))
		fmt.Printf("      %s  ~%s tokens\n", t.c(Gray, "System prompt   "), formatNum(systemTokens))
		fmt.Printf("      %s  ~%s tokens\n", t.c(Yellow, "Tool definitions"), formatNum(toolDefTokens))
		fmt.Printf("      %s  ~%s tokens\n", t.c(Cyan, fmt.Sprintf("Messages (%d)   ", msgCount)), formatNum(messageTokens))
	}
	fmt.Println()
}

func formatNum(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%d,%03d", n/1000, n%1000)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// SessionListItem represents a session entry for display.
type SessionListItem struct {
	ID       string
	Updated  time.Time
	Preview  string
	MsgCount int
}

// PrintSessionList displays a numbered list of recent sessions.
func (t *Terminal) PrintSessionList(items []SessionListItem) {
	fmt.Println(t.c(Bold, "Recent sessions:"))
	for i, item := range items {
		age := formatAge(item.Updated)
		preview := item.Preview
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		fmt.Printf("  %s  %s  %s  %s\n",
			t.c(Cyan, fmt.Sprintf("[%d]", i+1)),
			t.c(Gray, fmt.Sprintf("%-8s", age)),
			t.c(White, fmt.Sprintf("%q", preview)),
			t.c(Gray, fmt.Sprintf("(%d messages)", item.MsgCount)),
		)
	}
	fmt.Println(t.c(Gray, "  Ctrl+C to cancel"))
	fmt.Println()
}

// PrintSessionResumed prints a confirmation after resuming a session.
func (t *Terminal) PrintSessionResumed(msgCount int, preview string) {
	if len(preview) > 60 {
		preview = preview[:60] + "..."
	}
	fmt.Println(t.c(Green, fmt.Sprintf("Resumed session: %q (%d messages)", preview, msgCount)))
	fmt.Println()
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// PrintConversationHistory replays a resumed session's messages.
func (t *Terminal) PrintConversationHistory(messages []session.Message) {
	fmt.Println(t.c(Gray, "--- Conversation history ---"))
	fmt.Println()
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			continue
		case session.RoleUser:
			if msg.Content != "" {
				fmt.Println(t.c(Bold+Blue, "> ") + msg.Content)
				fmt.Println()
			}
		case session.RoleAssistant:
			if msg.Content != "" {
				t.PrintAssistant(msg.Content)
				t.PrintAssistantDone()
			}
		}
	}
	fmt.Println(t.c(Gray, "--- End of history ---"))
	fmt.Println()
}

// PrintTodoList displays the active todo checklist's raw content.
func (t *Terminal) PrintTodoList(content string, pending, completed int) {
	fmt.Println(t.c(Bold, "Tasks"))
	fmt.Println(content)
	fmt.Printf("  %d pending, %d completed\n", pending, completed)
	fmt.Println()
}
