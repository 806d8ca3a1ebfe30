// Package compactor implements the driver-level context reduction pass:
// once a session's token count crosses compact_trigger_tokens, it
// partitions the message history into protected-first-rounds,
// summarize-candidate middle rounds, and keep-recent rounds, archives any
// large blob content in the middle rounds, asks the model for a
// three-part categorized summary, and reassembles a shorter message list.
//
// This is distinct from session.Store's own compactLocal: that is a
// cheap, local, non-LLM fallback triggered only at the hard token
// ceiling. This package is the primary, model-assisted reduction path and
// runs at a much lower trigger threshold so the ceiling fallback rarely
// fires in practice.
package compactor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kandada/aacode/contextstore"
	"github.com/kandada/aacode/llm"
	"github.com/kandada/aacode/parser"
	"github.com/kandada/aacode/session"
)

// Config tunes the partition boundaries.
type Config struct {
	ProtectFirstRounds int
	KeepRecentRounds   int
	SummaryMaxMessages int
}

// DefaultConfig matches the original system's defaults.
func DefaultConfig() Config {
	return Config{ProtectFirstRounds: 3, KeepRecentRounds: 8, SummaryMaxMessages: 30}
}

// Compactor reduces a session's message history using a model call.
type Compactor struct {
	cfg     Config
	caller  llm.Caller
	archive *contextstore.Store
}

// New returns a Compactor that archives large content via store and
// summarizes via caller.
func New(cfg Config, caller llm.Caller, archive *contextstore.Store) *Compactor {
	return &Compactor{cfg: cfg, caller: caller, archive: archive}
}

const largeContentThreshold = 500

var fencedBlockPattern = regexp.MustCompile("(?s)```.{500,}?```")

// Compact returns a reduced copy of messages; the input slice is not
// modified. messages[0]
// and messages[1] are treated as the system prompt and the initial task
// message and are always kept; everything else is partitioned into
// first rounds (protected), middle rounds (summarized and archived), and
// recent rounds (kept verbatim). steps is the full Step history accumulated
// so far by the driver; it is archived to disk before the messages are
// summarized, and the archive path is folded into the synthetic summary so
// the model can still recover exact past thoughts/actions if it needs to.
func (c *Compactor) Compact(ctx context.Context, messages []session.Message, steps []parser.Step) ([]session.Message, error) {
	const headerCount = 2
	if len(messages) <= headerCount {
		return messages, nil
	}

	system := messages[:headerCount]
	rest := messages[headerCount:]

	firstCount := c.cfg.ProtectFirstRounds * 2
	recentCount := c.cfg.KeepRecentRounds * 2
	if firstCount > len(rest) {
		firstCount = len(rest)
	}

	firstRounds := rest[:firstCount]
	var recent []session.Message
	var middle []session.Message
	if recentCount >= len(rest)-firstCount {
		recent = rest[firstCount:]
	} else {
		middleEnd := len(rest) - recentCount
		middle = rest[firstCount:middleEnd]
		recent = rest[middleEnd:]
	}

	if len(middle) == 0 {
		return messages, nil
	}

	middle = c.archiveLargeContent(ctx, middle)
	stepArchivePath := c.archiveSteps(steps)

	summaries, err := c.generateSummary(ctx, middle)
	if err != nil {
		summaries = fallbackSummary(middle)
	}

	summaryMsg := session.Message{
		Role:      session.RoleSystem,
		Content:   renderSummary(summaries, len(middle), len(steps), stepArchivePath),
		Timestamp: time.Now(),
	}

	out := make([]session.Message, 0, len(system)+len(firstRounds)+1+len(recent))
	out = append(out, system...)
	out = append(out, firstRounds...)
	out = append(out, summaryMsg)
	out = append(out, recent...)
	return out, nil
}

// archiveLargeContent replaces long fenced code blocks (and, failing
// that, any message body over 1500 chars) with a short archived-content
// reference, keeping the actual bytes on disk via the context store.
func (c *Compactor) archiveLargeContent(ctx context.Context, messages []session.Message) []session.Message {
	out := make([]session.Message, len(messages))
	copy(out, messages)

	for i, msg := range out {
		if strings.Contains(msg.Content, "[archived]") || strings.Contains(msg.Content, "archive path:") {
			continue
		}
		if len(msg.Content) <= largeContentThreshold {
			continue
		}

		content := msg.Content
		modified := false

		for _, block := range fencedBlockPattern.FindAllString(content, -1) {
			name := fmt.Sprintf("compacted_block_%d_%d.txt", i, time.Now().UnixNano())
			savedPath, err := c.archive.SaveLargeOutput([]byte(block), name)
			if err != nil {
				continue
			}
			replacement := fmt.Sprintf("[archived content]\narchive path: %s\nsize: %d chars\nsummary: %s\nuse read_file on the archive path to view the full content",
				savedPath, len(block), summarizeContent(block))
			content = strings.Replace(content, block, replacement, 1)
			modified = true
		}

		if !modified && len(content) > 1500 {
			name := fmt.Sprintf("compacted_message_%d_%d.txt", i, time.Now().UnixNano())
			savedPath, err := c.archive.SaveLargeOutput([]byte(content), name)
			if err == nil {
				content = fmt.Sprintf("[archived content]\narchive path: %s\nsize: %d chars\nsummary: %s\nuse read_file on the archive path to view the full content",
					savedPath, len(content), summarizeContent(content))
				modified = true
			}
		}

		if modified {
			out[i].Content = content
		}
	}
	return out
}

// archiveSteps saves the full Step history (thought + actions + timestamp
// per iteration) to a JSON file under the context store's archive
// directory, so compaction never loses the exact record of what the agent
// did even after the message list itself is summarized away. Returns ""
// if there's nothing to archive or the write fails — compaction still
// proceeds either way.
func (c *Compactor) archiveSteps(steps []parser.Step) string {
	if len(steps) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return ""
	}
	name := fmt.Sprintf("step_history_%d.json", time.Now().UnixNano())
	path, err := c.archive.SaveLargeOutput(data, name)
	if err != nil {
		return ""
	}
	return path
}

func summarizeContent(content string) string {
	firstLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if len(firstLine) > 100 {
		firstLine = firstLine[:100]
	}
	if firstLine == "" {
		firstLine = "(no preview available)"
	}
	return firstLine
}

type summaryParts struct {
	FileContentSummary   string `json:"file_content_summary"`
	ToolExecutionSummary string `json:"tool_execution_summary"`
	KeepOriginalSummary  string `json:"keep_original_summary"`
}

var summaryFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// generateSummary asks the model to categorize the middle messages into
// three buckets: file-read activity, tool-execution activity, and
// anything that should be preserved verbatim rather than summarized.
func (c *Compactor) generateSummary(ctx context.Context, middle []session.Message) (summaryParts, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following conversation history into three categorized parts (%d messages):\n\n", len(middle))

	limit := len(middle)
	if limit > 30 {
		limit = 30
	}
	for i := 0; i < limit; i++ {
		msg := middle[i]
		content := msg.Content
		if len(content) > 300 {
			content = content[:300]
		}
		fmt.Fprintf(&b, "\n[%s] %s...", msg.Role, content)
	}
	if len(middle) > 30 {
		fmt.Fprintf(&b, "\n... %d more messages omitted", len(middle)-30)
	}

	b.WriteString(`

Respond with JSON only:

{
  "file_content_summary": "summary of every read_file operation — which files were read and why, plus any archive paths (empty string if none)",
  "tool_execution_summary": "summary of run_shell/grep_search/glob_search/list_dir activity and results, plus any archive paths (empty string if none)",
  "keep_original_summary": "any critical information that must be preserved verbatim rather than summarized (empty string if none)"
}`)

	resp, err := c.caller.CallModel(ctx, []llm.Message{{Role: llm.RoleUser, Content: b.String()}})
	if err != nil {
		return summaryParts{}, err
	}

	jsonText := resp
	if m := summaryFencePattern.FindStringSubmatch(resp); m != nil {
		jsonText = m[1]
	}

	var parts summaryParts
	if err := json.Unmarshal([]byte(jsonText), &parts); err != nil {
		return summaryParts{}, fmt.Errorf("parse summary response: %w", err)
	}
	return parts, nil
}

// fallbackSummary is used when the model call or its JSON response fails:
// a plain, non-LLM textual summary of each middle message, matching the
// original system's own degraded-mode summary.
func fallbackSummary(middle []session.Message) summaryParts {
	var b strings.Builder
	for i, msg := range middle {
		preview := msg.Content
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		fmt.Fprintf(&b, "\n### step %d\n**%s**: %s", i+1, msg.Role, preview)
	}
	return summaryParts{ToolExecutionSummary: b.String()}
}

func renderSummary(s summaryParts, middleCount, stepCount int, stepArchivePath string) string {
	fileSummary := s.FileContentSummary
	if fileSummary == "" {
		fileSummary = "no file reads"
	}
	toolSummary := s.ToolExecutionSummary
	if toolSummary == "" {
		toolSummary = "no tool executions"
	}
	keepSummary := s.KeepOriginalSummary
	if keepSummary == "" {
		keepSummary = "nothing flagged for verbatim retention"
	}
	stepSummary := "no step history archived this round"
	if stepArchivePath != "" {
		stepSummary = fmt.Sprintf("full history of %d prior thought/action steps archived at: %s — use read_file on it to recover exact past reasoning", stepCount, stepArchivePath)
	}

	return fmt.Sprintf(`## Context summary (model-generated, %d messages condensed)

### File activity
%s

### Tool activity
%s

### Preserved verbatim
%s

### Step history
%s

Large content referenced above has been archived under .aacode/context/ — use read_file on an archive path to retrieve it. Continue the task using the most recent observations; avoid repeating already-completed work.`,
		middleCount, fileSummary, toolSummary, keepSummary, stepSummary)
}
