// Package eventlog writes an append-only, newline-delimited JSON record
// of every model call, tool call, context update, and error for one task
// run, plus a small summary file once the task finishes. A write failure
// is logged once to stderr and otherwise swallowed — logging is a
// diagnostic aid, never something that should abort the run it's
// observing.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kandada/aacode/llm"
)

// Logger writes one JSONL file per task under <workDir>/.aacode/logs.
type Logger struct {
	dir string

	mu           sync.Mutex
	file         *os.File
	logPath      string
	warnedOnce   bool
	projectRoot  string
}

// New opens (creating if needed) the log directory rooted at workDir.
func New(workDir string) (*Logger, error) {
	dir := filepath.Join(workDir, ".aacode", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Logger{dir: dir, projectRoot: workDir}, nil
}

// StartTask opens a new log file for a task and writes its header entry.
// If taskID is empty, one is derived from the current timestamp.
func (l *Logger) StartTask(taskID, description string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if taskID == "" {
		taskID = "task_" + now.Format("20060102_150405")
	}

	l.logPath = filepath.Join(l.dir, "agent_thought_and_action_"+now.Format("20060102_150405")+".log")
	f, err := os.Create(l.logPath)
	if err != nil {
		return "", fmt.Errorf("create log file: %w", err)
	}
	l.file = f

	l.writeEntryLocked(map[string]any{
		"type":             "task_start",
		"timestamp":        now.Format(time.RFC3339),
		"task_id":          taskID,
		"task_description": description,
		"project_path":     l.projectRoot,
		"log_file":         l.logPath,
	})

	return taskID, nil
}

// LogIteration records one ReAct loop iteration.
func (l *Logger) LogIteration(iteration int, thought, action string, actionInput map[string]any, observation string, execTime time.Duration) {
	l.writeEntry(map[string]any{
		"type":              "iteration",
		"iteration":         iteration,
		"timestamp":         time.Now().Format(time.RFC3339),
		"thought":           thought,
		"action":            nilIfEmpty(action),
		"action_input":      actionInput,
		"observation":       nilIfEmpty(observation),
		"execution_time_ms": execTime.Milliseconds(),
	})
}

type ModelInfo struct {
	Provider string
	Model    string
}

// LogModelCall records one call to the model, including the full message
// history sent and the raw completion received — not just their sizes —
// so a logged run can be replayed exactly.
func (l *Logger) LogModelCall(messages []llm.Message, response string, responseTime time.Duration, info ModelInfo) {
	l.writeEntry(map[string]any{
		"type":             "model_call",
		"timestamp":        time.Now().Format(time.RFC3339),
		"model_info":       map[string]string{"provider": info.Provider, "model": info.Model},
		"messages":         messages,
		"messages_count":   len(messages),
		"response_time_ms": responseTime.Milliseconds(),
		"response_length":  len(response),
		"response":         response,
	})
}

// LogToolCall records one tool invocation and its outcome.
func (l *Logger) LogToolCall(toolName string, toolInput map[string]any, result string, execTime time.Duration, success bool, errMsg string) {
	l.writeEntry(map[string]any{
		"type":              "tool_call",
		"timestamp":         time.Now().Format(time.RFC3339),
		"tool_name":         toolName,
		"tool_input":        toolInput,
		"result":            result,
		"execution_time_ms": execTime.Milliseconds(),
		"success":           success,
		"error":             nilIfEmpty(errMsg),
	})
}

// LogContextUpdate records a context-store update, truncating long
// content bodies the same way the rest of the context assembly does.
func (l *Logger) LogContextUpdate(updateType, content string) {
	truncated := content
	if len(truncated) > 500 {
		truncated = truncated[:500] + "..."
	}
	l.writeEntry(map[string]any{
		"type":           "context_update",
		"timestamp":      time.Now().Format(time.RFC3339),
		"update_type":    updateType,
		"content":        truncated,
		"content_length": len(content),
	})
}

// LogError records an out-of-band error (not a failed tool call, which
// goes through LogToolCall).
func (l *Logger) LogError(errType, message string, context map[string]any) {
	l.writeEntry(map[string]any{
		"type":          "error",
		"timestamp":     time.Now().Format(time.RFC3339),
		"error_type":    errType,
		"error_message": message,
		"context":       context,
	})
}

// FinishTask writes the closing entry, closes the log file, and writes a
// sibling .summary.json derived by replacing the .log suffix (not
// appending to it).
func (l *Logger) FinishTask(status string, totalIterations int, totalTime time.Duration, summary map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	completion := map[string]any{
		"type":               "task_complete",
		"timestamp":          time.Now().Format(time.RFC3339),
		"final_status":       status,
		"total_iterations":   totalIterations,
		"total_time_seconds": totalTime.Seconds(),
		"summary":            summary,
	}
	l.writeEntryLocked(completion)

	logPath := l.logPath
	l.file.Close()
	l.file = nil

	rel, err := filepath.Rel(l.projectRoot, logPath)
	if err != nil {
		rel = logPath
	}
	summaryData := map[string]any{
		"task_info": map[string]any{
			"log_file":     logPath,
			"project_path": l.projectRoot,
			"completion":   completion,
		},
		"quick_stats":  summary,
		"log_location": rel,
	}
	data, err := json.MarshalIndent(summaryData, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal log summary: %w", err)
	}

	summaryPath := strings.TrimSuffix(logPath, ".log") + ".summary.json"
	if err := os.WriteFile(summaryPath, data, 0644); err != nil {
		return fmt.Errorf("write log summary: %w", err)
	}
	return nil
}

func (l *Logger) writeEntry(entry map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeEntryLocked(entry)
}

func (l *Logger) writeEntryLocked(entry map[string]any) {
	if l.file == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.warnOnce(err)
		return
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		l.warnOnce(err)
		return
	}
	l.file.Sync()
}

func (l *Logger) warnOnce(err error) {
	if l.warnedOnce {
		return
	}
	l.warnedOnce = true
	fmt.Fprintf(os.Stderr, "warning: event log write failed: %v\n", err)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecentLog is a summary of one completed task's log file.
type RecentLog struct {
	File            string
	TaskID          string
	TaskDescription string
	Timestamp       string
	Size            int64
}

// GetRecentLogs lists the most recently modified task logs, reading each
// one's header entry for display metadata.
func (l *Logger) GetRecentLogs(limit int) ([]RecentLog, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}

	type withInfo struct {
		path string
		info os.FileInfo
	}
	var logs []withInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, withInfo{filepath.Join(l.dir, e.Name()), info})
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].info.ModTime().After(logs[j].info.ModTime()) })

	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	var out []RecentLog
	for _, lg := range logs {
		data, err := os.ReadFile(lg.path)
		if err != nil {
			continue
		}
		firstLine := data
		if idx := strings.IndexByte(string(data), '\n'); idx >= 0 {
			firstLine = data[:idx]
		}
		var header struct {
			TaskID          string `json:"task_id"`
			TaskDescription string `json:"task_description"`
			Timestamp       string `json:"timestamp"`
		}
		if err := json.Unmarshal(firstLine, &header); err != nil {
			continue
		}
		rel, err := filepath.Rel(l.projectRoot, lg.path)
		if err != nil {
			rel = lg.path
		}
		out = append(out, RecentLog{
			File:            rel,
			TaskID:          header.TaskID,
			TaskDescription: header.TaskDescription,
			Timestamp:       header.Timestamp,
			Size:            lg.info.Size(),
		})
	}
	return out, nil
}

// CleanupOldLogs removes log files (and their summaries) older than
// keepDays.
func (l *Logger) CleanupOldLogs(keepDays int) error {
	cutoff := time.Now().Add(-time.Duration(keepDays) * 24 * time.Hour)
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(l.dir, e.Name()))
		}
	}
	return nil
}
