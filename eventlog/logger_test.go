package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStartAndFinishTaskWritesSummary(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	taskID, err := l.StartTask("", "build a widget")
	if err != nil {
		t.Fatal(err)
	}
	if taskID == "" {
		t.Fatal("expected non-empty task id")
	}

	l.LogIteration(1, "thinking", "read_file", map[string]any{"path": "a.go"}, "contents", 10*time.Millisecond)
	l.LogToolCall("read_file", map[string]any{"path": "a.go"}, "ok", 5*time.Millisecond, true, "")
	l.LogError("tool_error", "something failed", nil)

	if err := l.FinishTask("completed", 1, 50*time.Millisecond, map[string]any{"iterations": 1}); err != nil {
		t.Fatal(err)
	}

	logsDir := filepath.Join(dir, ".aacode", "logs")
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		t.Fatal(err)
	}

	var logFile, summaryFile string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".summary.json") {
			summaryFile = e.Name()
		} else if strings.HasSuffix(e.Name(), ".log") {
			logFile = e.Name()
		}
	}
	if logFile == "" || summaryFile == "" {
		t.Fatalf("expected both a .log and .summary.json file, got %v", entries)
	}

	f, err := os.Open(filepath.Join(logsDir, logFile))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	lineCount := 0
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		lineCount++
	}
	if lineCount != 5 {
		t.Fatalf("expected 5 log lines (start, iteration, tool_call, error, complete), got %d", lineCount)
	}
}

func TestGetRecentLogs(t *testing.T) {
	dir := t.TempDir()
	l, _ := New(dir)
	l.StartTask("", "first task")
	l.FinishTask("completed", 0, 0, nil)

	logs, err := l.GetRecentLogs(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 recent log, got %d", len(logs))
	}
	if logs[0].TaskDescription != "first task" {
		t.Fatalf("unexpected task description: %q", logs[0].TaskDescription)
	}
}
