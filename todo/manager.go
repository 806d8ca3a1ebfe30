// Package todo maintains a per-task Markdown checklist that the driver
// updates opportunistically as it works: adding items, marking them
// done, and appending a capped trail of short execution records. Edits
// are incremental line patches against the existing file rather than a
// full template regeneration, so manual edits to the file in between
// agent turns aren't clobbered.
package todo

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityMark = map[Priority]string{
	PriorityHigh:   "[H]",
	PriorityMedium: "[M]",
	PriorityLow:    "[L]",
}

// Manager owns the active todo file for one project.
type Manager struct {
	projectRoot string
	dir         string
	currentFile string
	recordCap   int
}

// New opens (creating if needed) the todo directory rooted at projectRoot.
func New(projectRoot string, recordCap int) (*Manager, error) {
	dir := filepath.Join(projectRoot, ".aacode", "todos")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create todo dir: %w", err)
	}
	if recordCap <= 0 {
		recordCap = 20
	}
	return &Manager{projectRoot: projectRoot, dir: dir, recordCap: recordCap}, nil
}

// CurrentFile returns the active todo file's absolute path, or "" if none.
func (m *Manager) CurrentFile() string { return m.currentFile }

var nonWordChars = regexp.MustCompile(`[^\w\-]`)

// CreateTodoList writes a fresh checklist file for a task and makes it
// current.
func (m *Manager) CreateTodoList(taskDescription, projectName string) (string, error) {
	if projectName == "" {
		projectName = filepath.Base(m.projectRoot)
		if projectName == "" || projectName == "." {
			projectName = "project"
		}
	}
	clean := nonWordChars.ReplaceAllString(projectName, "_")

	now := time.Now()
	filename := fmt.Sprintf("%s_todo_%s.md", clean, now.Format("20060102_150405"))
	m.currentFile = filepath.Join(m.dir, filename)

	content := fmt.Sprintf(`# %s - Todo List

**Task**: %s
**Created**: %s

## Pending
- [ ] Analyze requirements
- [ ] Draft a plan
- [ ] Execute the task

## Completed
(none yet)

## Records
- %s created list

---
*auto-maintained*
`, clean, taskDescription, now.Format("2006-01-02 15:04:05"), now.Format("15:04:05"))

	if err := os.WriteFile(m.currentFile, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write todo list: %w", err)
	}

	rel, err := filepath.Rel(m.projectRoot, m.currentFile)
	if err != nil {
		return m.currentFile, nil
	}
	return rel, nil
}

func (m *Manager) readCurrent() ([]string, error) {
	if m.currentFile == "" {
		return nil, fmt.Errorf("no active todo list")
	}
	data, err := os.ReadFile(m.currentFile)
	if err != nil {
		return nil, fmt.Errorf("read todo list: %w", err)
	}
	return strings.Split(string(data), "\n"), nil
}

func (m *Manager) writeCurrent(lines []string) error {
	return os.WriteFile(m.currentFile, []byte(strings.Join(lines, "\n")), 0644)
}

// AddTodoItem inserts a new pending item right after the "## Pending"
// heading.
func (m *Manager) AddTodoItem(item string, priority Priority, category string) error {
	lines, err := m.readCurrent()
	if err != nil {
		return err
	}

	insertAt := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "## Pending" {
			insertAt = i + 1
			break
		}
	}
	if insertAt == -1 {
		return fmt.Errorf("todo file missing Pending section")
	}

	mark := priorityMark[priority]
	if category == "" {
		category = "task"
	}
	newLine := fmt.Sprintf("- [ ] %s **%s**: %s", mark, category, item)

	lines = append(lines[:insertAt], append([]string{newLine}, lines[insertAt:]...)...)
	return m.writeCurrent(lines)
}

var pendingLinePattern = regexp.MustCompile(`^- \[ \]\s*(\[[HML]\])?\s*\*\*(.*?)\*\*:\s*(.*)$`)

// MarkTodoCompleted flips the checkbox for the first pending item whose
// text contains pattern (case-insensitive), and additionally appends a
// timestamped line to the Completed section — the checkbox flip alone
// isn't enough; completion needs its own durable record.
func (m *Manager) MarkTodoCompleted(pattern string) (bool, error) {
	lines, err := m.readCurrent()
	if err != nil {
		return false, err
	}

	lowerPattern := strings.ToLower(pattern)
	updated := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ]") || !strings.Contains(strings.ToLower(line), lowerPattern) {
			continue
		}
		lines[i] = strings.Replace(line, "- [ ]", "- [x]", 1)
		updated = true

		desc := strings.TrimSpace(strings.Replace(line, "- [ ]", "", 1))
		if m := pendingLinePattern.FindStringSubmatch(trimmed); m != nil {
			desc = m[3]
		}
		lines = m.insertCompleted(lines, desc)
		break
	}

	if !updated {
		return false, nil
	}
	return true, m.writeCurrent(lines)
}

func (m *Manager) insertCompleted(lines []string, itemDesc string) []string {
	start := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "## Completed" {
			start = i
			break
		}
	}
	if start == -1 {
		return lines
	}

	insertAt := start + 1
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" || strings.HasPrefix(lines[i], "### ") || strings.HasPrefix(lines[i], "## ") {
			insertAt = i
			break
		}
		insertAt = i + 1
	}

	newLine := fmt.Sprintf("- [x] **%s**: %s", time.Now().Format("2006-01-02 15:04:05"), itemDesc)
	out := append([]string{}, lines[:insertAt]...)
	out = append(out, newLine)
	out = append(out, lines[insertAt:]...)
	return out
}

// UpdateTodoItem replaces the text of the first pending item matching
// oldPattern, preserving its priority mark and category prefix if it has
// one.
func (m *Manager) UpdateTodoItem(oldPattern, newItem string) (bool, error) {
	lines, err := m.readCurrent()
	if err != nil {
		return false, err
	}

	lowerPattern := strings.ToLower(oldPattern)
	updated := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ]") || !strings.Contains(strings.ToLower(line), lowerPattern) {
			continue
		}
		if m := pendingLinePattern.FindStringSubmatch(trimmed); m != nil {
			mark := m[1]
			category := m[2]
			lines[i] = fmt.Sprintf("- [ ] %s **%s**: %s", mark, category, newItem)
		} else {
			lines[i] = "- [ ] " + newItem
		}
		updated = true
	}

	if !updated {
		return false, nil
	}
	return true, m.writeCurrent(lines)
}

// AddExecutionRecord appends a short (80-char-capped) timestamped line to
// the Records section, trimming the oldest record once the count exceeds
// the configured cap.
func (m *Manager) AddExecutionRecord(record string) error {
	lines, err := m.readCurrent()
	if err != nil {
		return err
	}

	recordPos := -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "## Records" {
			recordPos = i + 1
			break
		}
	}
	if recordPos == -1 {
		return fmt.Errorf("todo file missing Records section")
	}

	if len(record) > 80 {
		record = record[:80]
	}
	newLine := fmt.Sprintf("- %s %s", time.Now().Format("15:04:05"), record)
	lines = append(lines[:recordPos], append([]string{newLine}, lines[recordPos:]...)...)

	var recordIdxs []int
	for i := recordPos; i < len(lines); i++ {
		t := strings.TrimSpace(lines[i])
		if t == "" || strings.HasPrefix(t, "---") || strings.HasPrefix(t, "#") {
			break
		}
		if strings.HasPrefix(t, "- ") {
			recordIdxs = append(recordIdxs, i)
		}
	}
	if len(recordIdxs) > m.recordCap {
		toDelete := recordIdxs[m.recordCap:]
		for i := len(toDelete) - 1; i >= 0; i-- {
			idx := toDelete[i]
			lines = append(lines[:idx], lines[idx+1:]...)
		}
	}

	return m.writeCurrent(lines)
}

// Summary is a quick read on a todo list's progress.
type Summary struct {
	File      string
	Pending   int
	Completed int
}

// GetTodoSummary counts pending and completed items in the current list.
func (m *Manager) GetTodoSummary() (Summary, error) {
	lines, err := m.readCurrent()
	if err != nil {
		return Summary{}, err
	}
	s := Summary{File: m.currentFile}
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "- [ ]") {
			s.Pending++
		} else if strings.HasPrefix(t, "- [x]") {
			s.Completed++
		}
	}
	return s, nil
}
