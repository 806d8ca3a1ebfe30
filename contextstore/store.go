// Package contextstore assembles the preamble the driver feeds the model
// each iteration: project init instructions, recent tool observations,
// a running error history, and a prioritized file listing. It also
// archives large tool outputs to disk, content-addressed by an MD5
// prefix so repeated archival of the same payload is a no-op.
package contextstore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	writeObservationTruncate = 500
	readObservationTruncate  = 1500
	writeErrorTruncate       = 3000
	readErrorTruncate        = 800
	historyCap               = 5
)

var errorKeywords = []string{"error", "failed", "warning", "exception", "错误", "失败", "警告"}

// Store manages the on-disk .aacode/context directory for one project.
type Store struct {
	projectRoot string
	dir         string
	todoFile    string
}

// New opens (creating if needed) the context store rooted at projectRoot.
func New(projectRoot string) (*Store, error) {
	dir := filepath.Join(projectRoot, ".aacode", "context")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create context dir: %w", err)
	}
	return &Store{projectRoot: projectRoot, dir: dir}, nil
}

// SetTodoFile records the active todo list's path so GetContext can
// surface it without the caller re-threading it through every call.
func (s *Store) SetTodoFile(path string) {
	s.todoFile = path
}

// GetContext assembles the full context preamble: init.md, the active
// todo file pointer, the latest observation plus recent history, the
// error history, the working directory, notable project directories and
// docs, and a prioritized project file listing.
func (s *Store) GetContext() string {
	var parts []string

	parts = append(parts, s.initSection())

	if s.todoFile != "" {
		rel, err := filepath.Rel(s.projectRoot, s.todoFile)
		if err != nil {
			rel = s.todoFile
		}
		parts = append(parts, fmt.Sprintf("## Current todo list\npath: %s\n(todo tools use this file automatically)", rel))
	}

	if obs := s.latestObservationSection(); obs != "" {
		parts = append(parts, obs)
	}
	if hist := s.historySection(); hist != "" {
		parts = append(parts, hist)
	}
	if errs := s.errorSection(); errs != "" {
		parts = append(parts, errs)
	}

	parts = append(parts, fmt.Sprintf("## Working directory\n%s", s.projectRoot))

	if dirs := s.importantDirsSection(); dirs != "" {
		parts = append(parts, dirs)
	}

	parts = append(parts, s.fileStructureSection(50))

	return strings.Join(parts, "\n\n")
}

// GetCompactContext is a vestigial alias kept for interface parity with
// the original implementation, where it never actually diverged from
// GetContext.
func (s *Store) GetCompactContext() string {
	return s.GetContext()
}

func (s *Store) initSection() string {
	path := filepath.Join(s.projectRoot, "init.md")
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return "## Project init instructions\n(no init.md found; consider creating one)"
	case err != nil:
		return fmt.Sprintf("## Project init instructions\n(failed to read init.md: %s)", truncate(err.Error(), 100))
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "## Project init instructions\n(init.md is empty)"
	}
	return "## Project init instructions\n" + truncate(string(data), readObservationTruncate)
}

func (s *Store) latestObservationSection() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "latest_observation.txt"))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return ""
	}
	return "## Latest observation\n" + truncate(string(data), readObservationTruncate)
}

func (s *Store) historySection() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "observation_history.txt"))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return ""
	}
	entries := strings.Split(strings.TrimSpace(string(data)), "\n---\n")
	if len(entries) <= 1 {
		return ""
	}
	recent := entries[:len(entries)-1]
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	return "## Recent observation history\n" + strings.Join(recent, "\n---\n")
}

func (s *Store) errorSection() string {
	data, err := os.ReadFile(filepath.Join(s.dir, "important_errors.txt"))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return ""
	}
	text := string(data)
	if len(text) > readErrorTruncate {
		text = text[len(text)-readErrorTruncate:]
	}
	return "## Important error history (avoid repeating)\n" + text
}

func (s *Store) importantDirsSection() string {
	var lines []string
	aacodeDir := filepath.Join(s.projectRoot, ".aacode")
	if info, err := os.Stat(aacodeDir); err == nil && info.IsDir() {
		lines = append(lines, "- .aacode/ (system directory)")
		for _, sub := range []string{"context", "todos", "tests", "sandboxes"} {
			if info, err := os.Stat(filepath.Join(aacodeDir, sub)); err == nil && info.IsDir() {
				lines = append(lines, "  - .aacode/"+sub+"/")
			}
		}
	}

	var docs []string
	patterns := []string{"README*.md", "*.txt", "requirements.txt", "package.json", "*.yaml", "*.yml"}
	entries, _ := os.ReadDir(s.projectRoot)
	for _, pat := range patterns {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if ok, _ := filepath.Match(pat, e.Name()); ok {
				docs = append(docs, "  - "+e.Name())
				if len(docs) >= 10 {
					break
				}
			}
		}
		if len(docs) >= 10 {
			break
		}
	}
	if len(docs) > 0 {
		lines = append(lines, "", "common docs:")
		lines = append(lines, docs...)
	}

	if len(lines) == 0 {
		return ""
	}
	return "## Notable directories and docs\n" + strings.Join(lines, "\n")
}

var structureExtensions = map[string]bool{
	".py": true, ".md": true, ".txt": true, ".json": true,
	".yaml": true, ".yml": true, ".csv": true, ".xlsx": true, ".pdf": true,
	".go": true,
}

func (s *Store) fileStructureSection(maxFiles int) string {
	var files []string
	_ = filepath.WalkDir(s.projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".aacode" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxFiles {
			return nil
		}
		if structureExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			rel, err := filepath.Rel(s.projectRoot, path)
			if err == nil {
				files = append(files, rel)
			}
		}
		return nil
	})

	if len(files) == 0 {
		return "## Project file structure\n(project directory is empty or unreadable)"
	}

	files = PrioritizeFiles(files)

	if len(files) >= maxFiles {
		return fmt.Sprintf("## Project file structure\n(showing the first %d files; there may be more)\n%s", maxFiles, strings.Join(files, "\n"))
	}
	return "## Project file structure\n" + strings.Join(files, "\n")
}

// Update records a tool observation: it overwrites the "latest" file,
// appends to a capped ring-buffer history, and — if the observation
// looks like an error or warning — appends to a capped error history
// too, so future context assembly can warn the model away from repeating
// the same mistake.
func (s *Store) Update(observation string) error {
	if observation == "" {
		return nil
	}

	if err := os.WriteFile(filepath.Join(s.dir, "latest_observation.txt"), []byte(observation), 0644); err != nil {
		return fmt.Errorf("write latest observation: %w", err)
	}

	historyPath := filepath.Join(s.dir, "observation_history.txt")
	existing, _ := os.ReadFile(historyPath)
	var entries []string
	if len(existing) > 0 {
		entries = strings.Split(strings.TrimSpace(string(existing)), "\n---\n")
	}
	entries = append(entries, fmt.Sprintf("[%d] %s", time.Now().Unix(), truncate(observation, 1000)))
	if len(entries) > historyCap {
		entries = entries[len(entries)-historyCap:]
	}
	if err := os.WriteFile(historyPath, []byte(strings.Join(entries, "\n---\n")), 0644); err != nil {
		return fmt.Errorf("write observation history: %w", err)
	}

	if looksLikeError(observation) {
		errPath := filepath.Join(s.dir, "important_errors.txt")
		existingErrs, _ := os.ReadFile(errPath)
		combined := string(existingErrs) + fmt.Sprintf("\n[%d] %s\n", time.Now().Unix(), truncate(observation, writeObservationTruncate))
		if len(combined) > writeErrorTruncate {
			combined = combined[len(combined)-writeErrorTruncate:]
		}
		if err := os.WriteFile(errPath, []byte(combined), 0644); err != nil {
			return fmt.Errorf("write error history: %w", err)
		}
	}

	return nil
}

func looksLikeError(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SaveLargeOutput archives a payload under the context directory,
// deduplicating by an 8-character MD5 prefix of its content: archiving
// the same bytes twice returns the already-archived path instead of
// writing a second copy.
func (s *Store) SaveLargeOutput(payload []byte, suggestedName string) (string, error) {
	sum := md5.Sum(payload)
	hash := hex.EncodeToString(sum[:])[:8]

	entries, err := os.ReadDir(s.dir)
	if err == nil {
		for _, e := range entries {
			if strings.Contains(e.Name(), hash) {
				rel, _ := filepath.Rel(s.projectRoot, filepath.Join(s.dir, e.Name()))
				return rel, nil
			}
		}
	}

	name := suggestedName
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext) + "_" + hash + ext
	} else {
		name = name + "_" + hash + ".txt"
	}

	outPath := filepath.Join(s.dir, name)
	if err := os.WriteFile(outPath, payload, 0644); err != nil {
		return "", fmt.Errorf("save archived output: %w", err)
	}

	indexPath := filepath.Join(s.dir, "archive_index.txt")
	entry := fmt.Sprintf("%s|%s|%d|%d\n", name, hash, len(payload), time.Now().Unix())
	f, err := os.OpenFile(indexPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		if fi, statErr := f.Stat(); statErr == nil && fi.Size() == 0 {
			f.WriteString("# archive index\n# format: filename|hash|size|timestamp\n")
		}
		f.WriteString(entry)
		f.Close()
	}

	rel, err := filepath.Rel(s.projectRoot, outPath)
	if err != nil {
		return outPath, nil
	}
	return rel, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// priorityOf ranks a file path for context assembly: lower numbers sort
// first. Config and docs lead, then data files, then source, then
// everything else.
func priorityOf(path string) int {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case name == "readme.md" || name == "init.md" || name == "readme.txt":
		return 0
	case strings.HasPrefix(name, "readme"):
		return 1
	case name == "config.yaml" || name == "config.yml" || name == "config.json" || name == "aacode_config.yaml":
		return 2
	case (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".json")) && strings.Contains(name, "config"):
		return 3
	case name == "requirements.txt":
		return 4
	case name == "package.json" || name == "go.mod":
		return 5
	case strings.HasSuffix(name, ".csv"):
		return 10
	case strings.HasSuffix(name, ".xlsx"):
		return 11
	case strings.HasSuffix(name, ".pdf"):
		return 12
	case name == "main.go" || name == "main.py" || name == "app.py" || name == "index.py" || name == "__init__.py":
		return 20
	case name == "main.js" || name == "app.js" || name == "index.js":
		return 21
	case strings.HasSuffix(name, ".go") || strings.HasSuffix(name, ".py"):
		return 25
	case strings.HasSuffix(name, ".js") || strings.HasSuffix(name, ".ts") || strings.HasSuffix(name, ".jsx") || strings.HasSuffix(name, ".tsx"):
		return 26
	case strings.HasSuffix(name, ".md"):
		return 30
	case strings.HasSuffix(name, ".txt"):
		return 31
	default:
		return 40
	}
}

// PrioritizeFiles sorts a file list by the same tiered priority the
// context assembly step uses when truncating a long listing.
func PrioritizeFiles(files []string) []string {
	sorted := append([]string(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := priorityOf(sorted[i]), priorityOf(sorted[j])
		if pi != pj {
			return pi < pj
		}
		return sorted[i] < sorted[j]
	})
	return sorted
}
