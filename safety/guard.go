// Package safety classifies shell commands by risk before the orchestration
// core lets the run_shell tool execute them. It never runs a command itself;
// it returns a verdict the driver uses to allow, block, or ask for
// confirmation.
package safety

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/sahilm/fuzzy"
)

// RiskLevel classifies how dangerous a command looks.
type RiskLevel string

const (
	RiskSafe      RiskLevel = "safe"
	RiskWarning   RiskLevel = "warning"
	RiskDangerous RiskLevel = "dangerous"
	RiskUnknown   RiskLevel = "unknown"
)

// Decision is the guard's verdict on a single command.
type Decision struct {
	Allowed           bool
	NeedsConfirmation bool
	RiskLevel         RiskLevel
	Reason            string
}

// Guard evaluates shell commands against a project boundary and a fixed
// whitelist of recognized commands, mirroring an allow-by-default,
// ask-on-anything-surprising posture.
type Guard struct {
	ProjectRoot string
}

// New returns a Guard scoped to projectRoot. Relative path arguments in
// commands are resolved against this root when deciding if they stay inside
// the project.
func New(projectRoot string) *Guard {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	return &Guard{ProjectRoot: abs}
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+/(?:\s|$)`),
	regexp.MustCompile(`rm\s+-rf\s+~`),
	regexp.MustCompile(`rm\s+-rf\s+\*`),
	regexp.MustCompile(`format\s+`),
	regexp.MustCompile(`\bdd\s+`),
	regexp.MustCompile(`mkfs\s+`),
	regexp.MustCompile(`shutdown\s+`),
	regexp.MustCompile(`halt\s+`),
	regexp.MustCompile(`reboot\s+`),
	regexp.MustCompile(`^\s*init\s+`),
	regexp.MustCompile(`iptables\s+`),
	regexp.MustCompile(`ufw\s+`),
	regexp.MustCompile(`:\(\)\s*\{.*\}\s*;\s*:`), // fork bomb
	regexp.MustCompile(`exec\s+/dev/`),
	regexp.MustCompile(`chmod\s+[0-7]{3,4}\s+/\S*`),
	regexp.MustCompile(`chown\s+.*?:\s+/\S*`),
	regexp.MustCompile(`curl[^|]*\|\s*(sudo\s+)?(bash|sh|zsh)`),
	regexp.MustCompile(`wget[^|]*\|\s*(sudo\s+)?(bash|sh|zsh)`),
}

// allowedCommands lists base commands considered unconditionally safe to
// execute without extra scrutiny, beyond project-boundary checks on any
// path-shaped arguments.
var allowedCommands = map[string]bool{
	"cat": true, "head": true, "tail": true, "less": true, "more": true,
	"file": true, "stat": true, "wc": true, "od": true, "xxd": true, "strings": true,
	"ls": true, "tree": true, "du": true, "df": true,
	"grep": true, "rg": true, "ag": true, "ack": true, "fzf": true,
	"awk": true, "cut": true, "sort": true, "uniq": true, "tr": true,
	"diff": true, "comm": true, "jq": true, "yq": true,
	"whoami": true, "id": true, "groups": true, "hostname": true, "uname": true,
	"date": true, "uptime": true, "which": true, "type": true,
	"env": true, "printenv": true, "echo": true, "printf": true, "pwd": true,
	"realpath": true, "dirname": true, "basename": true, "true": true, "false": true,
	"ping": true, "dig": true, "nslookup": true, "host": true,
	"ps": true, "top": true, "htop": true, "pgrep": true, "lsof": true,
	"tar": true, "zip": true, "unzip": true, "gzip": true, "gunzip": true,
	"make": true, "cmake": true, "sleep": true, "seq": true,
	"git": true, "go": true, "python": true, "python3": true, "node": true,
	"npm": true, "yarn": true, "pnpm": true, "pip": true, "pip3": true,
	"pytest": true, "golangci-lint": true, "gofmt": true, "prettier": true,
	"eslint": true, "mkdir": true, "touch": true, "cp": true, "mv": true,
	"find": true, "sed": true, "chmod": true, "chown": true,
	"rm": true, "sudo": true,
}

// alwaysDangerous requires confirmation regardless of its arguments.
var alwaysDangerous = map[string]bool{
	"dd": true, "mkfs": true, "fdisk": true, "shutdown": true, "reboot": true,
	"eval": true,
}

// Check classifies a raw shell command line. Parsing failures yield an
// "unknown" verdict that still requires confirmation — a command the guard
// can't tokenize is exactly the kind it shouldn't wave through.
func (g *Guard) Check(command string) Decision {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "empty command"}
	}

	for _, pat := range dangerousPatterns {
		if pat.MatchString(trimmed) {
			return Decision{
				Allowed:           false,
				NeedsConfirmation: true,
				RiskLevel:         RiskDangerous,
				Reason:            "matches a known-destructive pattern: " + pat.String(),
			}
		}
	}

	worst := Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "safe"}
	for _, segment := range splitCompound(trimmed) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		d := g.checkSegment(segment)
		if rank(d.RiskLevel) > rank(worst.RiskLevel) {
			worst = d
		}
	}
	return worst
}

func (g *Guard) checkSegment(segment string) Decision {
	args, err := shellwords.Parse(segment)
	if err != nil || len(args) == 0 {
		return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskUnknown, Reason: "could not tokenize command"}
	}

	name := extractCommandName(args[0])

	if alwaysDangerous[name] {
		return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskDangerous, Reason: "command always requires confirmation: " + name}
	}

	switch name {
	case "rm":
		return g.checkRm(args[1:])
	case "sudo":
		return g.checkSudo(args[1:])
	case "chmod":
		return g.checkChmod(args[1:])
	case "chown":
		return Decision{Allowed: true, RiskLevel: RiskWarning, Reason: "chown changes ownership"}
	case "pip", "pip3":
		return g.checkPip(args[1:])
	case "npm", "yarn", "pnpm":
		return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: name + " (package manager, always allowed)"}
	}

	if !allowedCommands[name] {
		reason := "unrecognized command: " + name
		if suggestions := SuggestCommand(name, 3); len(suggestions) > 0 {
			reason += " (did you mean: " + strings.Join(suggestions, ", ") + "?)"
		}
		return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskUnknown, Reason: reason}
	}

	return g.checkGenericPaths(name, args[1:])
}

func (g *Guard) checkRm(args []string) Decision {
	recursive := false
	var targets []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			if strings.ContainsAny(a, "rR") {
				recursive = true
			}
			continue
		}
		targets = append(targets, a)
	}
	if len(targets) == 0 {
		return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "rm with no targets"}
	}

	dangerousAbsolute := []string{"/", "/etc", "/usr", "/var", "/home", "/root", "/bin", "/sbin"}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dangerousAbsolute = append(dangerousAbsolute, home)
	}

	for _, t := range targets {
		abs := t
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(g.ProjectRoot, abs)
		}
		abs = filepath.Clean(abs)

		for _, dp := range dangerousAbsolute {
			if abs == dp {
				return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskDangerous, Reason: "rm targeting protected path: " + t}
			}
		}
		if recursive && strings.Contains(t, "..") {
			return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskDangerous, Reason: "rm -r with parent traversal: " + t}
		}
		if recursive && !IsSafePath(abs, g.ProjectRoot) {
			return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskDangerous, Reason: "不能删除项目目录外的文件"}
		}
	}
	if recursive {
		return Decision{Allowed: true, RiskLevel: RiskWarning, Reason: "rm -r within project"}
	}
	return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "rm within project"}
}

var sudoAllowedSubcommands = map[string]bool{
	"apt-get": true, "apt": true, "systemctl": true, "service": true,
}

func (g *Guard) checkSudo(args []string) Decision {
	if len(args) == 0 {
		return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskDangerous, Reason: "sudo with no command"}
	}
	sub := extractCommandName(args[0])
	if sudoAllowedSubcommands[sub] {
		return Decision{Allowed: true, RiskLevel: RiskWarning, Reason: "sudo " + sub + " (allowlisted)"}
	}
	return Decision{Allowed: false, NeedsConfirmation: true, RiskLevel: RiskDangerous, Reason: "sudo " + sub + " requires confirmation"}
}

func (g *Guard) checkChmod(args []string) Decision {
	for _, a := range args {
		if a == "777" || a == "a+rwx" || a == "-R" && hasArg(args, "777") {
			// warning-level: allowed by default, annotated for the non-interactive path.
			return Decision{Allowed: true, NeedsConfirmation: true, RiskLevel: RiskWarning, Reason: "chmod 777 is unusually permissive"}
		}
	}
	return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "chmod"}
}

func hasArg(args []string, target string) bool {
	for _, a := range args {
		if a == target {
			return true
		}
	}
	return false
}

func (g *Guard) checkPip(args []string) Decision {
	if len(args) == 0 {
		return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "pip (no subcommand)"}
	}
	sub := args[0]
	forbidden := map[string]bool{"uninstall": true}
	if forbidden[sub] {
		// warning-level: allowed by default, annotated for the non-interactive path.
		return Decision{Allowed: true, NeedsConfirmation: true, RiskLevel: RiskWarning, Reason: "pip " + sub + " removes installed packages"}
	}
	return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: "pip " + sub}
}

// checkGenericPaths flags any non-flag argument that looks like a path and
// falls outside the project boundary, with exceptions for read-only
// commands, /tmp paths, and package-manager style commands that legitimately
// touch global state.
func (g *Guard) checkGenericPaths(cmd string, args []string) Decision {
	readOnly := map[string]bool{
		"cat": true, "head": true, "tail": true, "less": true, "more": true,
		"grep": true, "rg": true, "find": true, "ls": true, "stat": true, "file": true,
	}
	if readOnly[cmd] {
		return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: cmd + " (read-only)"}
	}

	for _, a := range args {
		if strings.HasPrefix(a, "-") || !looksLikePath(a) {
			continue
		}
		abs := a
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(g.ProjectRoot, abs)
		}
		abs = filepath.Clean(abs)
		if strings.HasPrefix(abs, "/tmp/") || abs == "/tmp" {
			continue
		}
		if !IsSafePath(abs, g.ProjectRoot) {
			// warning-level: allowed by default, annotated for the non-interactive path.
			return Decision{Allowed: true, NeedsConfirmation: true, RiskLevel: RiskWarning, Reason: cmd + " targets a path outside the project: " + a}
		}
	}
	return Decision{Allowed: true, RiskLevel: RiskSafe, Reason: cmd}
}

func looksLikePath(s string) bool {
	return strings.ContainsAny(s, "/\\") || strings.HasPrefix(s, "~") || strings.HasPrefix(s, ".")
}

// IsSafePath reports whether path, once resolved against projectRoot, stays
// within the project, within a bounded ".." traversal, within the user's
// home directory, or within a small fixed set of read-only system paths.
func IsSafePath(path, projectRoot string) bool {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(projectRoot, abs)
	}
	abs = filepath.Clean(abs)

	if projectRoot != "" && isWithin(abs, projectRoot) {
		return true
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" && isWithin(abs, home) {
		return true
	}

	readOnlySystem := []string{"/usr/include", "/usr/share/doc", "/etc/hosts"}
	for _, ro := range readOnlySystem {
		if abs == ro || isWithin(abs, ro) {
			return true
		}
	}

	// Bounded parent traversal: allow stepping out of the project root by
	// one level (its parent directory and anything beneath it, which covers
	// sibling-package layouts) but no further.
	rel, err := filepath.Rel(projectRoot, abs)
	if err == nil {
		ups := strings.Count(rel, ".."+string(filepath.Separator)) + strings.Count(rel, "..")
		if strings.HasPrefix(rel, "..") && ups <= 2 && !strings.Contains(rel, "...") {
			return true
		}
	}

	return false
}

func isWithin(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func extractCommandName(word string) string {
	word = strings.TrimSpace(word)
	if word == "" {
		return ""
	}
	return filepath.Base(word)
}

func splitCompound(command string) []string {
	var segments []string
	var current strings.Builder
	inSingle, inDouble := false, false

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
			current.WriteRune(ch)
		case ch == '"' && !inSingle:
			inDouble = !inDouble
			current.WriteRune(ch)
		case inSingle || inDouble:
			current.WriteRune(ch)
		case ch == '&' && i+1 < len(runes) && runes[i+1] == '&':
			segments = append(segments, current.String())
			current.Reset()
			i++
		case ch == '|' && i+1 < len(runes) && runes[i+1] == '|':
			segments = append(segments, current.String())
			current.Reset()
			i++
		case ch == '|' || ch == ';':
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

func rank(r RiskLevel) int {
	switch r {
	case RiskSafe:
		return 0
	case RiskWarning:
		return 1
	case RiskUnknown:
		return 2
	case RiskDangerous:
		return 3
	}
	return 2
}

// SuggestCommand fuzzy-matches an unrecognized command name against the
// whitelist, used to surface "did you mean" hints in rejection messages.
func SuggestCommand(name string, max int) []string {
	var candidates []string
	for cmd := range allowedCommands {
		candidates = append(candidates, cmd)
	}
	matches := fuzzy.Find(name, candidates)
	var out []string
	for i, m := range matches {
		if i >= max {
			break
		}
		out = append(out, candidates[m.Index])
	}
	return out
}
