package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const maxGrepMatches = 200

// GrepSchema describes the grep_search tool.
var GrepSchema = Schema{
	Name:        "grep_search",
	Description: "Search file contents for a regular expression.",
	Parameters: []Parameter{
		{Name: "pattern", Type: TypeString, Required: true, Description: "regular expression to search for", Example: "func Test\\w+"},
		{Name: "path", Type: TypeString, Description: "directory to search under; defaults to the project root", Default: ".", Aliases: []string{"dir"}},
		{Name: "file_glob", Type: TypeString, Description: "restrict the search to files matching this glob", Example: "*.go", Aliases: []string{"glob"}},
	},
	Returns: "matching lines as path:line:text, capped at 200 matches",
}

// NewGrepTool returns a tool body rooted at workDir.
func NewGrepTool(workDir string) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		patternStr, _ := params["pattern"].(string)
		if patternStr == "" {
			return Result{Success: false, Error: "pattern is required"}, nil
		}
		re, err := regexp.Compile(patternStr)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("invalid pattern: %v", err)}, nil
		}

		root, _ := params["path"].(string)
		if root == "" {
			root = "."
		}
		absRoot, err := ValidatePath(workDir, root)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		fileGlob, _ := params["file_glob"].(string)

		var lines []string
		truncated := false
		_ = filepath.WalkDir(absRoot, func(p string, d os.DirEntry, err error) error {
			if err != nil || len(lines) >= maxGrepMatches {
				if len(lines) >= maxGrepMatches {
					truncated = true
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == ".aacode" {
					return filepath.SkipDir
				}
				return nil
			}
			if fileGlob != "" {
				if ok, _ := filepath.Match(fileGlob, d.Name()); !ok {
					return nil
				}
			}
			f, err := os.Open(p)
			if err != nil {
				return nil
			}
			defer f.Close()

			rel, _ := filepath.Rel(workDir, p)
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			lineNo := 0
			for scanner.Scan() {
				lineNo++
				if re.MatchString(scanner.Text()) {
					lines = append(lines, fmt.Sprintf("%s:%d:%s", rel, lineNo, scanner.Text()))
					if len(lines) >= maxGrepMatches {
						truncated = true
						break
					}
				}
			}
			return nil
		})

		sort.Strings(lines)
		out := strings.Join(lines, "\n")
		if truncated {
			out += fmt.Sprintf("\n... truncated at %d matches", maxGrepMatches)
		}
		return Result{Success: true, Output: out}, nil
	}
}
