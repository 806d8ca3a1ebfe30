package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListSchema describes the list_dir tool.
var ListSchema = Schema{
	Name:        "list_dir",
	Description: "List the immediate entries of a directory.",
	Parameters: []Parameter{
		{Name: "path", Type: TypeString, Description: "directory to list, relative to the project root; defaults to the project root", Default: ".", Example: "src", Aliases: []string{"dir", "directory"}},
	},
	Returns: "a newline-separated listing, directories suffixed with /",
}

// NewListTool returns a tool body rooted at workDir.
func NewListTool(workDir string) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		path, _ := params["path"].(string)
		if path == "" {
			path = "."
		}
		abs, err := ValidatePath(workDir, path)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}

		entries, err := os.ReadDir(abs)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot list %s: %v", path, err)}, nil
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return Result{Success: true, Output: strings.Join(names, "\n")}, nil
	}
}

// GlobSchema describes the glob_search tool.
var GlobSchema = Schema{
	Name:        "glob_search",
	Description: "Find files matching a glob pattern, newest first.",
	Parameters: []Parameter{
		{Name: "pattern", Type: TypeString, Required: true, Description: "glob pattern matched against each file's path relative to the search directory and against its base name, e.g. *.go; ** has no special meaning", Example: "*.go", Aliases: []string{"glob"}},
		{Name: "path", Type: TypeString, Description: "directory to search under; defaults to the project root", Default: ".", Aliases: []string{"dir"}},
	},
	Returns: "matching file paths, one per line, most recently modified first",
}

// NewGlobTool returns a tool body rooted at workDir.
func NewGlobTool(workDir string) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		pattern, _ := params["pattern"].(string)
		if pattern == "" {
			return Result{Success: false, Error: "pattern is required"}, nil
		}
		root, _ := params["path"].(string)
		if root == "" {
			root = "."
		}
		absRoot, err := ValidatePath(workDir, root)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}

		type match struct {
			path    string
			modTime int64
		}
		var matches []match
		_ = filepath.WalkDir(absRoot, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if d.Name() == ".git" || d.Name() == "node_modules" || d.Name() == ".aacode" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(absRoot, p)
			if err != nil {
				return nil
			}
			ok, err := filepath.Match(pattern, rel)
			if err != nil || !ok {
				ok, _ = filepath.Match(pattern, filepath.Base(p))
				if !ok {
					return nil
				}
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			matches = append(matches, match{path: rel, modTime: info.ModTime().UnixNano()})
			return nil
		})

		sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })
		lines := make([]string, len(matches))
		for i, m := range matches {
			lines[i] = m.path
		}
		return Result{Success: true, Output: strings.Join(lines, "\n")}, nil
	}
}
