package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const maxReadBytes = 200_000

// ReadSchema describes the read_file tool.
var ReadSchema = Schema{
	Name:        "read_file",
	Description: "Read the contents of a file, optionally a line range.",
	Parameters: []Parameter{
		{Name: "path", Type: TypeString, Required: true, Description: "path to the file, relative to the project root", Example: "src/main.go", Aliases: []string{"filepath", "file_path", "file"}},
		{Name: "start_line", Type: TypeInt, Description: "1-indexed first line to include", Example: 10},
		{Name: "end_line", Type: TypeInt, Description: "1-indexed last line to include", Example: 50},
	},
	Returns: "the file's contents, or a line-numbered excerpt if a range is given",
}

// NewReadTool returns a tool body rooted at workDir.
func NewReadTool(workDir string) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		path, _ := params["path"].(string)
		if path == "" {
			return Result{Success: false, Error: "path is required"}, nil
		}
		abs, err := ValidatePath(workDir, path)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}

		info, err := os.Stat(abs)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot read %s: %v", path, err)}, nil
		}
		start, hasStart := intParam(params, "start_line")
		end, hasEnd := intParam(params, "end_line")
		if info.Size() > maxReadBytes && !hasStart && !hasEnd {
			return Result{Success: false, Error: fmt.Sprintf("%s is %d bytes, exceeds the %d byte read limit — use grep_search or a line range instead", path, info.Size(), maxReadBytes)}, nil
		}

		data, err := os.ReadFile(abs)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot read %s: %v", path, err)}, nil
		}

		if !hasStart && !hasEnd {
			return Result{Success: true, Output: string(data)}, nil
		}

		lines := strings.Split(string(data), "\n")
		if !hasStart {
			start = 1
		}
		if !hasEnd {
			end = len(lines)
		}
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return Result{Success: true, Output: ""}, nil
		}

		var b strings.Builder
		for i := start; i <= end; i++ {
			fmt.Fprintf(&b, "%6d\t%s\n", i, lines[i-1])
		}
		return Result{Success: true, Output: b.String()}, nil
	}
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
