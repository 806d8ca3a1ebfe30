package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSchema describes the write_file tool.
var WriteSchema = Schema{
	Name:        "write_file",
	Description: "Create or overwrite a file with the given content.",
	Parameters: []Parameter{
		{Name: "path", Type: TypeString, Required: true, Description: "path to the file, relative to the project root", Example: "src/main.go", Aliases: []string{"filepath", "file_path", "file"}},
		{Name: "content", Type: TypeString, Required: true, Description: "full file content to write", Example: "package main\n"},
	},
	Returns: "confirmation of the bytes written",
}

// NewWriteTool returns a tool body rooted at workDir.
func NewWriteTool(workDir string) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		path, _ := params["path"].(string)
		content, _ := params["content"].(string)
		if path == "" {
			return Result{Success: false, Error: "path is required"}, nil
		}
		abs, err := ValidatePath(workDir, path)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot create parent directory: %v", err)}, nil
		}
		if err := AtomicWrite(abs, []byte(content), 0644); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot write %s: %v", path, err)}, nil
		}
		return Result{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil
	}
}
