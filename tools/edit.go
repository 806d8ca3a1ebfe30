package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditSchema describes the edit_file tool: a single exact string
// replacement, matching the teacher's preference for anchored diffs over
// whole-file rewrites.
var EditSchema = Schema{
	Name:        "edit_file",
	Description: "Replace one exact occurrence of old_text with new_text in a file.",
	Parameters: []Parameter{
		{Name: "path", Type: TypeString, Required: true, Description: "path to the file, relative to the project root", Example: "src/main.go", Aliases: []string{"filepath", "file_path", "file"}},
		{Name: "old_text", Type: TypeString, Required: true, Description: "exact text to replace; must appear exactly once unless replace_all is set", Example: "func old() {}"},
		{Name: "new_text", Type: TypeString, Required: true, Description: "replacement text", Example: "func new() {}"},
		{Name: "replace_all", Type: TypeBool, Description: "replace every occurrence instead of requiring exactly one", Default: false},
	},
	Returns: "confirmation of the replacement, or an error if old_text is missing or ambiguous",
}

// NewEditTool returns a tool body rooted at workDir.
func NewEditTool(workDir string) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		path, _ := params["path"].(string)
		oldText, _ := params["old_text"].(string)
		newText, _ := params["new_text"].(string)
		replaceAll, _ := params["replace_all"].(bool)

		if path == "" || oldText == "" {
			return Result{Success: false, Error: "path and old_text are required"}, nil
		}
		abs, err := ValidatePath(workDir, path)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}

		data, err := os.ReadFile(abs)
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot read %s: %v", path, err)}, nil
		}
		content := string(data)

		count := strings.Count(content, oldText)
		if count == 0 {
			return Result{Success: false, Error: fmt.Sprintf("old_text not found in %s", path)}, nil
		}
		if count > 1 && !replaceAll {
			return Result{Success: false, Error: fmt.Sprintf("old_text appears %d times in %s; pass replace_all=true or narrow the match", count, path)}, nil
		}

		var updated string
		if replaceAll {
			updated = strings.ReplaceAll(content, oldText, newText)
		} else {
			updated = strings.Replace(content, oldText, newText, 1)
		}

		if err := AtomicWrite(abs, []byte(updated), 0644); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("cannot write %s: %v", path, err)}, nil
		}
		return Result{Success: true, Output: fmt.Sprintf("replaced %d occurrence(s) in %s", count, path)}, nil
	}
}
