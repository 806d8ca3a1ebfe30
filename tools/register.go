package tools

import "github.com/kandada/aacode/safety"

// RegisterAll wires every concrete tool body into a fresh Registry rooted
// at workDir, using guard for run_shell's safety checks.
func RegisterAll(workDir string, guard *safety.Guard, confirm Confirmer) *Registry {
	r := New()
	r.Register(ReadSchema, NewReadTool(workDir))
	r.Register(WriteSchema, NewWriteTool(workDir))
	r.Register(EditSchema, NewEditTool(workDir))
	r.Register(ListSchema, NewListTool(workDir))
	r.Register(GlobSchema, NewGlobTool(workDir))
	r.Register(GrepSchema, NewGrepTool(workDir))
	r.Register(BashSchema, NewBashTool(workDir, guard, confirm))
	return r
}
