package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/kandada/aacode/safety"
)

const maxShellOutput = 20_000

// BashSchema describes the run_shell tool.
var BashSchema = Schema{
	Name:        "run_shell",
	Description: "Run a shell command in the project directory.",
	Parameters: []Parameter{
		{Name: "command", Type: TypeString, Required: true, Description: "the shell command to run", Example: "go test ./...", Aliases: []string{"cmd", "shell_command"}},
		{Name: "timeout_seconds", Type: TypeInt, Description: "kill the command if it runs longer than this many seconds", Default: 30, Example: 60},
	},
	Returns: "combined stdout/stderr, capped at 20000 characters, with the exit code",
}

// Confirmer is asked to approve a command the safety guard flagged as
// needing confirmation. It returns true to proceed.
type Confirmer func(command string, decision safety.Decision) bool

// NewBashTool returns a tool body that checks every command against guard
// before running it in workDir. confirm is consulted for any command the
// guard doesn't outright allow; a nil confirm treats every such command as
// declined.
func NewBashTool(workDir string, guard *safety.Guard, confirm Confirmer) Func {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		command, _ := params["command"].(string)
		if command == "" {
			return Result{Success: false, Error: "command is required"}, nil
		}

		decision := guard.Check(command)
		if !decision.Allowed {
			proceed := false
			if confirm != nil {
				proceed = confirm(command, decision)
			}
			if !proceed {
				return Result{Success: false, Error: fmt.Sprintf("命令被安全护栏拒绝 (%s): %s", decision.RiskLevel, decision.Reason)}, nil
			}
		}

		timeoutSec, ok := intParam(params, "timeout_seconds")
		if !ok || timeoutSec <= 0 {
			timeoutSec = 30
		}
		runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()

		cmd := exec.CommandContext(runCtx, "bash", "-c", command)
		cmd.Dir = workDir
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		start := time.Now()
		err := cmd.Run()
		elapsed := time.Since(start)

		output := out.String()
		truncated := false
		if len(output) > maxShellOutput {
			output = output[:maxShellOutput]
			truncated = true
		}
		if truncated {
			output += "\n... output truncated"
		}

		if runCtx.Err() != nil {
			return Result{Success: false, Error: fmt.Sprintf("command timed out after %v", elapsed), Output: output}, nil
		}

		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if err != nil {
			return Result{Success: false, Error: err.Error(), Output: output}, nil
		}

		return Result{
			Success: exitCode == 0,
			Output:  output,
			Extra:   map[string]any{"exit_code": exitCode, "elapsed_ms": elapsed.Milliseconds(), "risk_level": string(decision.RiskLevel)},
		}, nil
	}
}
