package jobs

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// CommandJobType is the job type served by CommandHandler.
const CommandJobType = "command"

// maxResultBytes bounds the command output kept as the job result.
const maxResultBytes = 4096

// CommandSpec describes a shell command line to run as a job.
type CommandSpec struct {
	Shell  string   `json:"shell,omitempty"` // defaults to "sh"
	Script string   `json:"script"`
	Dir    string   `json:"dir,omitempty"`
	Env    []string `json:"env,omitempty"`
}

// CommandHandler runs command.Script with "<shell> -c". The process is killed
// when ctx ends. The combined output, truncated to its last 4 KiB, is the
// job result; a non-zero exit status is reported as an *exec.ExitError.
func CommandHandler(ctx context.Context, command CommandSpec) (string, error) {
	shell := command.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command.Script)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	out, err := cmd.CombinedOutput()
	if len(out) > maxResultBytes {
		out = out[len(out)-maxResultBytes:]
	}
	return strings.TrimSpace(string(out)), err
}

// RegisterCommandHandler registers CommandHandler under CommandJobType.
func RegisterCommandHandler(r *Runner) error {
	return RegisterHandler[CommandSpec](r, CommandJobType, CommandHandler)
}

// SubmitCommand submits command as a command job.
func (r *Runner) SubmitCommand(ctx context.Context, id string, command CommandSpec) error {
	return r.Submit(ctx, id, CommandJobType, command)
}
