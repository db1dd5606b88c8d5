package loaderinstall

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"

	"github.com/meza/minecraft-modpack-launcher/internal/lifecycle"
)

type Command struct {
	Name string
	Args []string
	Dir  string
}

type ProcessResult struct {
	ExitCode int
	Output   string
}

// ProcessRunner runs a command to completion. A non-zero exit is reported through ExitCode, not
// as an error; errors are reserved for processes that could not run at all.
type ProcessRunner interface {
	Run(ctx context.Context, command Command) (ProcessResult, error)
}

// ExecRunner runs commands with os/exec, mirroring combined output to Mirror when set.
type ExecRunner struct {
	Mirror io.Writer
}

func (runner ExecRunner) Run(ctx context.Context, command Command) (ProcessResult, error) {
	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	cmd.Dir = command.Dir

	var output bytes.Buffer
	var sink io.Writer = &output
	if runner.Mirror != nil {
		sink = io.MultiWriter(&output, runner.Mirror)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Start(); err != nil {
		return ProcessResult{}, err
	}
	release := lifecycle.Guard(func() {
		_ = cmd.Process.Kill()
	})
	defer release()

	err := cmd.Wait()
	result := ProcessResult{Output: output.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, nil
	}
	return result, err
}
