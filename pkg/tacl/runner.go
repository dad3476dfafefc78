package tacl

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/core-tools/hsu-tsmp/pkg/errors"
	"github.com/core-tools/hsu-tsmp/pkg/logging"
)

// Result is the outcome of a non-interactive command
type Result struct {
	ExitCode int
	Output   string
}

// Runner runs a command to completion and captures its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands as local child processes
type ExecRunner struct {
	logger logging.Logger
}

func NewExecRunner(logger logging.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run returns an error only when the command could not be run at all; a
// non-zero exit code is reported in the result.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	r.logger.Debugf("Running command: %s %v", name, args)

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return Result{}, errors.NewSpawnError("failed to run command", err).WithContext("command", name)
		}
		if ctx.Err() != nil {
			return Result{}, errors.NewTimeoutError("command interrupted", ctx.Err()).WithContext("command", name)
		}
		return Result{ExitCode: exitErr.ExitCode(), Output: output.String()}, nil
	}

	r.logger.Debugf("Command finished, command: %s, output: %q", name, output.String())
	return Result{ExitCode: 0, Output: output.String()}, nil
}
