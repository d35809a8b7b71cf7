// Package adapters provides the concrete ports implementations that wire
// the engine to the operating system and the operator's terminal: a
// timeout-enforcing ProcessRunner (adapted from the teacher's RealExecutor)
// and a terminal-based IOHandler (adapted from its InteractiveCollector).
package adapters

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/ormasoftchile/playbook/internal/errs"
	"github.com/ormasoftchile/playbook/internal/ports"
)

// ShellRunner executes a Command node's shell string via the platform shell,
// enforcing the node's timeout and supporting an interactive mode that
// inherits stdio instead of capturing it (§5/§6).
type ShellRunner struct{}

// NewShellRunner builds a ShellRunner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

func (r *ShellRunner) Run(ctx context.Context, commandName string, timeout time.Duration, interactive bool) (*ports.CommandResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shell, flag := shellCommand()
	cmd := exec.CommandContext(runCtx, shell, flag, commandName)

	var stdout, stderr bytes.Buffer
	if interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return &ports.CommandResult{TimedOut: true, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, errs.Wrap(errs.KindNodeExecution, err, "execute command %q", commandName)
		}
	}

	return &ports.CommandResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func shellCommand() (string, string) {
	if runtime.GOOS == "windows" {
		return "cmd.exe", "/C"
	}
	return "/bin/sh", "-c"
}
