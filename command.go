package reach

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// CommandRunner executes a shell command on the local host.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error)
}

// ShellRunner implements CommandRunner with "sh -c".
type ShellRunner struct {
	Shell string   // defaults to /bin/sh
	Env   []string // appended to the environment of this process
}

var _ CommandRunner = (*ShellRunner)(nil)

// NewShellRunner returns a ShellRunner using /bin/sh.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: "/bin/sh"}
}

// Run implements CommandRunner. A non-zero exit code is part of the
// result; so is a timeout, which kills the whole process group. Only a
// command that could not be started is reported as error.
func (r *ShellRunner) Run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cctx, shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 500 * time.Millisecond
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	setProcessGroup(cmd)

	start := time.Now()
	err := cmd.Run()

	res := CommandResult{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return res, probeError(CheckCommand, command, ctx.Err())
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, probeError(CheckCommand, command, err)
	}
	return res, nil
}
