// Package sysexec is the boundary to the OS network tooling. Everything the
// daemon does to the host (route lookups, address add/remove, ARP announce,
// reachability probe) goes through the Runner interface so that the callers
// can be tested without touching the host network stack.
package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result carries the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a single command and waits for it to finish. A non-zero
// exit code is reported through Result, not through the error value; the
// error is reserved for failures to run the command at all (binary missing,
// context cancelled).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("sysexec: could not run %s: %w", name, err)
	}
	return res, nil
}
