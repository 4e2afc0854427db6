// Package iso stages the extracted disc image tree and repacks it into a
// bootable hybrid ISO using xorriso.
package iso

import (
	"context"
	"os/exec"
)

// Runner abstracts subprocess invocation so staging and repacking can be
// exercised in tests without xorriso installed.
type Runner interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath reports where a command resolves on the execution path.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
