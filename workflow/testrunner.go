package workflow

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// CommandTestRunner runs the project's test suite as an external command
// under a hard wall-clock timeout. A timeout fails closed: the run counts
// as a test failure, never a hang.
type CommandTestRunner struct {
	// Command and Args name the test command, e.g. "go" and ["test", "./..."].
	Command string
	Args    []string
	// Timeout bounds one suite run. Zero means DefaultTestTimeout.
	Timeout time.Duration
}

// DefaultTestTimeout bounds a single test-suite run.
const DefaultTestTimeout = 2 * time.Minute

// Run implements TestRunner.
func (r CommandTestRunner) Run(ctx context.Context, projectRoot string) (TestResult, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Command, r.Args...)
	cmd.Dir = projectRoot

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	result := TestResult{Passed: err == nil, Output: out.String()}

	if runCtx.Err() != nil && ctx.Err() == nil {
		result.Output += "\n(test run timed out after " + timeout.String() + ")"
		return result, nil
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		// The command could not run at all; that is an infrastructure
		// error, not a test verdict.
		return result, err
	}
	return result, nil
}
