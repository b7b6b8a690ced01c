package workflow

import (
	"context"

	"github.com/BaSui01/agentpipe/types"
)

// NoFilesParsed is recorded in place of a path list when a coder or fixer
// response contained no recognizable file blocks. The run continues; the
// reviewer sees the raw output and decides what to make of it.
const NoFilesParsed = "<no-files-parsed>"

// FileWriter extracts file blocks from raw agent output and writes them
// under the project root, returning the relative paths written.
type FileWriter interface {
	ParseAndWrite(projectRoot, raw string) ([]string, error)
}

// TestResult is the outcome of one test-suite run.
type TestResult struct {
	Passed bool
	Output string
}

// TestRunner executes the project's test suite. Implementations apply
// their own wall-clock timeout and fail closed on expiry.
type TestRunner interface {
	Run(ctx context.Context, projectRoot string) (TestResult, error)
}

// Decision is a human verdict on a checkpoint.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionRetry   Decision = "retry"
	DecisionAbort   Decision = "abort"
)

// ApprovalFunc requests an external decision after a transition. It is only
// consulted when the runner is not in autonomous mode.
type ApprovalFunc func(ctx context.Context, wctx Context) (Decision, error)

// PromptLibrary supplies the system prompt for each agent role.
type PromptLibrary interface {
	SystemPrompt(role types.AgentRole) string
}

// PromptFunc adapts a plain function to PromptLibrary.
type PromptFunc func(role types.AgentRole) string

func (f PromptFunc) SystemPrompt(role types.AgentRole) string { return f(role) }
