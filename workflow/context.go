package workflow

import (
	"time"

	"github.com/BaSui01/agentpipe/types"
)

// State is a pipeline stage.
type State string

const (
	StateIdle           State = "idle"
	StateSpecCreated    State = "spec_created"
	StatePlanApproved   State = "plan_approved"
	StateCodeGenerated  State = "code_generated"
	StateReviewDone     State = "review_done"
	StateReviewRejected State = "review_rejected"
	StateTestsWritten   State = "tests_written"
	StateTestsFailed    State = "tests_failed"
	StateTestsPassed    State = "tests_passed"
	StateFixApplied     State = "fix_applied"
	StateQAApproved     State = "qa_approved"
	StateQARejected     State = "qa_rejected"
	StateComplete       State = "complete"
	StateFailed         State = "failed"
)

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the immutable snapshot of one task's progress. Transitions
// never mutate a Context in place; they return a new value, so concurrent
// observers never see a half-updated record.
type Context struct {
	Task          string `json:"task"`
	State         State  `json:"state"`
	Iteration     int    `json:"iteration"`
	MaxIterations int    `json:"max_iterations"`

	Spec           string   `json:"spec,omitempty"`
	Plan           string   `json:"plan,omitempty"`
	ReviewFeedback string   `json:"review_feedback,omitempty"`
	TestFailures   string   `json:"test_failures,omitempty"`
	GeneratedFiles []string `json:"generated_files,omitempty"`

	AbortReason string `json:"abort_reason,omitempty"`
	QAVerdict   string `json:"qa_verdict,omitempty"`

	History []HistoryEntry `json:"history"`
}

// NewContext creates the initial context for a task.
func NewContext(task string, maxIterations int) Context {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return Context{
		Task:          task,
		State:         StateIdle,
		MaxIterations: maxIterations,
	}
}

// IsTerminal reports whether no further transition can succeed.
func IsTerminal(ctx Context) bool {
	return ctx.State == StateComplete || ctx.State == StateFailed
}

// NextAgent returns the agent role due to run from the current state.
// States the runner resolves internally (spec_created, fix_applied,
// tests_written) and states with no further work (qa_approved,
// qa_rejected, terminals) return false.
func NextAgent(ctx Context) (types.AgentRole, bool) {
	switch ctx.State {
	case StateIdle:
		return types.RoleArchitect, true
	case StatePlanApproved:
		return types.RoleCoder, true
	case StateCodeGenerated:
		return types.RoleReviewer, true
	case StateReviewDone:
		return types.RoleTester, true
	case StateReviewRejected, StateTestsFailed:
		return types.RoleFixer, true
	case StateTestsPassed:
		return types.RoleJudge, true
	}
	return "", false
}

// clone returns a deep copy so transition outputs share no mutable state
// with their inputs.
func (c Context) clone() Context {
	out := c
	if c.GeneratedFiles != nil {
		out.GeneratedFiles = make([]string, len(c.GeneratedFiles))
		copy(out.GeneratedFiles, c.GeneratedFiles)
	}
	if c.History != nil {
		out.History = make([]HistoryEntry, len(c.History))
		copy(out.History, c.History)
	}
	return out
}
