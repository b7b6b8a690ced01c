// Package workflow implements the pipeline orchestration engine: a pure
// state machine over an immutable workflow context, and the runner that
// drives role-specialized agents (architect, coder, reviewer, tester,
// fixer, judge) through it until the run completes or fails.
//
// The state machine is a pure function: every transition returns a new
// Context value and never mutates its input, so the runner, checkpointing,
// and any observer always see a consistent snapshot. All side effects
// (backend calls, file writes, test runs, checkpoint persistence) live in
// the Runner.
package workflow
