package workflow

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentpipe/types"
)

// Transition applies an event to a context and returns the resulting
// context. It is a pure function: the input context is never mutated, and
// on error it is the caller's unchanged value that remains authoritative.
//
// Iteration accounting: a rejecting ReviewDone and a FixApplied raised from
// tests_failed each consume one iteration. A FixApplied raised from
// review_rejected does not, since the rejection that put the run there
// already counted. A transition that would push iteration to maxIterations
// or beyond fails before any state changes.
func Transition(ctx Context, ev Event) (Context, error) {
	if IsTerminal(ctx) {
		return ctx, invalidTransition(ctx.State, ev)
	}

	switch e := ev.(type) {
	case SpecReady:
		if ctx.State != StateIdle {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StateSpecCreated, ev)
		next.Spec = e.Spec
		return next, nil

	case PlanApproved:
		if ctx.State != StateSpecCreated {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StatePlanApproved, ev)
		next.Plan = e.Plan
		return next, nil

	case CodeGenerated:
		if ctx.State != StatePlanApproved && ctx.State != StateFixApplied {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StateCodeGenerated, ev)
		next.GeneratedFiles = append(next.GeneratedFiles, e.Files...)
		return next, nil

	case ReviewDone:
		if ctx.State != StateCodeGenerated {
			return ctx, invalidTransition(ctx.State, ev)
		}
		if e.Approved {
			next := advance(ctx, StateReviewDone, ev)
			next.ReviewFeedback = e.Feedback
			return next, nil
		}
		if err := checkIterationBudget(ctx); err != nil {
			return ctx, err
		}
		next := advance(ctx, StateReviewRejected, ev)
		next.Iteration++
		next.ReviewFeedback = e.Feedback
		return next, nil

	case TestsWritten:
		if ctx.State != StateReviewDone {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StateTestsWritten, ev)
		next.GeneratedFiles = append(next.GeneratedFiles, e.TestFiles...)
		return next, nil

	case TestsPassed:
		if ctx.State != StateTestsWritten {
			return ctx, invalidTransition(ctx.State, ev)
		}
		return advance(ctx, StateTestsPassed, ev), nil

	case TestsFailed:
		if ctx.State != StateTestsWritten {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StateTestsFailed, ev)
		next.TestFailures = e.Failures
		return next, nil

	case FixApplied:
		if ctx.State != StateReviewRejected && ctx.State != StateTestsFailed {
			return ctx, invalidTransition(ctx.State, ev)
		}
		fromTests := ctx.State == StateTestsFailed
		if fromTests {
			if err := checkIterationBudget(ctx); err != nil {
				return ctx, err
			}
		}
		next := advance(ctx, StateFixApplied, ev)
		if fromTests {
			next.Iteration++
		}
		next.GeneratedFiles = append(next.GeneratedFiles, e.Files...)
		return next, nil

	case QAApproved:
		if ctx.State != StateTestsPassed {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StateQAApproved, ev)
		next.QAVerdict = "approved"
		return next, nil

	case QARejected:
		if ctx.State != StateTestsPassed {
			return ctx, invalidTransition(ctx.State, ev)
		}
		next := advance(ctx, StateQARejected, ev)
		next.QAVerdict = e.Reason
		return next, nil

	case Abort:
		next := advance(ctx, StateFailed, ev)
		next.AbortReason = e.Reason
		return next, nil

	default:
		return ctx, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("unknown event %q in state %q", ev.EventName(), ctx.State))
	}
}

// advance clones the context, moves it to the target state, and appends the
// history entry for the applied event.
func advance(ctx Context, to State, ev Event) Context {
	next := ctx.clone()
	next.History = append(next.History, HistoryEntry{
		From:      ctx.State,
		To:        to,
		Event:     ev.EventName(),
		Timestamp: time.Now().UTC(),
	})
	next.State = to
	return next
}

func checkIterationBudget(ctx Context) error {
	if ctx.Iteration+1 >= ctx.MaxIterations {
		return types.NewError(types.ErrIterationLimit,
			fmt.Sprintf("iteration limit reached: incrementing from %d would reach max %d",
				ctx.Iteration, ctx.MaxIterations)).
			WithContext("iteration", ctx.Iteration).
			WithContext("max_iterations", ctx.MaxIterations)
	}
	return nil
}

func invalidTransition(from State, ev Event) error {
	return types.NewError(types.ErrInvalidTransition,
		fmt.Sprintf("event %s is not valid in state %q", ev.EventName(), from)).
		WithContext("state", string(from)).
		WithContext("event", ev.EventName())
}
