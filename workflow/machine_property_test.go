package workflow

import (
	"testing"

	"pgregory.net/rapid"
)

// randomEvent draws one event from the full alphabet, with arbitrary
// payloads. Most draws are illegal for any given state, which is the point:
// the machine must reject them without touching the input context.
func randomEvent(t *rapid.T) Event {
	switch rapid.IntRange(0, 10).Draw(t, "kind") {
	case 0:
		return SpecReady{Spec: rapid.String().Draw(t, "spec")}
	case 1:
		return PlanApproved{Plan: rapid.String().Draw(t, "plan")}
	case 2:
		return CodeGenerated{Files: rapid.SliceOfN(rapid.String(), 0, 3).Draw(t, "files")}
	case 3:
		return ReviewDone{
			Approved: rapid.Bool().Draw(t, "approved"),
			Feedback: rapid.String().Draw(t, "feedback"),
		}
	case 4:
		return TestsWritten{TestFiles: rapid.SliceOfN(rapid.String(), 0, 3).Draw(t, "testFiles")}
	case 5:
		return TestsPassed{}
	case 6:
		return TestsFailed{Failures: rapid.String().Draw(t, "failures")}
	case 7:
		return FixApplied{Files: rapid.SliceOfN(rapid.String(), 0, 3).Draw(t, "fixFiles")}
	case 8:
		return QAApproved{}
	case 9:
		return QARejected{Reason: rapid.String().Draw(t, "reason")}
	default:
		return Abort{Reason: rapid.String().Draw(t, "abortReason")}
	}
}

func TestTransitionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := NewContext("task", rapid.IntRange(1, 6).Draw(t, "maxIterations"))
		applied := 0

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			ev := randomEvent(t)
			before := ctx

			next, err := Transition(ctx, ev)
			if err != nil {
				// Failed transitions leave the input untouched.
				if ctx.State != before.State || ctx.Iteration != before.Iteration ||
					len(ctx.History) != len(before.History) {
					t.Fatalf("context changed on error: %v", err)
				}
				continue
			}

			applied++
			if len(next.History) != applied {
				t.Fatalf("history length %d after %d applied transitions", len(next.History), applied)
			}
			if next.Iteration < ctx.Iteration {
				t.Fatalf("iteration decreased: %d -> %d", ctx.Iteration, next.Iteration)
			}
			if next.Iteration >= next.MaxIterations {
				t.Fatalf("iteration %d reached max %d", next.Iteration, next.MaxIterations)
			}
			last := next.History[len(next.History)-1]
			if last.From != ctx.State || last.To != next.State || last.Event != ev.EventName() {
				t.Fatalf("history entry %+v does not match transition %s -> %s via %s",
					last, ctx.State, next.State, ev.EventName())
			}
			ctx = next

			if IsTerminal(ctx) {
				break
			}
		}
	})
}

func TestAbortAlwaysLegalFromNonTerminal(t *testing.T) {
	nonTerminal := []State{
		StateIdle, StateSpecCreated, StatePlanApproved, StateCodeGenerated,
		StateReviewDone, StateReviewRejected, StateTestsWritten,
		StateTestsFailed, StateTestsPassed, StateFixApplied,
		StateQAApproved, StateQARejected,
	}
	rapid.Check(t, func(t *rapid.T) {
		state := rapid.SampledFrom(nonTerminal).Draw(t, "state")
		ctx := NewContext("task", 3)
		ctx.State = state

		next, err := Transition(ctx, Abort{Reason: "stop"})
		if err != nil {
			t.Fatalf("abort rejected in state %s: %v", state, err)
		}
		if next.State != StateFailed || !IsTerminal(next) {
			t.Fatalf("abort from %s yielded %s", state, next.State)
		}
	})
}
