package workflow

// Event is a fact fed into the state machine: a pipeline stage completed,
// with or without approval, or the run was aborted. The interface is sealed
// so the transition function's type switch stays exhaustive.
type Event interface {
	// EventName returns the event's wire name, used in history entries.
	EventName() string

	isEvent()
}

// SpecReady reports the architect produced a specification.
type SpecReady struct {
	Spec string
}

// PlanApproved reports the implementation plan was accepted.
type PlanApproved struct {
	Plan string
}

// CodeGenerated reports the coder (or a fix cycle) produced files.
type CodeGenerated struct {
	Files []string
}

// ReviewDone reports the reviewer's verdict.
type ReviewDone struct {
	Approved bool
	Feedback string
}

// TestsWritten reports the tester produced test files.
type TestsWritten struct {
	TestFiles []string
}

// TestsPassed reports the test run succeeded.
type TestsPassed struct{}

// TestsFailed reports the test run failed.
type TestsFailed struct {
	Failures string
}

// FixApplied reports the fixer produced replacement files.
type FixApplied struct {
	Files []string
}

// QAApproved reports the judge's final approval.
type QAApproved struct{}

// QARejected reports the judge's final rejection.
type QARejected struct {
	Reason string
}

// Abort forces the run into the failed terminal state from any
// non-terminal state.
type Abort struct {
	Reason string
}

func (SpecReady) EventName() string     { return "SPEC_READY" }
func (PlanApproved) EventName() string  { return "PLAN_APPROVED" }
func (CodeGenerated) EventName() string { return "CODE_GENERATED" }
func (ReviewDone) EventName() string    { return "REVIEW_DONE" }
func (TestsWritten) EventName() string  { return "TESTS_WRITTEN" }
func (TestsPassed) EventName() string   { return "TESTS_PASSED" }
func (TestsFailed) EventName() string   { return "TESTS_FAILED" }
func (FixApplied) EventName() string    { return "FIX_APPLIED" }
func (QAApproved) EventName() string    { return "QA_APPROVED" }
func (QARejected) EventName() string    { return "QA_REJECTED" }
func (Abort) EventName() string         { return "ABORT" }

func (SpecReady) isEvent()     {}
func (PlanApproved) isEvent()  {}
func (CodeGenerated) isEvent() {}
func (ReviewDone) isEvent()    {}
func (TestsWritten) isEvent()  {}
func (TestsPassed) isEvent()   {}
func (TestsFailed) isEvent()   {}
func (FixApplied) isEvent()    {}
func (QAApproved) isEvent()    {}
func (QARejected) isEvent()    {}
func (Abort) isEvent()         {}
