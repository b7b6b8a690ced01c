package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/internal/metrics"
	"github.com/BaSui01/agentpipe/llm"
	"github.com/BaSui01/agentpipe/session"
	"github.com/BaSui01/agentpipe/types"
)

// Runner drives one task through the pipeline: ask the state machine which
// role is due, invoke it through the backend, fold the output back in as a
// transition, checkpoint, repeat until terminal.
type Runner struct {
	backend  llm.AgentBackend
	store    session.Store
	files    FileWriter
	tests    TestRunner
	approval ApprovalFunc
	prompts  PromptLibrary

	usage     *session.UsageTracker
	collector *metrics.Collector
	logger    *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFileWriter replaces the default markdown file-block writer.
func WithFileWriter(fw FileWriter) RunnerOption {
	return func(r *Runner) { r.files = fw }
}

// WithTestRunner installs a test-suite runner. Without one, written tests
// are assumed to pass.
func WithTestRunner(tr TestRunner) RunnerOption {
	return func(r *Runner) { r.tests = tr }
}

// WithApproval installs the external decision hook consulted after every
// step when the run is not autonomous.
func WithApproval(fn ApprovalFunc) RunnerOption {
	return func(r *Runner) { r.approval = fn }
}

// WithPrompts replaces the built-in system prompts.
func WithPrompts(p PromptLibrary) RunnerOption {
	return func(r *Runner) { r.prompts = p }
}

// WithUsageTracker shares a usage tracker with the backend layer so
// checkpoints carry per-role token totals.
func WithUsageTracker(t *session.UsageTracker) RunnerOption {
	return func(r *Runner) { r.usage = t }
}

// WithCollector attaches a metrics collector.
func WithCollector(c *metrics.Collector) RunnerOption {
	return func(r *Runner) { r.collector = c }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner builds a runner around a backend and a checkpoint store.
func NewRunner(backend llm.AgentBackend, store session.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend: backend,
		store:   store,
		files:   MarkdownFileWriter{},
		prompts: DefaultPrompts(),
		usage:   session.NewUsageTracker(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOptions parameterize a single task run.
type RunOptions struct {
	// ProjectRoot is the directory files and checkpoints are written under.
	ProjectRoot string
	// Task is the work description handed to the architect.
	Task string
	// Auto skips the human-approval hook between steps.
	Auto bool
	// MaxIterations bounds rework cycles. Zero means DefaultMaxIterations.
	MaxIterations int
	// SessionID, when set, resumes from that checkpoint instead of
	// starting fresh.
	SessionID string
	// ContextPaths name reference documents appended to every agent input.
	ContextPaths []string
	// Streaming requests incremental output when the backend supports it.
	Streaming bool
	// OnChunk receives streamed increments. Ignored unless Streaming.
	OnChunk llm.ChunkFunc
}

// DefaultMaxIterations bounds rework cycles when RunOptions leaves it zero.
const DefaultMaxIterations = 5

// RunWorkflow drives one task to a terminal state. Backend failures during
// an agent call are converted into an Abort transition, so the returned
// context is terminal in that case rather than an error. State-machine
// errors (an illegal transition, the iteration limit) propagate; the last
// written checkpoint remains valid.
func (r *Runner) RunWorkflow(ctx context.Context, opts RunOptions) (Context, error) {
	wctx, sessionID, err := r.initialContext(ctx, opts)
	if err != nil {
		return Context{}, err
	}

	refDocs := r.loadReferenceDocs(opts.ContextPaths)

	for !IsTerminal(wctx) {
		role, ok := NextAgent(wctx)
		if !ok {
			if wctx.State != StateQAApproved {
				r.logger.Warn("no agent due for non-success state, stopping",
					zap.String("state", string(wctx.State)))
			}
			break
		}

		prev := wctx
		wctx, sessionID, err = r.step(ctx, wctx, role, refDocs, sessionID, opts)
		if err != nil {
			// The returned context matches the last written checkpoint.
			return wctx, err
		}

		if !opts.Auto && r.approval != nil && !IsTerminal(wctx) {
			wctx, sessionID, err = r.foldDecision(ctx, prev, wctx, sessionID, opts)
			if err != nil {
				return wctx, err
			}
		}
	}

	r.finish(wctx)
	return wctx, nil
}

func (r *Runner) initialContext(ctx context.Context, opts RunOptions) (Context, string, error) {
	if opts.SessionID == "" {
		maxIter := opts.MaxIterations
		if maxIter <= 0 {
			maxIter = DefaultMaxIterations
		}
		return NewContext(opts.Task, maxIter), "", nil
	}

	snap, err := r.store.Load(ctx, opts.ProjectRoot, opts.SessionID)
	if err != nil {
		return Context{}, "", err
	}
	var wctx Context
	if err := json.Unmarshal(snap.Context, &wctx); err != nil {
		return Context{}, "", types.NewError(types.ErrValidation,
			fmt.Sprintf("session %s holds an unreadable context", snap.ID)).WithCause(err)
	}
	r.usage.Restore(snap.TokenUsage)
	r.logger.Info("resuming session",
		zap.String("session_id", snap.ID),
		zap.String("state", string(wctx.State)),
		zap.Int("iteration", wctx.Iteration))
	return wctx, snap.ID, nil
}

// step runs one agent and applies its output. The returned context has had
// at least one transition applied and checkpointed, except when the error
// path leaves the caller's previous context authoritative.
func (r *Runner) step(ctx context.Context, wctx Context, role types.AgentRole, refDocs, sessionID string, opts RunOptions) (Context, string, error) {
	r.logger.Info("invoking agent",
		zap.String("role", string(role)),
		zap.String("state", string(wctx.State)),
		zap.Int("iteration", wctx.Iteration))

	output, err := r.invoke(ctx, role, buildAgentInput(wctx, refDocs), opts)
	if err != nil {
		r.logger.Error("agent invocation failed, aborting task",
			zap.String("role", string(role)), zap.Error(err))
		return r.applyAndCheckpoint(ctx, wctx,
			[]Event{Abort{Reason: fmt.Sprintf("%s failed: %v", role, err)}},
			sessionID, opts)
	}

	events, err := r.eventsFor(ctx, wctx, role, output, opts)
	if err != nil {
		r.logger.Error("applying agent output failed, aborting task",
			zap.String("role", string(role)), zap.Error(err))
		return r.applyAndCheckpoint(ctx, wctx,
			[]Event{Abort{Reason: fmt.Sprintf("%s output unusable: %v", role, err)}},
			sessionID, opts)
	}

	return r.applyAndCheckpoint(ctx, wctx, events, sessionID, opts)
}

// eventsFor maps raw agent output to the transition events it implies.
// Collaborator failures (file writing, test execution) surface as errors;
// the caller converts them to an abort.
func (r *Runner) eventsFor(ctx context.Context, wctx Context, role types.AgentRole, output string, opts RunOptions) ([]Event, error) {
	switch role {
	case types.RoleArchitect:
		// One text blob serves as both spec and plan for now.
		return []Event{SpecReady{Spec: output}, PlanApproved{Plan: output}}, nil

	case types.RoleCoder, types.RoleFixer:
		paths, err := r.files.ParseAndWrite(opts.ProjectRoot, output)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			r.logger.Warn("no file blocks parsed from agent output",
				zap.String("role", string(role)))
			paths = []string{NoFilesParsed}
		}
		if role == types.RoleCoder {
			return []Event{CodeGenerated{Files: paths}}, nil
		}
		// A fix immediately re-enters review.
		return []Event{FixApplied{Files: paths}, CodeGenerated{Files: paths}}, nil

	case types.RoleReviewer:
		approved, feedback := InterpretReview(output)
		if counts := CountSeverities(output); approved && counts.Blocking() {
			// Advisory only: the explicit verdict wins.
			r.logger.Warn("review approved despite blocking findings",
				zap.Int("critical", counts.Critical),
				zap.Int("major", counts.Major))
		}
		return []Event{ReviewDone{Approved: approved, Feedback: feedback}}, nil

	case types.RoleTester:
		paths, err := r.files.ParseAndWrite(opts.ProjectRoot, output)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			paths = []string{NoFilesParsed}
		}
		events := []Event{TestsWritten{TestFiles: paths}}
		if r.tests == nil {
			return append(events, TestsPassed{}), nil
		}
		result, err := r.tests.Run(ctx, opts.ProjectRoot)
		if err != nil {
			return nil, err
		}
		if result.Passed {
			return append(events, TestsPassed{}), nil
		}
		return append(events, TestsFailed{Failures: result.Output}), nil

	case types.RoleJudge:
		approved, reason := InterpretQA(output)
		if approved {
			return []Event{QAApproved{}}, nil
		}
		return []Event{QARejected{Reason: reason}}, nil
	}

	return nil, types.NewError(types.ErrValidation,
		fmt.Sprintf("no interpretation rule for role %q", role))
}

// applyAndCheckpoint applies events in order, checkpointing after each
// successful transition. A transition error stops the sequence and
// propagates; everything already applied is checkpointed and kept.
func (r *Runner) applyAndCheckpoint(ctx context.Context, wctx Context, events []Event, sessionID string, opts RunOptions) (Context, string, error) {
	for _, ev := range events {
		next, err := Transition(wctx, ev)
		if err != nil {
			return wctx, sessionID, err
		}
		r.collector.RecordTransition(ev.EventName())
		r.logger.Info("transition applied",
			zap.String("event", ev.EventName()),
			zap.String("from", string(wctx.State)),
			zap.String("to", string(next.State)))
		wctx = next

		sessionID, err = r.checkpoint(ctx, wctx, sessionID, opts)
		if err != nil {
			// The in-memory context is ahead of the durable one; surface
			// that rather than running further steps on it.
			return wctx, sessionID, err
		}
	}
	return wctx, sessionID, nil
}

func (r *Runner) checkpoint(ctx context.Context, wctx Context, sessionID string, opts RunOptions) (string, error) {
	raw, err := json.Marshal(wctx)
	if err != nil {
		return sessionID, types.NewError(types.ErrValidation, "marshal workflow context").WithCause(err)
	}
	id, err := r.store.Save(ctx, opts.ProjectRoot, raw, r.usage.Entries(), sessionID)
	if err != nil {
		return sessionID, err
	}
	return id, nil
}

// foldDecision consults the approval hook and folds its verdict into the
// run: approve keeps the new context, retry discards the step and restores
// the previous one, abort terminates the task.
func (r *Runner) foldDecision(ctx context.Context, prev, wctx Context, sessionID string, opts RunOptions) (Context, string, error) {
	decision, err := r.approval(ctx, wctx)
	if err != nil {
		return r.applyAndCheckpoint(ctx, wctx,
			[]Event{Abort{Reason: fmt.Sprintf("approval hook failed: %v", err)}},
			sessionID, opts)
	}
	switch decision {
	case DecisionRetry:
		r.logger.Info("step rejected, retrying", zap.String("state", string(prev.State)))
		id, err := r.checkpoint(ctx, prev, sessionID, opts)
		return prev, id, err
	case DecisionAbort:
		return r.applyAndCheckpoint(ctx, wctx,
			[]Event{Abort{Reason: "aborted by operator"}}, sessionID, opts)
	default:
		return wctx, sessionID, nil
	}
}

func (r *Runner) invoke(ctx context.Context, role types.AgentRole, input string, opts RunOptions) (string, error) {
	req := llm.NewInvokeRequest(role, r.prompts.SystemPrompt(role), input)

	start := time.Now()
	var resp *llm.InvokeResponse
	var err error
	if streamer, ok := r.backend.(llm.StreamingBackend); ok && opts.Streaming {
		onChunk := opts.OnChunk
		if onChunk == nil {
			onChunk = func(string) {}
		}
		resp, err = streamer.InvokeStream(ctx, req, onChunk)
	} else {
		resp, err = r.backend.Invoke(ctx, req)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.collector.RecordAgentCall(string(role), outcome, time.Since(start))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (r *Runner) finish(wctx Context) {
	r.collector.RecordRun(string(wctx.State))
	total := r.usage.Total()
	r.logger.Info("run finished",
		zap.String("state", string(wctx.State)),
		zap.Int("iterations", wctx.Iteration),
		zap.Int("transitions", len(wctx.History)),
		zap.Int("total_tokens", total.TotalTokens))
}

// buildAgentInput renders the context for the next agent: the task plus
// whatever the pipeline has accumulated so far.
func buildAgentInput(wctx Context, refDocs string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", wctx.Task)

	if wctx.Spec != "" {
		fmt.Fprintf(&b, "\n## Specification\n%s\n", wctx.Spec)
	}
	if wctx.Plan != "" && wctx.Plan != wctx.Spec {
		fmt.Fprintf(&b, "\n## Plan\n%s\n", wctx.Plan)
	}
	if wctx.ReviewFeedback != "" {
		fmt.Fprintf(&b, "\n## Review feedback\n%s\n", wctx.ReviewFeedback)
	}
	if wctx.TestFailures != "" {
		fmt.Fprintf(&b, "\n## Test failures\n%s\n", wctx.TestFailures)
	}
	if files := realFiles(wctx.GeneratedFiles); len(files) > 0 {
		fmt.Fprintf(&b, "\n## Files written so far\n")
		for _, f := range files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if refDocs != "" {
		fmt.Fprintf(&b, "\n## Reference documents\n%s", refDocs)
	}
	return b.String()
}

func realFiles(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != NoFilesParsed {
			out = append(out, p)
		}
	}
	return out
}

// loadReferenceDocs reads the configured context files. Unreadable files
// are skipped with a warning rather than failing the run.
func (r *Runner) loadReferenceDocs(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			r.logger.Warn("skipping unreadable reference document",
				zap.String("path", p), zap.Error(err))
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", p, data)
	}
	return b.String()
}
