package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TaskStatus is the terminal status of one queued task.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// TaskResult records the outcome of one queued task.
type TaskResult struct {
	Task     string
	Status   TaskStatus
	Final    Context
	Err      error
	Duration time.Duration
}

// QueueOptions parameterize a batch run. Per-task options are derived from
// the embedded RunOptions with Task replaced per entry.
type QueueOptions struct {
	RunOptions

	// StopOnFailure marks every task after the first failure as skipped
	// instead of running it.
	StopOnFailure bool
}

// RunTaskQueue runs tasks strictly sequentially and returns one result per
// task, in input order. A task counts as failed when its run errors or
// ends in a non-success terminal state; failures are isolated per task
// unless StopOnFailure is set.
func (r *Runner) RunTaskQueue(ctx context.Context, tasks []string, opts QueueOptions) []TaskResult {
	results := make([]TaskResult, 0, len(tasks))
	failed := false

	for _, task := range tasks {
		if failed && opts.StopOnFailure {
			results = append(results, TaskResult{Task: task, Status: TaskSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, TaskResult{Task: task, Status: TaskSkipped, Err: err})
			continue
		}

		runOpts := opts.RunOptions
		runOpts.Task = task
		runOpts.SessionID = ""

		start := time.Now()
		final, err := r.RunWorkflow(ctx, runOpts)
		result := TaskResult{
			Task:     task,
			Final:    final,
			Err:      err,
			Duration: time.Since(start),
		}
		if err == nil && final.State == StateQAApproved {
			result.Status = TaskCompleted
		} else {
			result.Status = TaskFailed
			failed = true
		}
		results = append(results, result)

		r.logger.Info("queued task finished",
			zap.String("task", task),
			zap.String("status", string(result.Status)),
			zap.Duration("duration", result.Duration))
	}
	return results
}
