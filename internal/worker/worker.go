// ============================================================================
// Decision Engine Worker - Plan Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Executes plan tasks, each Worker runs in an independent goroutine
//
// Loop:
//   1. Receive task from taskCh, or exit when stopCh closes
//   2. Run the plan under a per-task timeout derived from the pool context
//   3. Send the result to resultCh
//
// A panic inside the executor is turned into a failed Result so one bad task
// cannot take the pool down.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Worker represents a work execution unit
type Worker struct {
	id       int
	exec     Executor
	taskCh   <-chan Task
	resultCh chan<- Result
	stopCh   <-chan struct{}
	hooks    hooks
	logger   *slog.Logger
}

type hooks struct {
	started  func()
	finished func()
}

func newWorker(id int, exec Executor, taskCh <-chan Task, resultCh chan<- Result, stopCh <-chan struct{}, h hooks, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		exec:     exec,
		taskCh:   taskCh,
		resultCh: resultCh,
		stopCh:   stopCh,
		hooks:    h,
		logger:   logger,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-w.stopCh:
			return
		case task := <-w.taskCh:
			result := w.execute(ctx, task)

			select {
			case w.resultCh <- result:
			case <-w.stopCh:
				w.logger.Warn("dropping result after stop", "worker", w.id, "task", task.ID)
				return
			}
		}
	}
}

// execute runs one task with its own timeout
func (w *Worker) execute(parent context.Context, task Task) (result Result) {
	start := time.Now()
	result.TaskID = task.ID

	ctx := parent
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, task.Timeout)
		defer cancel()
	}

	w.hooks.started()
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("task %s panicked: %v", task.ID, r)
			w.logger.Error("task panicked", "worker", w.id, "task", task.ID, "panic", r)
		}
		result.Duration = time.Since(start)
		w.hooks.finished()
	}()

	result.Plan, result.Error = w.exec.Plan(ctx, task.Request)
	return result
}
