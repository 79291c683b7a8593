package worker

// ============================================================================
// Worker Pool Test File
// Purpose: Verify concurrent execution, timeout mechanism, graceful shutdown
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/decision-engine/internal/metrics"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// fakeExecutor echoes the request horizon as the plan value.
type fakeExecutor struct {
	calls atomic.Int64
	fn    func(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error)
}

func (f *fakeExecutor) Plan(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return planner.PlanResult{Plan: types.Plan{Value: float64(req.Horizon)}}, nil
}

// blockUntilDone waits for the task context to end.
func blockUntilDone(ctx context.Context, _ planner.PlanRequest) (planner.PlanResult, error) {
	<-ctx.Done()
	return planner.PlanResult{}, ctx.Err()
}

func task(i int) Task {
	return Task{
		ID:      fmt.Sprintf("task-%d", i),
		Request: planner.PlanRequest{Horizon: i, JobCount: 1},
		Timeout: time.Second,
	}
}

// ============================================================================
// Basic Functionality Tests
// ============================================================================

func TestNewPool(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 10)
	assert.NotNil(t, pool)
	assert.Equal(t, 0, pool.GetWorkerCount())
	assert.False(t, pool.IsStarted())
}

func TestPoolStart(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 10)

	err := pool.Start(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, 8, pool.GetWorkerCount())
	assert.True(t, pool.IsStarted())

	// Try to start again
	err = pool.Start(context.Background(), 4)
	assert.ErrorIs(t, err, ErrPoolStarted)

	pool.Stop()
}

func TestPoolStartRejectsNoWorkers(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 1)
	assert.ErrorIs(t, pool.Start(context.Background(), 0), ErrInvalidWorkerCount)
}

func TestWorkerExecution(t *testing.T) {
	exec := &fakeExecutor{}
	pool := NewPool(exec, 10)
	require.NoError(t, pool.Start(context.Background(), 1))
	defer pool.Stop()

	taskCount := 10
	for i := 0; i < taskCount; i++ {
		require.NoError(t, pool.Submit(task(i)))
	}

	results := make(map[string]Result)
	for i := 0; i < taskCount; i++ {
		result, err := pool.ReceiveResult()
		require.NoError(t, err)
		results[result.TaskID] = result
	}

	assert.Len(t, results, taskCount)
	assert.Equal(t, int64(taskCount), exec.calls.Load())
	assert.True(t, results["task-7"].Success())
	assert.Equal(t, 7.0, results["task-7"].Plan.Plan.Value)
}

func TestTimeout(t *testing.T) {
	pool := NewPool(&fakeExecutor{fn: blockUntilDone}, 10)
	require.NoError(t, pool.Start(context.Background(), 1))
	defer pool.Stop()

	tk := task(0)
	tk.Timeout = time.Millisecond
	require.NoError(t, pool.Submit(tk))

	result, err := pool.ReceiveResult()
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
}

func TestPoolContextCancelsRunningTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(&fakeExecutor{fn: blockUntilDone}, 10)
	require.NoError(t, pool.Start(ctx, 1))
	defer pool.Stop()

	tk := task(0)
	tk.Timeout = 0
	require.NoError(t, pool.Submit(tk))
	cancel()

	result, err := pool.ReceiveResult()
	require.NoError(t, err)
	assert.ErrorIs(t, result.Error, context.Canceled)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	exec := &fakeExecutor{fn: func(context.Context, planner.PlanRequest) (planner.PlanResult, error) {
		panic("boom")
	}}
	pool := NewPool(exec, 2)
	require.NoError(t, pool.Start(context.Background(), 1))
	defer pool.Stop()

	require.NoError(t, pool.Submit(task(1)))
	require.NoError(t, pool.Submit(task(2)))

	for i := 0; i < 2; i++ {
		result, err := pool.ReceiveResult()
		require.NoError(t, err)
		require.Error(t, result.Error)
		assert.Contains(t, result.Error.Error(), "panicked: boom")
	}
}

// ============================================================================
// Concurrency Tests
// ============================================================================

func TestConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	exec := &fakeExecutor{fn: func(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return planner.PlanResult{}, nil
	}}

	workerCount := 8
	taskCount := 64
	pool := NewPool(exec, taskCount)
	require.NoError(t, pool.Start(context.Background(), workerCount))
	defer pool.Stop()

	for i := 0; i < taskCount; i++ {
		require.NoError(t, pool.Submit(task(i)))
	}
	for i := 0; i < taskCount; i++ {
		_, err := pool.ReceiveResult()
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, peak.Load(), int64(workerCount))
	assert.Greater(t, peak.Load(), int64(1))
}

func TestConcurrentSubmit(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 100)
	require.NoError(t, pool.Start(context.Background(), 4))
	defer pool.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, pool.Submit(task(g*10+i)))
			}
		}(g)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		result, err := pool.ReceiveResult()
		require.NoError(t, err)
		seen[result.TaskID] = true
	}
	assert.Len(t, seen, 100)
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestStopBeforeStart(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 10)
	assert.NotPanics(t, pool.Stop)
}

func TestSubmitBeforeStart(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 10)
	assert.ErrorIs(t, pool.Submit(task(0)), ErrPoolNotStarted)
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 10)
	require.NoError(t, pool.Start(context.Background(), 2))
	pool.Stop()

	assert.ErrorIs(t, pool.Submit(task(0)), ErrPoolClosed)
	assert.NotPanics(t, pool.Stop, "Stop is idempotent")
}

func TestReceiveResultAfterStop(t *testing.T) {
	pool := NewPool(&fakeExecutor{}, 10)
	require.NoError(t, pool.Start(context.Background(), 2))
	pool.Stop()

	_, err := pool.ReceiveResult()
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestGracefulShutdownWaitsForRunningTask(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	exec := &fakeExecutor{fn: func(context.Context, planner.PlanRequest) (planner.PlanResult, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return planner.PlanResult{}, nil
	}}
	pool := NewPool(exec, 1)
	require.NoError(t, pool.Start(context.Background(), 1))
	require.NoError(t, pool.Submit(task(0)))

	<-started
	pool.Stop()
	assert.True(t, finished.Load())
}

// ============================================================================
// Batch Tests
// ============================================================================

func TestRunBatchPreservesOrder(t *testing.T) {
	exec := &fakeExecutor{fn: func(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error) {
		// later tasks finish first
		time.Sleep(time.Duration(10-req.Horizon) * time.Millisecond)
		if req.Horizon == 3 {
			return planner.PlanResult{}, errors.New("bad scenario")
		}
		return planner.PlanResult{Plan: types.Plan{Value: float64(req.Horizon)}}, nil
	}}

	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = task(i)
	}

	results, err := RunBatch(context.Background(), exec, 4, tasks)
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i, r := range results {
		assert.Equal(t, tasks[i].ID, r.TaskID)
		if i == 3 {
			assert.EqualError(t, r.Error, "bad scenario")
			continue
		}
		assert.NoError(t, r.Error)
		assert.Equal(t, float64(i), r.Plan.Plan.Value)
	}
}

func TestRunBatchRejectsDuplicateIDs(t *testing.T) {
	_, err := RunBatch(context.Background(), &fakeExecutor{}, 2, []Task{task(1), task(1)})
	assert.ErrorContains(t, err, "duplicate task id")
}

func TestRunBatchTracksInFlightMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	tasks := []Task{task(1), task(2), task(3)}
	results, err := RunBatch(context.Background(), &fakeExecutor{}, 2, tasks, WithMetrics(collector))
	require.NoError(t, err)
	assert.Len(t, results, 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "decision_engine_batch_in_flight" {
			assert.Equal(t, 0.0, mf.GetMetric()[0].GetGauge().GetValue())
			return
		}
	}
	t.Fatal("batch_in_flight gauge not gathered")
}

// ============================================================================
// Benchmarks
// ============================================================================

func BenchmarkPoolThroughput(b *testing.B) {
	pool := NewPool(&fakeExecutor{}, 1000)
	if err := pool.Start(context.Background(), 8); err != nil {
		b.Fatal(err)
	}
	defer pool.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := pool.Submit(task(i)); err != nil {
			b.Fatal(err)
		}
		if _, err := pool.ReceiveResult(); err != nil {
			b.Fatal(err)
		}
	}
}
