// ============================================================================
// Decision Engine Worker Pool - 並發規劃執行器
// ============================================================================
//
// Package: internal/worker
// 文件: worker_pool.go
// 功能: 管理多個 Worker goroutine 的生命週期，批次執行規劃任務
//
// 設計模式:
//   採用 Worker Pool 模式：
//   1. 固定數量的 Worker goroutine 持續運行
//   2. 通過共享的任務 channel 分發任務
//   3. 通過結果 channel 收集執行結果
//
// 生命週期:
//   1. NewPool() - 創建 Pool，初始化 channels
//   2. Start(ctx, n) - 啟動 n 個 Worker goroutines
//   3. Submit(task) - 提交任務到 taskCh
//   4. ReceiveResult() - 從 resultCh 讀取結果
//   5. Stop() - 關閉 stopCh，等待所有 Worker 完成當前任務
//
// 並發控制:
//   - taskCh 從不關閉；Worker 與 Submit 都以 stopCh 作為結束訊號，
//     因此 Submit 不會向已關閉的 channel 發送
//   - resultCh 只在所有 Worker 退出後關閉
//   - 每個 Task 各自擁有 reward model 與 RNG（由 planner 建立）
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/decision-engine/internal/metrics"
)

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	// ErrPoolClosed 表示當前 Pool 已關閉，無法提交新任務
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolNotStarted 表示 Pool 尚未啟動，無法提交任務
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted 表示 Pool 已啟動
	ErrPoolStarted = errors.New("worker pool already started")
	// ErrInvalidWorkerCount 表示 Worker 數量不合法
	ErrInvalidWorkerCount = errors.New("worker count must be positive")
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Pool 代表 Worker 池，管理多個並發的 Worker
type Pool struct {
	exec     Executor
	workers  []*Worker
	taskCh   chan Task
	resultCh chan Result
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	mu       sync.Mutex

	metrics *metrics.Collector
	logger  *slog.Logger
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithMetrics 記錄執行中的任務數
func WithMetrics(c *metrics.Collector) PoolOption {
	return func(p *Pool) { p.metrics = c }
}

func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool 建立新的 Worker Pool
// 參數：
//   - exec: 執行規劃請求的元件
//   - bufferSize: 任務和結果通道的緩衝大小
func NewPool(exec Executor, bufferSize int, opts ...PoolOption) *Pool {
	if bufferSize < 0 {
		bufferSize = 0
	}
	p := &Pool{
		exec:     exec,
		workers:  make([]*Worker, 0),
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start 啟動指定數量的 Worker；ctx 結束時執行中的任務會收到取消訊號
func (p *Pool) Start(ctx context.Context, workerCount int) error {
	if workerCount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, workerCount)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}

	h := hooks{started: p.metrics.BatchTaskStarted, finished: p.metrics.BatchTaskFinished}
	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p.exec, p.taskCh, p.resultCh, p.stopCh, h, p.logger)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}

	p.started = true
	p.logger.Debug("worker pool started", "workers", workerCount)
	return nil
}

// Submit 提交任務到 Worker Pool
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// ReceiveResult 從結果通道接收執行結果
func (p *Pool) ReceiveResult() (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-p.stopCh:
		return Result{}, ErrPoolClosed
	}
}

// Stop 優雅地關閉 Worker Pool
// 關閉流程：
//  1. 設定 stopped 標誌
//  2. 關閉 stopCh，Worker 完成當前任務後退出
//  3. 等待所有 Worker 完成
//  4. 關閉 resultCh
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	close(p.resultCh)
	p.logger.Debug("worker pool stopped")
}

// GetWorkerCount 返回當前 Worker 數量
func (p *Pool) GetWorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted 檢查 Pool 是否已啟動
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// ============================================================================
// 批次執行
// ============================================================================

// RunBatch 啟動 workerCount 個 Worker 執行所有任務，回傳與 tasks 相同順序的結果。
// 單一任務失敗記錄在其 Result.Error，不影響其他任務；只有 Pool 本身的錯誤才會回傳 error。
func RunBatch(ctx context.Context, exec Executor, workerCount int, tasks []Task, opts ...PoolOption) ([]Result, error) {
	pool := NewPool(exec, len(tasks), opts...)
	if err := pool.Start(ctx, workerCount); err != nil {
		return nil, err
	}
	defer pool.Stop()

	index := make(map[string]int, len(tasks))
	for i, task := range tasks {
		if _, dup := index[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		index[task.ID] = i
	}

	results := make([]Result, len(tasks))
	var g errgroup.Group

	g.Go(func() error {
		for _, task := range tasks {
			if err := pool.Submit(task); err != nil {
				return fmt.Errorf("submit %s: %w", task.ID, err)
			}
		}
		return nil
	})

	g.Go(func() error {
		for range tasks {
			result, err := pool.ReceiveResult()
			if err != nil {
				return err
			}
			results[index[result.TaskID]] = result
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
