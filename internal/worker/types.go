package worker

import (
	"context"
	"time"

	"github.com/ChuLiYu/decision-engine/internal/planner"
)

// Executor 執行單一規劃請求（通常是 *planner.Planner）
type Executor interface {
	Plan(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error)
}

// Task 代表要執行的規劃任務
type Task struct {
	ID      string              // 任務唯一識別碼（批次中的場景名稱）
	Request planner.PlanRequest // 規劃請求
	Timeout time.Duration       // 執行超時時間，<= 0 表示不限
}

// Result 代表任務執行結果
type Result struct {
	TaskID   string             // 任務 ID
	Plan     planner.PlanResult // 成功時的規劃結果
	Error    error              // 錯誤訊息（如果有）
	Duration time.Duration      // 實際執行時間
}

// Success reports whether the task produced a plan.
func (r Result) Success() bool { return r.Error == nil }
