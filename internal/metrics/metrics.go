// ============================================================================
// Decision Engine Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露求解器、策略儲存與批次執行的指標
//
// 指標分類:
//
//   1. 計數器 (Counter):
//      - decision_engine_solves_total{solver,outcome}: 求解次數
//        solver = policy_iteration | dynamic_programming
//        outcome = ok | unconverged | infeasible | error
//      - decision_engine_mc_samples_total: Monte Carlo 抽樣總數
//      - decision_engine_decisions_evaluated_total: 通過約束的候選決策數
//      - decision_engine_decisions_pruned_total: 被約束剪枝的候選決策數
//      - decision_engine_infeasible_steps_total: 無可行決策的時間步數
//      - decision_engine_store_operations_total{op,outcome}: 策略儲存操作
//
//   2. 分佈 (Histogram):
//      - decision_engine_solve_duration_seconds{solver}
//      - decision_engine_policy_iteration_rounds
//
//   3. 狀態 (Gauge):
//      - decision_engine_batch_in_flight: 批次模式中執行中的任務數
//
// Prometheus 查詢示例:
//
//   # 每分鐘 DP 求解數
//   rate(decision_engine_solves_total{solver="dynamic_programming"}[1m])
//
//   # 95 分位求解延遲
//   histogram_quantile(0.95, rate(decision_engine_solve_duration_seconds_bucket[5m]))
//
//   # 剪枝比例
//   rate(decision_engine_decisions_pruned_total[5m])
//     / (rate(decision_engine_decisions_pruned_total[5m]) + rate(decision_engine_decisions_evaluated_total[5m]))
//
// ============================================================================

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

const namespace = "decision_engine"

// Solver labels.
const (
	SolverPolicyIteration    = "policy_iteration"
	SolverDynamicProgramming = "dynamic_programming"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeUnconverged = "unconverged"
	OutcomeInfeasible  = "infeasible"
	OutcomeError       = "error"
)

// Collector Prometheus 指標收集器。nil *Collector 的所有方法皆為 no-op。
type Collector struct {
	// 求解相關指標
	solves        *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	piRounds      prometheus.Histogram

	// DP 工作量
	samples    prometheus.Counter
	evaluated  prometheus.Counter
	pruned     prometheus.Counter
	infeasible prometheus.Counter

	// 策略儲存
	storeOps *prometheus.CounterVec

	// 批次狀態
	batchInFlight prometheus.Gauge
}

// NewCollector 創建指標收集器並註冊到 reg（nil 時使用 prometheus.DefaultRegisterer）
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Total number of solver runs by solver and outcome",
		}, []string{"solver", "outcome"}),
		solveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Solver wall time in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"solver"}),
		piRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "policy_iteration_rounds",
			Help:      "Improvement rounds performed per policy iteration solve",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mc_samples_total",
			Help:      "Total number of Monte Carlo reward samples drawn",
		}),
		evaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_evaluated_total",
			Help:      "Candidate decisions that satisfied every constraint",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_pruned_total",
			Help:      "Candidate decisions rejected by a constraint",
		}),
		infeasible: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infeasible_steps_total",
			Help:      "Time steps where no decision satisfied every constraint",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Policy store operations by operation and outcome",
		}, []string{"op", "outcome"}),
		batchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_in_flight",
			Help:      "Plan tasks currently executing in batch mode",
		}),
	}

	// 註冊所有指標
	reg.MustRegister(
		c.solves,
		c.solveDuration,
		c.piRounds,
		c.samples,
		c.evaluated,
		c.pruned,
		c.infeasible,
		c.storeOps,
		c.batchInFlight,
	)

	return c
}

// RecordPolicyIteration 記錄一次離線求解
func (c *Collector) RecordPolicyIteration(elapsed time.Duration, rounds int, converged bool) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if !converged {
		outcome = OutcomeUnconverged
	}
	c.solves.WithLabelValues(SolverPolicyIteration, outcome).Inc()
	c.solveDuration.WithLabelValues(SolverPolicyIteration).Observe(elapsed.Seconds())
	c.piRounds.Observe(float64(rounds))
}

// RecordPlan 記錄一次線上求解與其工作量
func (c *Collector) RecordPlan(elapsed time.Duration, plan types.Plan) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if !plan.Feasible() {
		outcome = OutcomeInfeasible
	}
	c.solves.WithLabelValues(SolverDynamicProgramming, outcome).Inc()
	c.solveDuration.WithLabelValues(SolverDynamicProgramming).Observe(elapsed.Seconds())
	c.samples.Add(float64(plan.Stats.Samples))
	c.evaluated.Add(float64(plan.Stats.Evaluated))
	c.pruned.Add(float64(plan.Stats.Pruned))
	c.infeasible.Add(float64(len(plan.Infeasible)))
}

// RecordSolveError 記錄求解失敗
func (c *Collector) RecordSolveError(solver string) {
	if c == nil {
		return
	}
	c.solves.WithLabelValues(solver, OutcomeError).Inc()
}

// RecordStoreOp 記錄策略儲存操作（op = save | load）
func (c *Collector) RecordStoreOp(op string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.storeOps.WithLabelValues(op, outcome).Inc()
}

// BatchTaskStarted 批次任務開始
func (c *Collector) BatchTaskStarted() {
	if c == nil {
		return
	}
	c.batchInFlight.Inc()
}

// BatchTaskFinished 批次任務結束
func (c *Collector) BatchTaskFinished() {
	if c == nil {
		return
	}
	c.batchInFlight.Dec()
}

// Handler 回傳 /metrics 的 HTTP handler（nil gatherer 時使用 DefaultGatherer）
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewServer 建立只暴露 /metrics 的 HTTP 伺服器，由呼叫者負責 ListenAndServe 與 Shutdown
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
