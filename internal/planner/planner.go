// ============================================================================
// Planner - offline training and online planning orchestration
// ============================================================================
//
// Package: internal/planner
// File: planner.go
// Purpose: Wires the engine, the reference constraints, the reward and
//          transition models and a policy store into two operations.
//
// Train:
//   1. Look up the named MDP
//   2. Policy iteration with the configured discount
//   3. Save the policy under the requested tenant/key/version with a TTL
//
// Plan:
//   1. Load the policy (a zero version loads the latest)
//   2. Build constraints in order: PolicyBias, then MaxActions
//   3. Build a seeded reward model and Markov transitions for this call only
//   4. Backward DP from t=0 to the requested horizon
//
// Each Plan call owns its models, so concurrent calls share no mutable state.
// The DP itself cannot be interrupted; when ctx ends first, Plan returns the
// context error and the abandoned solve finishes in the background.
//
// ============================================================================

package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ChuLiYu/decision-engine/internal/config"
	"github.com/ChuLiYu/decision-engine/internal/constraint"
	"github.com/ChuLiYu/decision-engine/internal/engine"
	"github.com/ChuLiYu/decision-engine/internal/metrics"
	"github.com/ChuLiYu/decision-engine/internal/model"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/sample"
	"github.com/ChuLiYu/decision-engine/internal/telemetry"
	"github.com/ChuLiYu/decision-engine/pkg/types"
)

var (
	ErrInvalidRequest = errors.New("planner: invalid request")
	ErrNilStore       = errors.New("planner: policy store is required")
)

// Options holds the solver settings shared by every request.
type Options struct {
	Training          engine.PolicyIterationOptions
	Alpha             float64
	MonteCarloRuns    int
	MaxActionsPerStep int
	RewardMeans       []float64
	NoiseRange        float64
}

// OptionsFromConfig maps the engine, training and reward sections.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Training: engine.PolicyIterationOptions{
			Gamma:               cfg.Training.Gamma,
			MaxIterations:       cfg.Training.MaxIterations,
			Tolerance:           cfg.Training.Tolerance,
			MaxEvaluationSweeps: cfg.Training.MaxEvaluationSweeps,
		},
		Alpha:             cfg.Engine.Alpha,
		MonteCarloRuns:    cfg.Engine.MonteCarloRuns,
		MaxActionsPerStep: cfg.Engine.MaxActionsPerStep,
		RewardMeans:       append([]float64(nil), cfg.Reward.Means...),
		NoiseRange:        cfg.Reward.NoiseRange,
	}
}

func (o Options) validate() error {
	if err := o.Training.Validate(); err != nil {
		return err
	}
	if err := (engine.DynamicProgrammingOptions{Alpha: o.Alpha, MonteCarloRuns: o.MonteCarloRuns}).Validate(); err != nil {
		return err
	}
	if o.MaxActionsPerStep < 0 {
		return fmt.Errorf("%w: max actions per step %d", engine.ErrInvalidOptions, o.MaxActionsPerStep)
	}
	// surfaces ErrNoMeans and ErrInvalidNoiseRange before any request
	_, err := model.NewStochasticRewardModel(o.RewardMeans, o.NoiseRange, 0)
	return err
}

// Planner runs Train and Plan requests. It is safe for concurrent use.
type Planner struct {
	store   policystore.Store
	opts    Options
	metrics *metrics.Collector
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customizes a Planner.
type Option func(*Planner)

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Planner) { p.metrics = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Planner) {
		if t != nil {
			p.tracer = t
		}
	}
}

// New validates opts and builds a Planner over store.
func New(store policystore.Store, opts Options, options ...Option) (*Planner, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.RewardMeans = append([]float64(nil), opts.RewardMeans...)

	p := &Planner{
		store:  store,
		opts:   opts,
		logger: slog.Default(),
		tracer: telemetry.Tracer(),
		now:    time.Now,
	}
	for _, o := range options {
		o(p)
	}
	return p, nil
}

// Options returns the planner settings.
func (p *Planner) Options() Options {
	o := p.opts
	o.RewardMeans = append([]float64(nil), p.opts.RewardMeans...)
	return o
}

// ============================================================================
// Train
// ============================================================================

// TrainRequest asks for a policy to be learned and stored.
type TrainRequest struct {
	MDP string          `json:"mdp"`
	Ref policystore.Ref `json:"ref"`
	TTL time.Duration   `json:"ttl"`
}

// TrainResult reports a stored policy.
type TrainResult struct {
	RunID      string          `json:"run_id"`
	Ref        policystore.Ref `json:"ref"`
	Policy     types.Policy    `json:"policy"`
	Values     []float64       `json:"values"`
	Iterations int             `json:"iterations"`
	Converged  bool            `json:"converged"`
	Duration   time.Duration   `json:"duration"`
}

// Train runs policy iteration on the named MDP and saves the result.
func (p *Planner) Train(ctx context.Context, req TrainRequest) (TrainResult, error) {
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "op", "train")

	ctx, span := p.tracer.Start(ctx, "planner.train", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("mdp", req.MDP),
		attribute.String("policy.ref", req.Ref.String()),
	))
	defer span.End()

	result, err := p.train(ctx, log, runID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("training failed", "error", err)
		return TrainResult{}, err
	}
	span.SetAttributes(
		attribute.Int("iterations", result.Iterations),
		attribute.Bool("converged", result.Converged),
	)
	return result, nil
}

func (p *Planner) train(ctx context.Context, log *slog.Logger, runID string, req TrainRequest) (TrainResult, error) {
	if err := ctx.Err(); err != nil {
		return TrainResult{}, err
	}
	if req.Ref.Version < 1 {
		return TrainResult{}, fmt.Errorf("%w: policy version must be at least 1, got %d", ErrInvalidRequest, req.Ref.Version)
	}
	if req.TTL < 0 {
		return TrainResult{}, fmt.Errorf("%w: ttl %s is negative", ErrInvalidRequest, req.TTL)
	}
	mdp, err := sample.Lookup(req.MDP)
	if err != nil {
		return TrainResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	solver, err := engine.NewPolicyIteration(p.opts.Training)
	if err != nil {
		return TrainResult{}, err
	}

	start := p.now()
	solved, err := solver.Solve(mdp)
	elapsed := p.now().Sub(start)
	if err != nil {
		p.metrics.RecordSolveError(metrics.SolverPolicyIteration)
		return TrainResult{}, err
	}
	p.metrics.RecordPolicyIteration(elapsed, solved.Iterations, solved.Converged)

	if !solved.Converged {
		log.Warn("policy iteration did not converge", "iterations", solved.Iterations)
	}

	err = p.store.Save(ctx, req.Ref, solved.Policy, req.TTL)
	p.metrics.RecordStoreOp("save", err)
	if err != nil {
		return TrainResult{}, err
	}

	log.Info("policy trained",
		"mdp", req.MDP,
		"ref", req.Ref.String(),
		"policy", fmt.Sprint([]int(solved.Policy)),
		"iterations", solved.Iterations,
		"converged", solved.Converged,
		"elapsed", elapsed,
	)

	return TrainResult{
		RunID:      runID,
		Ref:        req.Ref,
		Policy:     solved.Policy,
		Values:     solved.Values,
		Iterations: solved.Iterations,
		Converged:  solved.Converged,
		Duration:   elapsed,
	}, nil
}

// ============================================================================
// Plan
// ============================================================================

// PlanRequest asks for a finite-horizon plan biased by a stored policy.
type PlanRequest struct {
	Ref      policystore.Ref `json:"ref"`
	Horizon  int             `json:"horizon"`
	JobCount int             `json:"job_count"`
	Seed     uint64          `json:"seed"`
}

// PlanResult is a solved plan together with the policy that biased it.
type PlanResult struct {
	RunID       string          `json:"run_id"`
	Ref         policystore.Ref `json:"ref"`
	Policy      types.Policy    `json:"policy"`
	Constraints []string        `json:"constraints"`
	Plan        types.Plan      `json:"plan"`
	Duration    time.Duration   `json:"duration"`
}

// Plan loads the policy for req.Ref and solves the finite-horizon problem.
// Store errors are returned unchanged so callers can match
// policystore.ErrPolicyNotFound and friends with errors.Is.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (PlanResult, error) {
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID, "op", "plan")

	ctx, span := p.tracer.Start(ctx, "planner.plan", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("policy.ref", req.Ref.String()),
		attribute.Int("horizon", req.Horizon),
		attribute.Int("job_count", req.JobCount),
		attribute.Int64("seed", int64(req.Seed)),
	))
	defer span.End()

	result, err := p.plan(ctx, log, runID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("planning failed", "error", err)
		return PlanResult{}, err
	}
	span.SetAttributes(
		attribute.Float64("plan.value", result.Plan.Value),
		attribute.Int("plan.infeasible_steps", len(result.Plan.Infeasible)),
		attribute.Int("plan.samples", result.Plan.Stats.Samples),
	)
	return result, nil
}

func (p *Planner) plan(ctx context.Context, log *slog.Logger, runID string, req PlanRequest) (PlanResult, error) {
	if err := ctx.Err(); err != nil {
		return PlanResult{}, err
	}
	initial, err := types.NewState(0, req.JobCount, req.Horizon)
	if err != nil {
		return PlanResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.JobCount > engine.MaxJobCount {
		return PlanResult{}, fmt.Errorf("%w: %w: %d jobs, limit %d",
			ErrInvalidRequest, engine.ErrDecisionSpaceTooLarge, req.JobCount, engine.MaxJobCount)
	}

	reward, err := model.NewStochasticRewardModel(p.opts.RewardMeans, p.opts.NoiseRange, req.Seed)
	if err != nil {
		return PlanResult{}, err
	}
	if err := reward.Supports(req.JobCount); err != nil {
		return PlanResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	policy, err := p.store.Load(ctx, req.Ref)
	p.metrics.RecordStoreOp("load", err)
	if err != nil {
		return PlanResult{}, err
	}

	bias, err := constraint.NewPolicyBias(policy)
	if err != nil {
		return PlanResult{}, err
	}
	maxActions, err := constraint.NewMaxActions(p.opts.MaxActionsPerStep)
	if err != nil {
		return PlanResult{}, err
	}

	mc, err := engine.NewMonteCarlo(reward)
	if err != nil {
		return PlanResult{}, err
	}
	dp, err := engine.NewDynamicProgramming(mc, model.NewMarkovTransitionModel(), bias, maxActions)
	if err != nil {
		return PlanResult{}, err
	}

	names := make([]string, 0, 2)
	for _, c := range dp.Constraints() {
		names = append(names, engine.ConstraintName(c))
	}

	start := p.now()
	solved, err := solveWithContext(ctx, dp, initial, engine.DynamicProgrammingOptions{
		Alpha:          p.opts.Alpha,
		MonteCarloRuns: p.opts.MonteCarloRuns,
	})
	elapsed := p.now().Sub(start)
	if err != nil {
		p.metrics.RecordSolveError(metrics.SolverDynamicProgramming)
		return PlanResult{}, err
	}
	p.metrics.RecordPlan(elapsed, solved)

	if !solved.Feasible() {
		log.Warn("plan has infeasible steps", "infeasible", solved.Infeasible)
	}
	log.Info("plan solved",
		"ref", req.Ref.String(),
		"horizon", req.Horizon,
		"jobs", req.JobCount,
		"value", solved.Value,
		"evaluated", solved.Stats.Evaluated,
		"pruned", solved.Stats.Pruned,
		"elapsed", elapsed,
	)

	return PlanResult{
		RunID:       runID,
		Ref:         req.Ref,
		Policy:      policy,
		Constraints: names,
		Plan:        solved,
		Duration:    elapsed,
	}, nil
}

type solveOutcome struct {
	plan types.Plan
	err  error
}

// solveWithContext runs the solve in its own goroutine and returns early when
// ctx ends. The goroutine still runs to completion.
func solveWithContext(ctx context.Context, dp *engine.DynamicProgramming, initial types.State, opts engine.DynamicProgrammingOptions) (types.Plan, error) {
	done := make(chan solveOutcome, 1)
	go func() {
		plan, err := dp.Solve(initial, opts)
		done <- solveOutcome{plan: plan, err: err}
	}()

	select {
	case <-ctx.Done():
		return types.Plan{}, ctx.Err()
	case out := <-done:
		return out.plan, out.err
	}
}
