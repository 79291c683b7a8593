// ============================================================================
// Dynamic Programming - online, finite-horizon, stochastic
// ============================================================================
//
// Package: internal/engine
// File: dynamic_programming.go
// Purpose: Backward Bellman induction over the combinatorial decision space.
//
// Recursion:
//   V[T] = 0
//   V[t] = max_d { R̂(t, d) + α · Σ p(s'|t,d) · V[s'.Time] }
//   where d ranges over the 2^J decisions that satisfy every constraint and
//   R̂ is the Monte Carlo estimate of the immediate reward.
//
// Tie-breaking:
//   Strict '>' in enumeration order: the first decision reaching the maximum wins.
//
// Infeasibility:
//   A step where every decision is pruned gets V[t] = -Inf and no entry in
//   Plan.Decisions; it is listed in Plan.Infeasible. Earlier steps then only see
//   -Inf continuations and also get no entry.
//
// Cost:
//   O(T · 2^J · runs) reward samples. There is no cancellation; callers bound
//   T, J and runs.
//
// Determinism:
//   Rewards are sampled, so two solves with differently seeded reward models can
//   pick different decisions when expected rewards are close.
//
// ============================================================================

package engine

import (
	"fmt"
	"math"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// DynamicProgrammingOptions tunes one finite-horizon solve.
type DynamicProgrammingOptions struct {
	Alpha          float64 // per-step discount in (0, 1]
	MonteCarloRuns int     // reward samples per candidate decision
}

// Validate checks the options before any work is done.
func (o DynamicProgrammingOptions) Validate() error {
	if !(o.Alpha > 0 && o.Alpha <= 1) {
		return fmt.Errorf("%w: alpha = %v", ErrInvalidDiscount, o.Alpha)
	}
	if o.MonteCarloRuns <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRuns, o.MonteCarloRuns)
	}
	return nil
}

// DynamicProgramming is the online solver. The constraint list is fixed at
// construction and evaluated in registration order.
type DynamicProgramming struct {
	mc          *MonteCarlo
	transitions TransitionModel
	constraints []Constraint
}

// NewDynamicProgramming wires the estimator, transition model and constraints.
func NewDynamicProgramming(mc *MonteCarlo, transitions TransitionModel, constraints ...Constraint) (*DynamicProgramming, error) {
	if mc == nil {
		return nil, ErrNilEstimator
	}
	if transitions == nil {
		return nil, ErrNilTransitionModel
	}
	for i, c := range constraints {
		if c == nil {
			return nil, fmt.Errorf("%w: index %d", ErrNilConstraint, i)
		}
	}

	cs := make([]Constraint, len(constraints))
	copy(cs, constraints)
	return &DynamicProgramming{mc: mc, transitions: transitions, constraints: cs}, nil
}

// Constraints returns the registered constraints in evaluation order.
func (d *DynamicProgramming) Constraints() []Constraint {
	out := make([]Constraint, len(d.constraints))
	copy(out, d.constraints)
	return out
}

// Solve plans from time 0 up to initial.Horizon for initial.JobCount jobs.
func (d *DynamicProgramming) Solve(initial types.State, opts DynamicProgrammingOptions) (types.Plan, error) {
	if err := opts.Validate(); err != nil {
		return types.Plan{}, err
	}
	if _, err := types.NewState(initial.Time, initial.JobCount, initial.Horizon); err != nil {
		return types.Plan{}, err
	}

	horizon := initial.Horizon
	jobCount := initial.JobCount

	decisions, err := EnumerateDecisions(jobCount)
	if err != nil {
		return types.Plan{}, err
	}

	values := make([]float64, horizon+1)
	plan := types.Plan{
		Values:    values,
		Decisions: make(map[int]types.Decision, horizon),
	}
	values[horizon] = 0

	for t := horizon - 1; t >= 0; t-- {
		state := types.State{Time: t, JobCount: jobCount, Horizon: horizon}

		bestValue := math.Inf(-1)
		var best types.Decision
		found := false
		feasible := 0

		for _, decision := range decisions {
			if !d.satisfiesAll(state, decision) {
				plan.Stats.Pruned++
				continue
			}
			feasible++
			plan.Stats.Evaluated++

			reward, err := d.mc.Estimate(state, decision, opts.MonteCarloRuns)
			if err != nil {
				return types.Plan{}, err
			}
			plan.Stats.Samples += opts.MonteCarloRuns

			future, err := d.expectedFuture(state, decision, values)
			if err != nil {
				return types.Plan{}, err
			}

			q := reward + opts.Alpha*future
			if q > bestValue {
				bestValue = q
				best = decision
				found = true
			}
		}

		values[t] = bestValue
		if feasible == 0 {
			plan.Infeasible = append([]int{t}, plan.Infeasible...)
		}
		if found {
			plan.Decisions[t] = best
		}
	}

	plan.Value = values[0]
	return plan, nil
}

// satisfiesAll evaluates constraints with short-circuit AND.
func (d *DynamicProgramming) satisfiesAll(state types.State, decision types.Decision) bool {
	for _, c := range d.constraints {
		if !c.IsSatisfied(state, decision) {
			return false
		}
	}
	return true
}

// expectedFuture computes Σ p · V[next.Time] over the transition distribution.
func (d *DynamicProgramming) expectedFuture(state types.State, decision types.Decision, values []float64) (float64, error) {
	var future float64
	for _, outcome := range d.transitions.Transitions(state, decision) {
		next := outcome.Next.Time
		if next <= state.Time || next >= len(values) {
			return 0, fmt.Errorf("%w: from t=%d to t=%d with horizon %d",
				ErrInvalidTransition, state.Time, next, len(values)-1)
		}
		// zero-probability outcomes must not turn a -Inf continuation into NaN
		if outcome.Probability == 0 {
			continue
		}
		future += outcome.Probability * values[next]
	}
	return future, nil
}
