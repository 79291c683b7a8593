// ============================================================================
// Policy Iteration - offline, infinite-horizon, discounted
// ============================================================================
//
// Package: internal/engine
// File: policy_iteration.go
// Purpose: Computes a stationary deterministic optimal policy for an explicit
//          finite MDP.
//
// Algorithm:
//   1. policy(s) = 0, V(s) = 0 for every state
//   2. Evaluation: sweep V(s) = Σ p·(r + γ·V(s')) in place under the current
//      policy until max |ΔV| < tolerance
//   3. Improvement: policy(s) = argmax_a Σ p·(r + γ·V(s')), strict '>' so the
//      lowest action index wins ties
//   4. Stop when no action changed, or after MaxIterations rounds
//
// Non-convergence is reported through PolicyResult.Converged, never as an error.
//
// ============================================================================

package engine

import (
	"fmt"
	"math"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

const (
	DefaultMaxIterations       = 1000
	DefaultTolerance           = 1e-9
	DefaultMaxEvaluationSweeps = 100000
)

// PolicyIterationOptions tunes the offline solver.
type PolicyIterationOptions struct {
	Gamma               float64 // discount factor in (0, 1]
	MaxIterations       int     // outer improvement rounds
	Tolerance           float64 // evaluation stops when max |ΔV| drops below this
	MaxEvaluationSweeps int     // bound on evaluation sweeps per round (gamma = 1 safety)
}

// DefaultPolicyIterationOptions returns the defaults with the given discount.
func DefaultPolicyIterationOptions(gamma float64) PolicyIterationOptions {
	return PolicyIterationOptions{
		Gamma:               gamma,
		MaxIterations:       DefaultMaxIterations,
		Tolerance:           DefaultTolerance,
		MaxEvaluationSweeps: DefaultMaxEvaluationSweeps,
	}
}

// Validate checks the options before any work is done.
func (o PolicyIterationOptions) Validate() error {
	if !(o.Gamma > 0 && o.Gamma <= 1) {
		return fmt.Errorf("%w: gamma = %v", ErrInvalidDiscount, o.Gamma)
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations = %d", ErrInvalidOptions, o.MaxIterations)
	}
	if !(o.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance = %v", ErrInvalidOptions, o.Tolerance)
	}
	if o.MaxEvaluationSweeps <= 0 {
		return fmt.Errorf("%w: max evaluation sweeps = %d", ErrInvalidOptions, o.MaxEvaluationSweeps)
	}
	return nil
}

// PolicyResult is the output of a policy iteration solve.
type PolicyResult struct {
	Policy     types.Policy // one action index per state
	Values     []float64    // converged state values under Policy
	Iterations int          // improvement rounds performed
	Converged  bool         // true when the last round left the policy unchanged
}

// Evaluation reports one policy evaluation run.
type Evaluation struct {
	Sweeps    int       // sweeps performed
	Deltas    []float64 // max |ΔV| of each sweep
	Converged bool      // last delta dropped below the tolerance
}

// PolicyIteration is the offline solver. It holds only immutable options and is
// safe for concurrent use.
type PolicyIteration struct {
	opts PolicyIterationOptions
}

// NewPolicyIteration validates opts and builds a solver.
func NewPolicyIteration(opts PolicyIterationOptions) (*PolicyIteration, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &PolicyIteration{opts: opts}, nil
}

// Options returns the solver configuration.
func (p *PolicyIteration) Options() PolicyIterationOptions {
	return p.opts
}

// Solve runs policy iteration on mdp.
func (p *PolicyIteration) Solve(mdp DiscreteMDP) (PolicyResult, error) {
	if err := checkMDP(mdp); err != nil {
		return PolicyResult{}, err
	}

	stateCount := mdp.StateCount()
	actionCount := mdp.ActionCount()

	policy := make(types.Policy, stateCount)
	values := make([]float64, stateCount)

	result := PolicyResult{}
	for iter := 0; iter < p.opts.MaxIterations; iter++ {
		result.Iterations = iter + 1

		if _, err := p.Evaluate(mdp, policy, values); err != nil {
			return PolicyResult{}, err
		}

		stable := true
		for s := 0; s < stateCount; s++ {
			best, err := p.greedyAction(mdp, values, s, actionCount)
			if err != nil {
				return PolicyResult{}, err
			}
			if best != policy[s] {
				policy[s] = best
				stable = false
			}
		}

		if stable {
			result.Converged = true
			break
		}
	}

	result.Policy = policy
	result.Values = values
	return result, nil
}

// Evaluate updates values in place to the value of policy on mdp, sweeping
// until the largest change falls below the tolerance or the sweep bound is hit.
func (p *PolicyIteration) Evaluate(mdp DiscreteMDP, policy types.Policy, values []float64) (Evaluation, error) {
	if err := checkMDP(mdp); err != nil {
		return Evaluation{}, err
	}
	stateCount := mdp.StateCount()
	if len(policy) != stateCount || len(values) != stateCount {
		return Evaluation{}, fmt.Errorf("%w: policy/values length %d/%d, want %d",
			ErrInvalidMDP, len(policy), len(values), stateCount)
	}

	var eval Evaluation
	for eval.Sweeps < p.opts.MaxEvaluationSweeps {
		delta := 0.0
		for s := 0; s < stateCount; s++ {
			v, err := p.actionValue(mdp, values, s, policy[s])
			if err != nil {
				return Evaluation{}, err
			}
			delta = math.Max(delta, math.Abs(v-values[s]))
			values[s] = v
		}

		eval.Sweeps++
		eval.Deltas = append(eval.Deltas, delta)
		if delta < p.opts.Tolerance {
			eval.Converged = true
			break
		}
	}
	return eval, nil
}

func (p *PolicyIteration) greedyAction(mdp DiscreteMDP, values []float64, state, actionCount int) (int, error) {
	bestAction := 0
	bestQ := math.Inf(-1)
	for a := 0; a < actionCount; a++ {
		q, err := p.actionValue(mdp, values, state, a)
		if err != nil {
			return 0, err
		}
		if q > bestQ {
			bestQ = q
			bestAction = a
		}
	}
	return bestAction, nil
}

// actionValue computes Σ p·(r + γ·V(s')) for one (state, action).
func (p *PolicyIteration) actionValue(mdp DiscreteMDP, values []float64, state, action int) (float64, error) {
	var q float64
	for _, tr := range mdp.Transitions(state, action) {
		if tr.Next < 0 || tr.Next >= len(values) {
			return 0, fmt.Errorf("%w: state %d action %d leads to state %d of %d",
				ErrInvalidTransition, state, action, tr.Next, len(values))
		}
		q += tr.Probability * (tr.Reward + p.opts.Gamma*values[tr.Next])
	}
	return q, nil
}

func checkMDP(mdp DiscreteMDP) error {
	if mdp == nil {
		return fmt.Errorf("%w: nil", ErrInvalidMDP)
	}
	if mdp.StateCount() <= 0 || mdp.ActionCount() <= 0 {
		return fmt.Errorf("%w: %d states, %d actions", ErrInvalidMDP, mdp.StateCount(), mdp.ActionCount())
	}
	return nil
}
