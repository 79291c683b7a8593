package engine

import (
	"fmt"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// RewardModel samples a stochastic reward for a (state, decision) pair.
type RewardModel interface {
	SampleReward(state types.State, decision types.Decision) float64
}

// TransitionModel returns the distribution over next states for a
// (state, decision) pair. Probabilities are expected to sum to 1.
type TransitionModel interface {
	Transitions(state types.State, decision types.Decision) []types.Outcome
}

// Constraint prunes infeasible or undesired decisions. Implementations must be
// cheap and free of side effects: the DP solver calls them O(horizon * 2^J) times.
type Constraint interface {
	IsSatisfied(state types.State, decision types.Decision) bool
}

// ConstraintFunc adapts an ordinary function to the Constraint interface.
type ConstraintFunc func(state types.State, decision types.Decision) bool

func (f ConstraintFunc) IsSatisfied(state types.State, decision types.Decision) bool {
	return f(state, decision)
}

// DiscreteMDP is a finite-state, finite-action MDP given explicitly.
type DiscreteMDP interface {
	StateCount() int
	ActionCount() int
	Transitions(state, action int) []types.Transition
}

// ConstraintName returns a printable name for c, preferring its Name method.
func ConstraintName(c Constraint) string {
	if named, ok := c.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", c)
}
