package model

import "github.com/ChuLiYu/decision-engine/pkg/types"

// MarkovTransitionModel advances time by one step with probability 1,
// regardless of the decision taken.
type MarkovTransitionModel struct{}

func NewMarkovTransitionModel() MarkovTransitionModel {
	return MarkovTransitionModel{}
}

func (MarkovTransitionModel) Transitions(state types.State, _ types.Decision) []types.Outcome {
	return []types.Outcome{{Next: state.Advance(), Probability: 1}}
}
