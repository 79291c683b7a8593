package engine

import (
	"fmt"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// MonteCarlo estimates expected immediate reward by averaging independent
// samples from a RewardModel. Its variance shrinks as O(1/runs).
type MonteCarlo struct {
	reward RewardModel
}

// NewMonteCarlo wraps a reward model.
func NewMonteCarlo(reward RewardModel) (*MonteCarlo, error) {
	if reward == nil {
		return nil, ErrNilRewardModel
	}
	return &MonteCarlo{reward: reward}, nil
}

// Estimate returns the mean of runs samples at (state, decision).
func (m *MonteCarlo) Estimate(state types.State, decision types.Decision, runs int) (float64, error) {
	if runs <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidRuns, runs)
	}

	var sum float64
	for i := 0; i < runs; i++ {
		sum += m.reward.SampleReward(state, decision)
	}
	return sum / float64(runs), nil
}
