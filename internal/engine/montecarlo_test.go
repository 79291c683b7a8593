package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

type noisyReward struct {
	mean  float64
	noise float64
	rng   *rand.Rand
}

func (n *noisyReward) SampleReward(types.State, types.Decision) float64 {
	return n.mean + (n.rng.Float64()*2-1)*n.noise
}

func TestMonteCarloConstantReward(t *testing.T) {
	reward := &mockRewardModel{}
	reward.On("SampleReward", mock.Anything, mock.Anything).Return(7.5)

	mc, err := NewMonteCarlo(reward)
	require.NoError(t, err)

	state := types.State{Time: 0, JobCount: 1, Horizon: 1}
	for _, runs := range []int{1, 2, 10, 333} {
		got, err := mc.Estimate(state, mustDecision(1), runs)
		require.NoError(t, err)
		assert.Equal(t, 7.5, got, "runs=%d", runs)
	}
	reward.AssertNumberOfCalls(t, "SampleReward", 1+2+10+333)
}

func TestMonteCarloConvergesToMean(t *testing.T) {
	model := &noisyReward{mean: 4, noise: 2, rng: rand.New(rand.NewPCG(42, 7))}
	mc, err := NewMonteCarlo(model)
	require.NoError(t, err)

	// Uniform noise on [-2, 2] has sd ≈ 1.155; with 100k runs the standard
	// error is ≈ 0.0037, so 0.05 is a very loose bound.
	got, err := mc.Estimate(types.State{JobCount: 1, Horizon: 1}, mustDecision(1), 100000)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got, 0.05)
}

func TestMonteCarloRejectsBadInput(t *testing.T) {
	_, err := NewMonteCarlo(nil)
	assert.ErrorIs(t, err, ErrNilRewardModel)

	reward := &mockRewardModel{}
	mc, err := NewMonteCarlo(reward)
	require.NoError(t, err)

	for _, runs := range []int{0, -1} {
		_, err := mc.Estimate(types.State{JobCount: 1, Horizon: 1}, mustDecision(0), runs)
		assert.ErrorIs(t, err, ErrInvalidRuns)
	}
	reward.AssertNotCalled(t, "SampleReward", mock.Anything, mock.Anything)
}
