// Package model provides the reward and transition models the planner feeds
// into the finite-horizon solver.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

var (
	ErrNoMeans           = errors.New("model: reward means cannot be empty")
	ErrInvalidNoiseRange = errors.New("model: noise range must be non-negative")
	ErrTooManyJobs       = errors.New("model: more jobs than reward means")
)

const (
	// TimeDecay is the per-step reduction of the reward multiplier.
	TimeDecay = 0.03
	// MinTimeFactor is the floor of the reward multiplier.
	MinTimeFactor = 0.1
)

// StochasticRewardModel samples the reward of acting on a set of jobs. Each
// selected job contributes its mean plus uniform noise, scaled by a factor
// that decays with time:
//
//	reward = Σ_j selected (mean_j + U[-noise, +noise]) · max(0.1, 1 - 0.03·t)
//
// Sampling is guarded by a mutex so one instance can be shared, but a solve
// should own its instance to keep results reproducible for a given seed.
type StochasticRewardModel struct {
	means      []float64
	noiseRange float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewStochasticRewardModel builds a seeded reward model.
func NewStochasticRewardModel(means []float64, noiseRange float64, seed uint64) (*StochasticRewardModel, error) {
	if len(means) == 0 {
		return nil, ErrNoMeans
	}
	if noiseRange < 0 || math.IsNaN(noiseRange) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidNoiseRange, noiseRange)
	}

	m := make([]float64, len(means))
	copy(m, means)
	return &StochasticRewardModel{
		means:      m,
		noiseRange: noiseRange,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// JobCapacity returns how many jobs the model has means for.
func (m *StochasticRewardModel) JobCapacity() int { return len(m.means) }

// Supports returns ErrTooManyJobs when jobCount exceeds the configured means.
func (m *StochasticRewardModel) Supports(jobCount int) error {
	if jobCount > len(m.means) {
		return fmt.Errorf("%w: %d jobs, %d means", ErrTooManyJobs, jobCount, len(m.means))
	}
	return nil
}

// TimeFactor returns the reward multiplier at time t.
func TimeFactor(t int) float64 {
	return math.Max(MinTimeFactor, 1-TimeDecay*float64(t))
}

// SampleReward draws one reward. Jobs beyond the configured means contribute nothing.
func (m *StochasticRewardModel) SampleReward(state types.State, decision types.Decision) float64 {
	factor := TimeFactor(state.Time)

	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for j := 0; j < decision.Len() && j < len(m.means); j++ {
		if !decision.Selects(j) {
			continue
		}
		noise := 0.0
		if m.noiseRange > 0 {
			noise = (m.rng.Float64()*2 - 1) * m.noiseRange
		}
		total += (m.means[j] + noise) * factor
	}
	return total
}

// ExpectedReward returns the noise-free reward of a decision.
func (m *StochasticRewardModel) ExpectedReward(state types.State, decision types.Decision) float64 {
	factor := TimeFactor(state.Time)
	var total float64
	for j := 0; j < decision.Len() && j < len(m.means); j++ {
		if decision.Selects(j) {
			total += m.means[j] * factor
		}
	}
	return total
}
