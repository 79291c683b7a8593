package engine

import (
	"fmt"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// MaxJobCount bounds the decision space at 2^20 candidates. Enumeration is
// exhaustive, so wider decisions are rejected instead of attempted.
const MaxJobCount = 20

// EnumerateDecisions returns all 2^J decisions of length J in binary counting
// order: the i-th decision has actions[j] = bit j of i. For J = 2 that is
// [0,0], [1,0], [0,1], [1,1]. The order is fixed; tie-breaking depends on it.
func EnumerateDecisions(jobCount int) ([]types.Decision, error) {
	if jobCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidJobCount, jobCount)
	}
	if jobCount > MaxJobCount {
		return nil, fmt.Errorf("%w: %d jobs exceeds the limit of %d", ErrDecisionSpaceTooLarge, jobCount, MaxJobCount)
	}

	total := uint64(1) << uint(jobCount)
	decisions := make([]types.Decision, 0, total)
	for mask := uint64(0); mask < total; mask++ {
		decisions = append(decisions, types.DecisionFromMask(mask, jobCount))
	}
	return decisions, nil
}
