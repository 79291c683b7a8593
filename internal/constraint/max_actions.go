// Package constraint provides the reference Constraint implementations used by
// the finite-horizon planner.
package constraint

import (
	"fmt"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// MaxActions caps how many jobs one decision may act on per time step.
type MaxActions struct {
	max int
}

// NewMaxActions builds the cardinality constraint. A negative cap is rejected.
func NewMaxActions(max int) (*MaxActions, error) {
	if max < 0 {
		return nil, fmt.Errorf("%w: max actions %d is negative", ErrInvalidConstraint, max)
	}
	return &MaxActions{max: max}, nil
}

func (c *MaxActions) Name() string { return "MaxActions" }

// Max returns the configured cap.
func (c *MaxActions) Max() int { return c.max }

// IsSatisfied reports whether the decision acts on at most Max jobs.
func (c *MaxActions) IsSatisfied(_ types.State, decision types.Decision) bool {
	return decision.Count() <= c.max
}
