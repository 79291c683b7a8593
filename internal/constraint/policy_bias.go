package constraint

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

var ErrInvalidConstraint = errors.New("constraint: invalid configuration")

// PolicyBias turns a stationary policy learned offline into a filter for the
// online planner. The policy is indexed by the state's time step, clamped to
// the policy's range.
//
// A decision passes when it acts on exactly one job and the recommended action
// index is a valid job index. The recommended job is accepted, and so is any
// other single-job decision: beyond "exactly one action" the policy does not
// discriminate. Callers relying on that must not assume the recommendation wins.
type PolicyBias struct {
	policy types.Policy
}

// NewPolicyBias copies policy into a constraint. An empty policy is rejected.
func NewPolicyBias(policy types.Policy) (*PolicyBias, error) {
	if len(policy) == 0 {
		return nil, fmt.Errorf("%w: policy cannot be empty", ErrInvalidConstraint)
	}
	return &PolicyBias{policy: policy.Clone()}, nil
}

func (c *PolicyBias) Name() string { return "PolicyBias" }

// Recommended returns the policy's action for time t.
func (c *PolicyBias) Recommended(t int) int {
	return c.policy.Recommended(t)
}

func (c *PolicyBias) IsSatisfied(state types.State, decision types.Decision) bool {
	if decision.Count() != 1 {
		return false
	}

	recommended := c.policy.Recommended(state.Time)
	if recommended < 0 || recommended >= decision.Len() {
		return false
	}

	// recommended job, or any single-job decision as fallback
	return decision.Selects(recommended) || decision.Count() == 1
}
