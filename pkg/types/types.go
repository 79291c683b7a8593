// Package types defines the domain model shared by the decision engine:
// planning states, combinatorial decisions, transition outcomes, policies
// and finite-horizon plans.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

var (
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidDecision = errors.New("invalid decision")
)

// ============================================================================
// State
// ============================================================================

// State is an immutable snapshot of planning progress.
type State struct {
	Time     int `json:"time"`      // current time step, >= 0
	JobCount int `json:"job_count"` // number of jobs (decision length), >= 1
	Horizon  int `json:"horizon"`   // total horizon, >= Time
}

// NewState validates and builds a State.
func NewState(time, jobCount, horizon int) (State, error) {
	switch {
	case time < 0:
		return State{}, fmt.Errorf("%w: time %d is negative", ErrInvalidState, time)
	case jobCount < 1:
		return State{}, fmt.Errorf("%w: job count %d must be at least 1", ErrInvalidState, jobCount)
	case horizon < time:
		return State{}, fmt.Errorf("%w: horizon %d is before time %d", ErrInvalidState, horizon, time)
	}
	return State{Time: time, JobCount: jobCount, Horizon: horizon}, nil
}

// IsTerminal reports whether the state is at or past the horizon.
func (s State) IsTerminal() bool {
	return s.Time >= s.Horizon
}

// Advance returns the state one time step later.
func (s State) Advance() State {
	return State{Time: s.Time + 1, JobCount: s.JobCount, Horizon: s.Horizon}
}

func (s State) String() string {
	return fmt.Sprintf("t=%d/%d (J=%d)", s.Time, s.Horizon, s.JobCount)
}

// ============================================================================
// Decision
// ============================================================================

// MaxDecisionLength is the widest decision a mask can hold.
const MaxDecisionLength = 63

// Decision is a fixed-length binary vector: actions[j] == 1 means "act on job j".
// Bit j of the mask holds actions[j]. The zero value is the empty decision.
type Decision struct {
	mask uint64
	n    int
}

// DecisionFromMask builds a decision of length n from the low n bits of mask.
func DecisionFromMask(mask uint64, n int) Decision {
	if n < 0 {
		n = 0
	}
	if n > MaxDecisionLength {
		n = MaxDecisionLength
	}
	return Decision{mask: mask & (1<<uint(n) - 1), n: n}
}

// NewDecision builds a decision from an explicit 0/1 action vector.
func NewDecision(actions []int) (Decision, error) {
	if len(actions) > MaxDecisionLength {
		return Decision{}, fmt.Errorf("%w: length %d exceeds %d", ErrInvalidDecision, len(actions), MaxDecisionLength)
	}
	var mask uint64
	for j, a := range actions {
		switch a {
		case 0:
		case 1:
			mask |= 1 << uint(j)
		default:
			return Decision{}, fmt.Errorf("%w: actions[%d] = %d, want 0 or 1", ErrInvalidDecision, j, a)
		}
	}
	return Decision{mask: mask, n: len(actions)}, nil
}

// Len returns the number of jobs the decision covers.
func (d Decision) Len() int { return d.n }

// Mask returns the bit representation of the decision.
func (d Decision) Mask() uint64 { return d.mask }

// Selects reports whether job j is acted on. Out-of-range indices are never selected.
func (d Decision) Selects(j int) bool {
	if j < 0 || j >= d.n {
		return false
	}
	return d.mask&(1<<uint(j)) != 0
}

// Count returns how many jobs the decision acts on.
func (d Decision) Count() int {
	return bits.OnesCount64(d.mask)
}

// Actions returns a fresh copy of the 0/1 action vector.
func (d Decision) Actions() []int {
	actions := make([]int, d.n)
	for j := 0; j < d.n; j++ {
		if d.Selects(j) {
			actions[j] = 1
		}
	}
	return actions
}

// Equal reports whether two decisions have the same length and flags.
func (d Decision) Equal(other Decision) bool {
	return d.n == other.n && d.mask == other.mask
}

func (d Decision) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for j := 0; j < d.n; j++ {
		if j > 0 {
			b.WriteByte(',')
		}
		if d.Selects(j) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	b.WriteByte(']')
	return b.String()
}

func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Actions())
}

func (d *Decision) UnmarshalJSON(data []byte) error {
	var actions []int
	if err := json.Unmarshal(data, &actions); err != nil {
		return err
	}
	decoded, err := NewDecision(actions)
	if err != nil {
		return err
	}
	*d = decoded
	return nil
}

// ============================================================================
// Transitions
// ============================================================================

// Outcome is one (next state, probability) pair of a transition distribution.
// The probabilities of one distribution are expected to sum to 1.
type Outcome struct {
	Next        State
	Probability float64
}

// Transition is one (next state, probability, reward) triple of a discrete MDP.
type Transition struct {
	Next        int
	Probability float64
	Reward      float64
}

// ============================================================================
// Policy and Plan
// ============================================================================

// Policy is a stationary policy: index i holds the action for state (or time) i.
type Policy []int

// Recommended returns the action for index i, clamping i into the policy's range.
// It returns -1 for an empty policy.
func (p Policy) Recommended(i int) int {
	if len(p) == 0 {
		return -1
	}
	if i < 0 {
		i = 0
	}
	if i >= len(p) {
		i = len(p) - 1
	}
	return p[i]
}

// Clone returns an independent copy of the policy.
func (p Policy) Clone() Policy {
	if p == nil {
		return nil
	}
	out := make(Policy, len(p))
	copy(out, p)
	return out
}

// PlanStats counts the work a finite-horizon solve performed.
type PlanStats struct {
	Evaluated int `json:"evaluated"` // decisions that passed every constraint
	Pruned    int `json:"pruned"`    // decisions rejected by a constraint
	Samples   int `json:"samples"`   // reward samples drawn
}

// Plan is the output of a finite-horizon solve.
type Plan struct {
	// Value is the optimal cumulative discounted value from time 0.
	Value float64 `json:"value"`
	// Values[t] is the optimal value from time t; Values[horizon] is 0.
	Values []float64 `json:"values"`
	// Decisions holds one optimal decision per plannable time step.
	// A missing entry means no decision could be chosen for that step.
	Decisions map[int]Decision `json:"decisions"`
	// Infeasible lists, in ascending order, the steps where no decision
	// satisfied every constraint.
	Infeasible []int     `json:"infeasible,omitempty"`
	Stats      PlanStats `json:"stats"`
}

// Decision returns the planned decision for time t.
func (p Plan) Decision(t int) (Decision, bool) {
	d, ok := p.Decisions[t]
	return d, ok
}

// Feasible reports whether every step had at least one admissible decision.
func (p Plan) Feasible() bool {
	return len(p.Infeasible) == 0
}

// Horizon returns the number of steps the plan was solved for.
func (p Plan) Horizon() int {
	if len(p.Values) == 0 {
		return 0
	}
	return len(p.Values) - 1
}

// planJSON is the wire form of Plan. JSON has no infinities, so -Inf values of
// infeasible steps travel as null.
type planJSON struct {
	Value      *float64         `json:"value"`
	Values     []*float64       `json:"values"`
	Decisions  map[int]Decision `json:"decisions"`
	Infeasible []int            `json:"infeasible,omitempty"`
	Stats      PlanStats        `json:"stats"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func orNegInf(v *float64) float64 {
	if v == nil {
		return math.Inf(-1)
	}
	return *v
}

func (p Plan) MarshalJSON() ([]byte, error) {
	out := planJSON{
		Value:      finiteOrNil(p.Value),
		Decisions:  p.Decisions,
		Infeasible: p.Infeasible,
		Stats:      p.Stats,
	}
	if p.Values != nil {
		out.Values = make([]*float64, len(p.Values))
		for i, v := range p.Values {
			out.Values[i] = finiteOrNil(v)
		}
	}
	return json.Marshal(out)
}

func (p *Plan) UnmarshalJSON(data []byte) error {
	var in planJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	plan := Plan{
		Value:      orNegInf(in.Value),
		Decisions:  in.Decisions,
		Infeasible: in.Infeasible,
		Stats:      in.Stats,
	}
	if in.Values != nil {
		plan.Values = make([]float64, len(in.Values))
		for i, v := range in.Values {
			plan.Values[i] = orNegInf(v)
		}
	}
	*p = plan
	return nil
}
