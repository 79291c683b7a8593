package engine

import (
	"github.com/stretchr/testify/mock"

	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// ============================================================================
// Test doubles
// ============================================================================

type mockRewardModel struct {
	mock.Mock
}

func (m *mockRewardModel) SampleReward(state types.State, decision types.Decision) float64 {
	args := m.Called(state, decision)
	return args.Get(0).(float64)
}

type mockTransitionModel struct {
	mock.Mock
}

// Transitions returns either a fixed outcome list or the result of a
// func(types.State) []types.Outcome registered with Return.
func (m *mockTransitionModel) Transitions(state types.State, decision types.Decision) []types.Outcome {
	args := m.Called(state, decision)
	if fn, ok := args.Get(0).(func(types.State) []types.Outcome); ok {
		return fn(state)
	}
	return args.Get(0).([]types.Outcome)
}

type mockMDP struct {
	mock.Mock
	states, actions int
}

func (m *mockMDP) StateCount() int  { return m.states }
func (m *mockMDP) ActionCount() int { return m.actions }

func (m *mockMDP) Transitions(state, action int) []types.Transition {
	args := m.Called(state, action)
	if fn, ok := args.Get(0).(func(int, int) []types.Transition); ok {
		return fn(state, action)
	}
	return args.Get(0).([]types.Transition)
}

// advanceOneStep is the deterministic time-advance transition.
func advanceOneStep(s types.State) []types.Outcome {
	return []types.Outcome{{Next: s.Advance(), Probability: 1.0}}
}

func decisionIs(want types.Decision) interface{} {
	return mock.MatchedBy(func(d types.Decision) bool { return d.Equal(want) })
}

func mustDecision(actions ...int) types.Decision {
	d, err := types.NewDecision(actions)
	if err != nil {
		panic(err)
	}
	return d
}

// tableMDP is a plain MDP defined by a lookup table, table[s][a].
type tableMDP [][][]types.Transition

func (m tableMDP) StateCount() int  { return len(m) }
func (m tableMDP) ActionCount() int { return len(m[0]) }

func (m tableMDP) Transitions(state, action int) []types.Transition {
	return m[state][action]
}
