// Package sample holds named example MDPs for offline training.
package sample

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ChuLiYu/decision-engine/internal/engine"
	"github.com/ChuLiYu/decision-engine/pkg/types"
)

var ErrUnknownMDP = errors.New("sample: unknown mdp")

// Warehouse states and actions.
const (
	StateNormal    = 0
	StateCongested = 1

	ActionFastPick   = 0
	ActionReorganize = 1
)

// Warehouse is a two-state warehouse:
//
//	normal    + fast pick  -> normal,    reward 5
//	normal    + reorganize -> congested, reward 1
//	congested + fast pick  -> congested, reward 0
//	congested + reorganize -> normal,    reward 2
type Warehouse struct{}

func (Warehouse) StateCount() int  { return 2 }
func (Warehouse) ActionCount() int { return 2 }

func (Warehouse) Transitions(state, action int) []types.Transition {
	switch {
	case state == StateNormal && action == ActionFastPick:
		return []types.Transition{{Next: StateNormal, Probability: 1, Reward: 5}}
	case state == StateNormal && action == ActionReorganize:
		return []types.Transition{{Next: StateCongested, Probability: 1, Reward: 1}}
	case state == StateCongested && action == ActionFastPick:
		return []types.Transition{{Next: StateCongested, Probability: 1, Reward: 0}}
	case state == StateCongested && action == ActionReorganize:
		return []types.Transition{{Next: StateNormal, Probability: 1, Reward: 2}}
	}
	return nil
}

var registry = map[string]func() engine.DiscreteMDP{
	"warehouse": func() engine.DiscreteMDP { return Warehouse{} },
}

// Lookup returns the MDP registered under name.
func Lookup(name string) (engine.DiscreteMDP, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownMDP, name, Names())
	}
	return build(), nil
}

// Names lists the registered MDPs in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
