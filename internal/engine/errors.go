package engine

// ============================================================================
// Engine Error Definitions
// Purpose: precondition and collaborator errors returned by the solvers
// ============================================================================

import "errors"

var (
	// ErrInvalidDiscount indicates a discount factor (alpha or gamma) outside (0, 1]
	ErrInvalidDiscount = errors.New("engine: discount factor must be in (0, 1]")

	// ErrInvalidRuns indicates a non-positive Monte Carlo run count
	ErrInvalidRuns = errors.New("engine: monte carlo runs must be positive")

	// ErrInvalidOptions indicates non-positive iteration limits or tolerance
	ErrInvalidOptions = errors.New("engine: invalid solver options")

	// ErrInvalidJobCount indicates a decision space with fewer than one job
	ErrInvalidJobCount = errors.New("engine: job count must be at least 1")

	// ErrDecisionSpaceTooLarge indicates 2^J is beyond MaxJobCount
	ErrDecisionSpaceTooLarge = errors.New("engine: decision space too large")

	// ErrInvalidMDP indicates a nil MDP or one without states or actions
	ErrInvalidMDP = errors.New("engine: invalid MDP")

	// ErrInvalidTransition indicates a transition to a state the solver cannot index
	ErrInvalidTransition = errors.New("engine: invalid transition")

	// ErrNilRewardModel / ErrNilTransitionModel / ErrNilEstimator indicate missing collaborators
	ErrNilRewardModel     = errors.New("engine: reward model is nil")
	ErrNilTransitionModel = errors.New("engine: transition model is nil")
	ErrNilEstimator       = errors.New("engine: monte carlo estimator is nil")
	ErrNilConstraint      = errors.New("engine: constraint is nil")
)
