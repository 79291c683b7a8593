package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/decision-engine/internal/engine"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/worker"
)

var warehouseRef = policystore.Ref{TenantID: "tenantA", Key: "warehouse_policy", Version: 1}

func plannerOptions(means []float64, noise float64) planner.Options {
	return planner.Options{
		Training:          engine.DefaultPolicyIterationOptions(0.95),
		Alpha:             0.9,
		MonteCarloRuns:    50,
		MaxActionsPerStep: 1,
		RewardMeans:       means,
		NoiseRange:        noise,
	}
}

func newPlanner(t testing.TB, store policystore.Store, opts planner.Options) *planner.Planner {
	t.Helper()
	p, err := planner.New(store, opts)
	require.NoError(t, err)
	return p
}

func trainWarehouse(t testing.TB, p *planner.Planner) {
	t.Helper()
	_, err := p.Train(context.Background(), planner.TrainRequest{MDP: "warehouse", Ref: warehouseRef, TTL: time.Hour})
	require.NoError(t, err)
}

// generateTasks builds count plan tasks with distinct seeds and horizons.
func generateTasks(count, jobs int) []worker.Task {
	tasks := make([]worker.Task, count)
	for i := 0; i < count; i++ {
		tasks[i] = worker.Task{
			ID: fmt.Sprintf("scenario-%d", i),
			Request: planner.PlanRequest{
				Ref:      warehouseRef,
				Horizon:  3 + i%5,
				JobCount: jobs,
				Seed:     uint64(1000 + i),
			},
			Timeout: 10 * time.Second,
		}
	}
	return tasks
}
