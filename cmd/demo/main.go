// Command demo trains the warehouse policy into an in-memory store and plans a
// few horizons against it, printing each step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ChuLiYu/decision-engine/internal/config"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
)

func main() {
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := policystore.OpenBadgerStore(policystore.BadgerConfig{InMemory: true, Logger: logger})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	p, err := planner.New(store, planner.OptionsFromConfig(cfg), planner.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create planner: %v", err)
	}

	ctx := context.Background()
	ref := policystore.Ref{TenantID: cfg.Policy.TenantID, Key: cfg.Policy.Key, Version: 1}

	trained, err := p.Train(ctx, planner.TrainRequest{MDP: cfg.Training.MDP, Ref: ref, TTL: time.Hour})
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}
	fmt.Printf("✓ Trained %s on %q in %d iterations\n", ref, cfg.Training.MDP, trained.Iterations)
	for s, a := range trained.Policy {
		fmt.Printf("  state %d -> action %d  (V = %.3f)\n", s, a, trained.Values[s])
	}

	for _, seed := range []uint64{cfg.Engine.Seed, 1, 2} {
		result, err := p.Plan(ctx, planner.PlanRequest{
			Ref:      policystore.Ref{TenantID: ref.TenantID, Key: ref.Key},
			Horizon:  cfg.Engine.Horizon,
			JobCount: cfg.Engine.JobCount,
			Seed:     seed,
		})
		if err != nil {
			log.Fatalf("Planning failed: %v", err)
		}

		fmt.Printf("\n✓ Plan with seed %d: value %.3f (%d evaluated, %d pruned, %v)\n",
			seed, result.Plan.Value, result.Plan.Stats.Evaluated, result.Plan.Stats.Pruned, result.Duration)
		for t := 0; t < result.Plan.Horizon(); t++ {
			if d, ok := result.Plan.Decision(t); ok {
				fmt.Printf("  t=%d  %s  V=%.3f\n", t, d, result.Plan.Values[t])
			} else {
				fmt.Printf("  t=%d  no feasible decision\n", t)
			}
		}
	}
}
