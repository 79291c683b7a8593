package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/server"
)

// ============================================================================
// train
// ============================================================================

func buildTrainCommand() *cobra.Command {
	var (
		mdp    string
		ttl    time.Duration
		policy policyFlags
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Learn a stationary policy and store it",
		Long:  "Run policy iteration on a named MDP and save the policy under tenant/key/version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				p, err := a.openPlanner()
				if err != nil {
					return err
				}

				req := planner.TrainRequest{
					MDP: a.cfg.Training.MDP,
					Ref: policy.ref(a.cfg, cmd),
					TTL: a.cfg.Policy.TTL,
				}
				if cmd.Flags().Changed("mdp") {
					req.MDP = mdp
				}
				if cmd.Flags().Changed("ttl") {
					req.TTL = ttl
				}

				result, err := p.Train(ctx, req)
				if err != nil {
					return err
				}
				renderTrain(out, result)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mdp, "mdp", "", "MDP to train on (default from config)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "policy lifetime, 0 keeps it forever (default from config)")
	policy.register(cmd)
	return cmd
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	var (
		horizon int
		jobs    int
		seed    uint64
		remote  string
		asJSON  bool
		policy  policyFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan a finite horizon biased by the stored policy",
		Long:  "Load the policy, solve the finite-horizon problem with dynamic programming and print the plan.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				req := planner.PlanRequest{
					Ref:      policy.ref(a.cfg, cmd),
					Horizon:  a.cfg.Engine.Horizon,
					JobCount: a.cfg.Engine.JobCount,
					Seed:     a.cfg.Engine.Seed,
				}
				if cmd.Flags().Changed("horizon") {
					req.Horizon = horizon
				}
				if cmd.Flags().Changed("jobs") {
					req.JobCount = jobs
				}
				if cmd.Flags().Changed("seed") {
					req.Seed = seed
				}

				exec, closeExec, err := a.executor(remote)
				if err != nil {
					return err
				}
				defer closeExec()

				result, err := exec.Plan(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(result)
				}
				renderPlan(out, result)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&horizon, "horizon", 0, "planning horizon T (default from config)")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "job count J (default from config)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "reward model seed (default from config)")
	cmd.Flags().StringVar(&remote, "remote", "", "plan on a remote planner at host:port instead of locally")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan result as JSON")
	policy.register(cmd)
	return cmd
}

// planExecutor is satisfied by both the local planner and the gRPC client.
type planExecutor interface {
	Plan(ctx context.Context, req planner.PlanRequest) (planner.PlanResult, error)
}

func (a *app) executor(remote string) (planExecutor, func(), error) {
	if remote != "" {
		client, err := server.Dial(remote)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", remote, err)
		}
		return client, func() { client.Close() }, nil
	}
	p, err := a.openPlanner()
	if err != nil {
		return nil, nil, err
	}
	return p, func() {}, nil
}

// ============================================================================
// show
// ============================================================================

func buildShowCommand() *cobra.Command {
	var (
		versions bool
		policy   policyFlags
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored policy",
		Long:  "Print the stored policy for tenant/key/version, or list the live versions with --versions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				ref := policy.ref(a.cfg, cmd)

				if versions {
					vs, err := store.Versions(ctx, ref.TenantID, ref.Key)
					if err != nil {
						return err
					}
					renderVersions(out, ref, vs)
					return nil
				}

				p, err := store.Load(ctx, ref)
				if err != nil {
					return err
				}
				renderPolicy(out, ref, p)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&versions, "versions", false, "list live versions instead of printing a policy")
	policy.register(cmd)
	return cmd
}
