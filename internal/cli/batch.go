package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/decision-engine/internal/config"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/worker"
)

// DefaultScenarioPath is the scenario file batch reads when -f is not given.
const DefaultScenarioPath = "configs/scenarios.yaml"

var ErrInvalidScenarios = errors.New("invalid scenario file")

// Scenario is one plan request of a batch. Nil fields fall back to the
// engine and policy sections of the config.
type Scenario struct {
	Name          string        `yaml:"name" validate:"required"`
	Horizon       *int          `yaml:"horizon" validate:"omitempty,gte=0"`
	JobCount      *int          `yaml:"job_count" validate:"omitempty,gte=1,lte=20"`
	Seed          *uint64       `yaml:"seed"`
	PolicyVersion *int          `yaml:"policy_version" validate:"omitempty,gte=0"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios" validate:"required,min=1,dive"`
}

// LoadScenarios reads and validates a scenario file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes and validates scenario YAML.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenarios, err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenarios, err)
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for _, s := range file.Scenarios {
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate scenario %q", ErrInvalidScenarios, s.Name)
		}
		seen[s.Name] = true
	}
	return file.Scenarios, nil
}

// Task turns the scenario into a worker task using cfg for unset fields.
func (s Scenario) Task(cfg config.Config) worker.Task {
	req := planner.PlanRequest{
		Ref: policystore.Ref{
			TenantID: cfg.Policy.TenantID,
			Key:      cfg.Policy.Key,
			Version:  cfg.Policy.Version,
		},
		Horizon:  cfg.Engine.Horizon,
		JobCount: cfg.Engine.JobCount,
		Seed:     cfg.Engine.Seed,
	}
	if s.Horizon != nil {
		req.Horizon = *s.Horizon
	}
	if s.JobCount != nil {
		req.JobCount = *s.JobCount
	}
	if s.Seed != nil {
		req.Seed = *s.Seed
	}
	if s.PolicyVersion != nil {
		req.Ref.Version = *s.PolicyVersion
	}

	timeout := cfg.Worker.TaskTimeout
	if s.Timeout > 0 {
		timeout = s.Timeout
	}
	return worker.Task{ID: s.Name, Request: req, Timeout: timeout}
}

func buildBatchCommand() *cobra.Command {
	var (
		file    string
		workers int
		remote  string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Plan many scenarios concurrently",
		Long:  "Read plan scenarios from a YAML file and solve them through the worker pool, each with its own seeded models.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				scenarios, err := LoadScenarios(file)
				if err != nil {
					return err
				}
				tasks := make([]worker.Task, len(scenarios))
				for i, s := range scenarios {
					tasks[i] = s.Task(a.cfg)
				}

				count := a.cfg.Worker.WorkerCount
				if cmd.Flags().Changed("workers") {
					count = workers
				}

				exec, closeExec, err := a.executor(remote)
				if err != nil {
					return err
				}
				defer closeExec()

				results, err := worker.RunBatch(ctx, exec, count, tasks,
					worker.WithMetrics(a.metrics),
					worker.WithLogger(a.logger),
				)
				if err != nil {
					return err
				}
				renderBatch(out, tasks, results)

				var failed []string
				for _, r := range results {
					if !r.Success() {
						failed = append(failed, r.TaskID)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d of %d scenarios failed: %s", len(failed), len(results), strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", DefaultScenarioPath, "YAML file with plan scenarios")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "worker count (default from config)")
	cmd.Flags().StringVar(&remote, "remote", "", "plan on a remote planner at host:port instead of locally")
	return cmd
}
