package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/decision-engine/internal/config"
	"github.com/ChuLiYu/decision-engine/internal/planner"
	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/server"
	"github.com/ChuLiYu/decision-engine/pkg/types"
)

// writeConfig writes a noise-free config whose store lives under dir.
func writeConfig(t *testing.T, dir string, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`
engine:
  monte_carlo_runs: 20
reward:
  noise_range: 0
store:
  backend: json
  dir: %s
  badger_path: %s
log:
  level: error
%s`, filepath.Join(dir, "policies"), filepath.Join(dir, "badger"), extra)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the CLI with args and returns what it printed to stdout.
func execute(ctx context.Context, args ...string) (string, error) {
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "planner", cmd.Use)

	commandNames := make(map[string]bool)
	for _, c := range cmd.Commands() {
		commandNames[c.Use] = true
		assert.NotNil(t, c.RunE, "%s should have RunE", c.Use)
	}
	for _, name := range []string{"train", "run", "batch", "serve", "show"} {
		assert.True(t, commandNames[name], "Should have '%s' command", name)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag, "Should have --config flag")
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, config.DefaultPath, configFlag.DefValue)
}

func TestBuildBatchCommand(t *testing.T) {
	cmd := buildBatchCommand()

	fileFlag := cmd.Flags().Lookup("file")
	require.NotNil(t, fileFlag, "Should have --file flag")
	assert.Equal(t, "f", fileFlag.Shorthand)
	assert.Equal(t, DefaultScenarioPath, fileFlag.DefValue)
}

func TestTrainRunShow(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	ctx := context.Background()

	out, err := execute(ctx, "-c", cfg, "train")
	require.NoError(t, err)
	assert.Contains(t, out, "tenantA/warehouse_policy@v1")
	assert.Contains(t, out, "converged")
	assert.FileExists(t, filepath.Join(dir, "policies", "tenantA", "warehouse_policy_v1.json"))

	out, err = execute(ctx, "-c", cfg, "run", "--json")
	require.NoError(t, err)

	var result planner.PlanResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, types.Policy{0, 1}, result.Policy)
	assert.Equal(t, []string{"PolicyBias", "MaxActions"}, result.Constraints)
	assert.True(t, result.Plan.Feasible())
	require.Len(t, result.Plan.Decisions, 5)
	for step := 0; step < 5; step++ {
		d, ok := result.Plan.Decision(step)
		require.True(t, ok)
		assert.Equal(t, []int{1, 0}, d.Actions(), "step %d", step)
	}
	want := 10 + 0.9*9.7 + 0.81*9.4 + 0.729*9.1 + 0.6561*8.8
	assert.InDelta(t, want, result.Plan.Value, 1e-9)

	out, err = execute(ctx, "-c", cfg, "run", "--horizon", "3", "--jobs", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "T=3")
	assert.Contains(t, out, "[1,0,0]")

	out, err = execute(ctx, "-c", cfg, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Policy tenantA/warehouse_policy@v1")

	out, err = execute(ctx, "-c", cfg, "show", "--versions")
	require.NoError(t, err)
	assert.Contains(t, out, "v1")
}

func TestTrainFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")

	_, err := execute(context.Background(), "-c", cfg, "train", "--tenant", "tenantB", "--key", "k", "--policy-version", "3", "--ttl", "1h")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "policies", "tenantB", "k_v3.json"))

	_, err = execute(context.Background(), "-c", cfg, "train", "--mdp", "nope")
	assert.ErrorIs(t, err, planner.ErrInvalidRequest)
}

func TestRunWithoutPolicy(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "")

	_, err := execute(context.Background(), "-c", cfg, "run")
	assert.ErrorIs(t, err, policystore.ErrPolicyNotFound)

	_, err = execute(context.Background(), "-c", cfg, "show")
	assert.ErrorIs(t, err, policystore.ErrPolicyNotFound)
}

func TestRunRejectsTooManyJobs(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "")
	_, err := execute(context.Background(), "-c", cfg, "train")
	require.NoError(t, err)

	_, err = execute(context.Background(), "-c", cfg, "run", "--jobs", "5")
	assert.ErrorIs(t, err, planner.ErrInvalidRequest)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  alpha: 2\n"), 0o644))

	_, err := execute(context.Background(), "-c", path, "run")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBadgerBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	require.NoError(t, os.WriteFile(cfg, []byte(fmt.Sprintf(`
reward:
  noise_range: 0
store:
  backend: badger
  badger_path: %s
log:
  level: error
`, filepath.Join(dir, "badger"))), 0o644))

	_, err := execute(context.Background(), "-c", cfg, "train")
	require.NoError(t, err)

	out, err := execute(context.Background(), "-c", cfg, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Policy tenantA/warehouse_policy@v1")
}

// ============================================================================
// batch
// ============================================================================

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	scenarios := filepath.Join(dir, "scenarios.yaml")
	require.NoError(t, os.WriteFile(scenarios, []byte(`
scenarios:
  - name: short
    horizon: 2
  - name: wide
    horizon: 4
    job_count: 3
    seed: 9
`), 0o644))

	_, err := execute(context.Background(), "-c", cfg, "train")
	require.NoError(t, err)

	out, err := execute(context.Background(), "-c", cfg, "batch", "-f", scenarios, "-w", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch of 2 scenarios")
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "wide")
	assert.Contains(t, out, "[1,0,0]")
}

func TestBatchReportsFailedScenarios(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	scenarios := filepath.Join(dir, "scenarios.yaml")
	require.NoError(t, os.WriteFile(scenarios, []byte(`
scenarios:
  - name: ok
  - name: too-wide
    job_count: 5
`), 0o644))

	_, err := execute(context.Background(), "-c", cfg, "train")
	require.NoError(t, err)

	out, err := execute(context.Background(), "-c", cfg, "batch", "-f", scenarios)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 scenarios failed: too-wide")
	assert.Contains(t, out, "ok")
}

func TestParseScenarios(t *testing.T) {
	scenarios, err := ParseScenarios([]byte(`
scenarios:
  - name: a
    horizon: 0
  - name: b
    policy_version: 2
    timeout: 5s
`))
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	require.NotNil(t, scenarios[0].Horizon)
	assert.Equal(t, 0, *scenarios[0].Horizon)
	assert.Nil(t, scenarios[1].Horizon)
	assert.Equal(t, 5*time.Second, scenarios[1].Timeout)

	invalid := map[string]string{
		"empty":     "scenarios: []",
		"no name":   "scenarios:\n  - horizon: 3\n",
		"duplicate": "scenarios:\n  - name: a\n  - name: a\n",
		"zero jobs": "scenarios:\n  - name: a\n    job_count: 0\n",
		"not yaml":  "scenarios: [",
	}
	for name, data := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenarios([]byte(data))
			assert.ErrorIs(t, err, ErrInvalidScenarios)
		})
	}
}

func TestScenarioTaskFallsBackToConfig(t *testing.T) {
	cfg := config.Default()
	horizon, version := 9, 0
	seed := uint64(4)

	task := Scenario{Name: "s", Horizon: &horizon, Seed: &seed, PolicyVersion: &version}.Task(cfg)
	assert.Equal(t, "s", task.ID)
	assert.Equal(t, 9, task.Request.Horizon)
	assert.Equal(t, cfg.Engine.JobCount, task.Request.JobCount)
	assert.Equal(t, uint64(4), task.Request.Seed)
	assert.Equal(t, policystore.Ref{TenantID: "tenantA", Key: "warehouse_policy", Version: 0}, task.Request.Ref)
	assert.Equal(t, cfg.Worker.TaskTimeout, task.Timeout)

	task = Scenario{Name: "t", Timeout: time.Second}.Task(cfg)
	assert.Equal(t, cfg.Engine.Horizon, task.Request.Horizon)
	assert.Equal(t, cfg.Policy.Version, task.Request.Ref.Version)
	assert.Equal(t, time.Second, task.Timeout)
}

func TestRepositoryScenarioFile(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("..", "..", DefaultScenarioPath))
	require.NoError(t, err)
	assert.NotEmpty(t, scenarios)
}

// ============================================================================
// serve / remote
// ============================================================================

func TestServeStopsOnCancel(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := execute(ctx, "-c", cfg, "serve", "--port", "0")
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestRunRemote(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	_, err := execute(context.Background(), "-c", cfgPath, "train")
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	store, err := policystore.NewJSONStore(cfg.Store.Dir)
	require.NoError(t, err)
	p, err := planner.New(store, planner.OptionsFromConfig(cfg))
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := server.New(p)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	out, err := execute(context.Background(), "-c", cfgPath, "run", "--remote", lis.Addr().String(), "--json")
	require.NoError(t, err)

	var result planner.PlanResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, types.Policy{0, 1}, result.Policy)
	assert.Len(t, result.Plan.Decisions, 5)
}
