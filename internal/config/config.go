// ============================================================================
// Decision Engine Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: YAML configuration for the planner CLI and server
//
// Sections:
//   engine     - online planning (alpha, Monte Carlo runs, horizon, jobs, seed)
//   training   - offline policy iteration (mdp, gamma, iteration bounds)
//   reward     - stochastic reward model (per-job means, noise range)
//   policy     - which stored policy train writes and run reads
//   store      - policy store backend (json | badger)
//   worker     - batch worker pool
//   metrics    - Prometheus /metrics endpoint
//   server     - gRPC planner service
//   telemetry  - OpenTelemetry trace export
//   log        - slog level and format
//
// The loaded Config is passed by value into constructors; nothing reads
// configuration from package state.
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/decision-engine/internal/engine"
	"github.com/ChuLiYu/decision-engine/internal/telemetry"
)

// DefaultPath is where the CLI looks for configuration.
const DefaultPath = "configs/default.yaml"

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete system configuration.
type Config struct {
	Engine    EngineConfig     `yaml:"engine"`
	Training  TrainingConfig   `yaml:"training"`
	Reward    RewardConfig     `yaml:"reward"`
	Policy    PolicyConfig     `yaml:"policy"`
	Store     StoreConfig      `yaml:"store"`
	Worker    WorkerConfig     `yaml:"worker"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Log       LogConfig        `yaml:"log"`
}

type EngineConfig struct {
	Alpha             float64 `yaml:"alpha" validate:"gt=0,lte=1"`
	MonteCarloRuns    int     `yaml:"monte_carlo_runs" validate:"gt=0"`
	MaxActionsPerStep int     `yaml:"max_actions_per_step" validate:"gte=0"`
	Horizon           int     `yaml:"horizon" validate:"gte=0"`
	JobCount          int     `yaml:"job_count" validate:"gte=1,lte=20"`
	Seed              uint64  `yaml:"seed"`
}

type TrainingConfig struct {
	MDP                 string  `yaml:"mdp" validate:"required"`
	Gamma               float64 `yaml:"gamma" validate:"gt=0,lte=1"`
	MaxIterations       int     `yaml:"max_iterations" validate:"gt=0"`
	Tolerance           float64 `yaml:"tolerance" validate:"gt=0"`
	MaxEvaluationSweeps int     `yaml:"max_evaluation_sweeps" validate:"gt=0"`
}

type RewardConfig struct {
	Means      []float64 `yaml:"means" validate:"required,min=1"`
	NoiseRange float64   `yaml:"noise_range" validate:"gte=0"`
}

type PolicyConfig struct {
	TenantID string        `yaml:"tenant_id" validate:"required"`
	Key      string        `yaml:"key" validate:"required"`
	Version  int           `yaml:"version" validate:"gte=0"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=json badger"`
	Dir        string `yaml:"dir"`
	BadgerPath string `yaml:"badger_path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

type WorkerConfig struct {
	WorkerCount int           `yaml:"worker_count" validate:"gte=1"`
	TaskTimeout time.Duration `yaml:"task_timeout" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port" validate:"gte=0,lte=65535"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			Alpha:             0.9,
			MonteCarloRuns:    1000,
			MaxActionsPerStep: 1,
			Horizon:           5,
			JobCount:          2,
			Seed:              12345,
		},
		Training: TrainingConfig{
			MDP:                 "warehouse",
			Gamma:               0.95,
			MaxIterations:       engine.DefaultMaxIterations,
			Tolerance:           engine.DefaultTolerance,
			MaxEvaluationSweeps: engine.DefaultMaxEvaluationSweeps,
		},
		Reward: RewardConfig{
			Means:      []float64{10, 7, 5, 3},
			NoiseRange: 2.0,
		},
		Policy: PolicyConfig{
			TenantID: "tenantA",
			Key:      "warehouse_policy",
			Version:  1,
			TTL:      30 * 24 * time.Hour,
		},
		Store: StoreConfig{
			Backend:    "json",
			Dir:        "data/policies",
			BadgerPath: "data/badger",
			SyncWrites: true,
		},
		Worker: WorkerConfig{
			WorkerCount: 4,
			TaskTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Server: ServerConfig{
			Port:            50051,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but falls back to Default when path does not exist.
func LoadOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags first, then cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		messages := make([]string, 0, len(validationErrs))
		for _, e := range validationErrs {
			messages = append(messages, formatValidationError(e))
		}
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(messages, "\n  - "))
	}

	var messages []string
	if c.Engine.JobCount > len(c.Reward.Means) {
		messages = append(messages, fmt.Sprintf("engine.job_count %d exceeds the %d configured reward.means",
			c.Engine.JobCount, len(c.Reward.Means)))
	}
	switch c.Store.Backend {
	case "json":
		if strings.TrimSpace(c.Store.Dir) == "" {
			messages = append(messages, "store.dir is required when store.backend is 'json'")
		}
	case "badger":
		if !c.Store.InMemory && strings.TrimSpace(c.Store.BadgerPath) == "" {
			messages = append(messages, "store.badger_path is required when store.backend is 'badger'")
		}
	}
	if c.Telemetry.Exporter == telemetry.ExporterOTLP && c.Telemetry.OTLPEndpoint == "" {
		messages = append(messages, "telemetry.otlp_endpoint is required when telemetry.exporter is 'otlp'")
	}
	if len(messages) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(messages, "\n  - "))
	}
	return nil
}

// formatValidationError formats a single validation error with field path and details.
func formatValidationError(e validator.FieldError) string {
	fieldPath := formatFieldPath(e.Namespace())

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldPath)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got: %v)", fieldPath, e.Param(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got: %v)", fieldPath, e.Param(), e.Value())
	default:
		return fmt.Sprintf("%s failed validation '%s' (got: %v)", fieldPath, e.Tag(), e.Value())
	}
}

// formatFieldPath converts "Config.Engine.MonteCarloRuns" to "engine.monte_carlo_runs".
func formatFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) <= 1 {
		return namespace
	}
	result := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		result = append(result, camelToSnake(p))
	}
	return strings.Join(result, ".")
}

func camelToSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if i > 0 && upper {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteRune('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// NewLogger builds a slog logger writing to w at the configured level and format.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log.format %q", ErrInvalidConfig, c.Format)
	}
}
