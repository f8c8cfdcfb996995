// Package config loads engine-wide defaults (queue sizing, timeouts, budget
// scarcity multipliers, loop-detector weights) from a TOML file, overlaid on
// built-in defaults and overridable by environment variables.
//
// Grounded on nevindra-oasis/internal/config/config.go's
// defaults-then-TOML-then-env layering, adapted to sagaflow's engine knobs.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Engine      EngineConfig      `toml:"engine"`
	Budget      BudgetConfig      `toml:"budget"`
	LoopDetect  LoopDetectConfig  `toml:"loop_detect"`
	Ledger      LedgerConfig      `toml:"ledger"`
}

type EngineConfig struct {
	MaxSteps            int    `toml:"max_steps"`
	MaxConcurrentSteps  int    `toml:"max_concurrent_steps"`
	QueueDepth          int    `toml:"queue_depth"`
	BackpressureTimeoutMS int  `toml:"backpressure_timeout_ms"`
	DefaultStepTimeoutMS int   `toml:"default_step_timeout_ms"`
	RunWallClockBudgetS int    `toml:"run_wall_clock_budget_seconds"`
	StoreDriver         string `toml:"store_driver"`
	StoreDSN            string `toml:"store_dsn"`
}

func (e EngineConfig) BackpressureTimeout() time.Duration {
	return time.Duration(e.BackpressureTimeoutMS) * time.Millisecond
}

func (e EngineConfig) DefaultStepTimeout() time.Duration {
	return time.Duration(e.DefaultStepTimeoutMS) * time.Millisecond
}

func (e EngineConfig) RunWallClockBudget() time.Duration {
	return time.Duration(e.RunWallClockBudgetS) * time.Second
}

type BudgetConfig struct {
	Steps           int64               `toml:"steps"`
	Tokens          int64               `toml:"tokens"`
	Executions      int64               `toml:"executions"`
	ToolCalls       int64               `toml:"tool_calls"`
	WallTimeSeconds int64               `toml:"wall_time_seconds"`
	RetryMargin     float64             `toml:"retry_margin"`
	Multipliers     map[string]float64  `toml:"multipliers"`
}

type LoopDetectConfig struct {
	WindowSize          int     `toml:"window_size"`
	RepetitionWeight    float64 `toml:"repetition_weight"`
	SemanticWeight      float64 `toml:"semantic_weight"`
	NoProgressWeight    float64 `toml:"no_progress_weight"`
	FrustrationWeight   float64 `toml:"frustration_weight"`
	RecoveryThreshold   float64 `toml:"recovery_threshold"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MaxResets           int     `toml:"max_resets"`
}

type LedgerConfig struct {
	MaxEntries    int `toml:"max_entries"`
	DefaultTTLSec int `toml:"default_ttl_seconds"`
}

func (l LedgerConfig) DefaultTTL() time.Duration {
	return time.Duration(l.DefaultTTLSec) * time.Second
}

// Default returns a Config with all built-in defaults applied, matching the
// values named throughout spec §4.5, §4.6 and §5.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxSteps:              10000,
			MaxConcurrentSteps:    8,
			QueueDepth:            256,
			BackpressureTimeoutMS: 30000,
			DefaultStepTimeoutMS:  60000,
			RunWallClockBudgetS:   3600,
			StoreDriver:           "memory",
		},
		Budget: BudgetConfig{
			Steps:           1000,
			Tokens:          1_000_000,
			Executions:      1000,
			ToolCalls:       5000,
			WallTimeSeconds: 3600,
			RetryMargin:     0.1,
			Multipliers: map[string]float64{
				"abundant": 1.0,
				"normal":   1.5,
				"scarce":   3.0,
				"critical": 10.0,
			},
		},
		LoopDetect: LoopDetectConfig{
			WindowSize:          5,
			RepetitionWeight:    0.4,
			SemanticWeight:      0.3,
			NoProgressWeight:    0.2,
			FrustrationWeight:   0.1,
			RecoveryThreshold:   0.7,
			SimilarityThreshold: 0.85,
			MaxResets:           3,
		},
		Ledger: LedgerConfig{
			MaxEntries:    10000,
			DefaultTTLSec: 3600,
		},
	}
}

// Load reads config: defaults -> TOML file (if present) -> env vars (env wins).
// A missing file at path is not an error; the built-in defaults stand. Each call
// starts again from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "sagaflow.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return Config{}, err
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	if v := os.Getenv("SAGAFLOW_STORE_DRIVER"); v != "" {
		cfg.Engine.StoreDriver = v
	}
	if v := os.Getenv("SAGAFLOW_STORE_DSN"); v != "" {
		cfg.Engine.StoreDSN = v
	}

	return cfg, nil
}
