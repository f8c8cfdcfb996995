package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasSensibleBudgetMultipliers(t *testing.T) {
	cfg := Default()
	if cfg.Budget.Multipliers["abundant"] >= cfg.Budget.Multipliers["normal"] {
		t.Fatal("abundant multiplier must be less than normal")
	}
	if cfg.LoopDetect.WindowSize != 5 {
		t.Fatalf("expected default window size 5, got %d", cfg.LoopDetect.WindowSize)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MaxSteps != Default().Engine.MaxSteps {
		t.Fatal("missing file should fall back to defaults")
	}
}

func TestLoadOverlaysTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sagaflow.toml")
	content := `
[engine]
max_steps = 42
queue_depth = 7

[budget]
steps = 99
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.MaxSteps != 42 {
		t.Fatalf("expected overlaid max_steps 42, got %d", cfg.Engine.MaxSteps)
	}
	if cfg.Engine.QueueDepth != 7 {
		t.Fatalf("expected overlaid queue_depth 7, got %d", cfg.Engine.QueueDepth)
	}
	if cfg.Budget.Steps != 99 {
		t.Fatalf("expected overlaid budget steps 99, got %d", cfg.Budget.Steps)
	}
	// Untouched fields keep their defaults.
	if cfg.LoopDetect.WindowSize != 5 {
		t.Fatal("fields absent from the TOML overlay must keep default values")
	}
}

func TestLoadEnvOverridesStoreDriver(t *testing.T) {
	t.Setenv("SAGAFLOW_STORE_DRIVER", "sqlite")
	t.Setenv("SAGAFLOW_STORE_DSN", "file:test.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.StoreDriver != "sqlite" {
		t.Fatalf("expected env override sqlite, got %s", cfg.Engine.StoreDriver)
	}
	if cfg.Engine.StoreDSN != "file:test.db" {
		t.Fatalf("expected env override dsn, got %s", cfg.Engine.StoreDSN)
	}
}
