package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestDefault_MatchesProtocolConstants(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BroadcastInterval() != 100*time.Millisecond {
		t.Fatalf("expected 100ms broadcast, got %v", cfg.BroadcastInterval())
	}
	r := cfg.Rules()
	if r.Min != 0 || r.Max != 10 || r.MaxDt != 0.1 {
		t.Fatalf("unexpected rules %+v", r)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	data := "broadcast_interval_ms: 50\ninterpolation_delay_ms: 120\nack_rejected_inputs: true\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SYNC_INTERPOLATION_DELAY_MS", "150")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BroadcastIntervalMs != 50 {
		t.Fatalf("expected file value 50, got %d", cfg.BroadcastIntervalMs)
	}
	if cfg.InterpolationDelayMs != 150 {
		t.Fatalf("expected env override 150, got %d", cfg.InterpolationDelayMs)
	}
	if !cfg.AckRejectedInputs {
		t.Fatalf("expected ack_rejected_inputs from file")
	}
}

func TestLoad_EnvOverridesRules(t *testing.T) {
	t.Setenv("SYNC_AXIS_MIN", "-5")
	t.Setenv("SYNC_AXIS_MAX", "20")
	t.Setenv("SYNC_MAX_INPUT_DT", "0.05")
	t.Setenv("SYNC_SPEED", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	r := cfg.Rules()
	if r.Min != -5 || r.Max != 20 || r.MaxDt != 0.05 {
		t.Fatalf("expected env rules, got %+v", r)
	}
	if cfg.Speed != 3 {
		t.Fatalf("expected speed 3, got %v", cfg.Speed)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.BroadcastIntervalMs = 200 // 超过插值延迟
	cfg.Speed = 0
	cfg.AxisMax = cfg.AxisMin

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	errs := multierr.Errors(err)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), err)
	}
	if !strings.Contains(err.Error(), "interpolation_delay_ms") {
		t.Fatalf("expected interpolation delay complaint, got %v", err)
	}
}
