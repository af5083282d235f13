package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "environment: test\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Regime.ConfirmationCycles != 3 {
		t.Fatalf("confirmation cycles = %d, want default 3", c.Regime.ConfirmationCycles)
	}
	if c.Orchestrator.FastTimeout.Seconds() != 3 {
		t.Fatalf("fast timeout = %v, want 3s", c.Orchestrator.FastTimeout)
	}
	if c.Cache.DBPath == "" {
		t.Fatalf("cache db path should default")
	}
}

func TestInvertedHysteresisThresholdsAreFatal(t *testing.T) {
	path := writeConfig(t, `environment: test
regime:
  hysteresis_enter_threshold: 0.4
  hysteresis_exit_threshold: 0.7
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load failure when exit >= enter")
	}
}

func TestThresholdGapBelowMarginIsFatal(t *testing.T) {
	path := writeConfig(t, `environment: test
regime:
  hysteresis_enter_threshold: 0.7
  hysteresis_exit_threshold: 0.65
  min_threshold_gap: 0.1
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load failure when gap below margin")
	}
}

func TestMissingEnvironmentIsFatal(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9999\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load failure without environment")
	}
}

func TestKafkaEnabledRequiresBrokers(t *testing.T) {
	path := writeConfig(t, `environment: test
kafka:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load failure for kafka without brokers")
	}
}
