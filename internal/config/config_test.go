package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.HTTP.ListenAddr != ":8080" {
		t.Errorf("HTTP.ListenAddr = %q, want :8080", cfg.HTTP.ListenAddr)
	}
	if cfg.Difficulty.SimpleTimeoutSeconds != 60 || cfg.Difficulty.ComplexTimeoutSeconds != 300 || cfg.Difficulty.AdvancedTimeoutSeconds != 600 {
		t.Errorf("unexpected difficulty timeouts: %+v", cfg.Difficulty)
	}
	if cfg.Reputation.Floor != 10 {
		t.Errorf("Reputation.Floor = %d, want 10", cfg.Reputation.Floor)
	}
	if cfg.Reputation.WeeklyDecayFactor != 0.99 {
		t.Errorf("Reputation.WeeklyDecayFactor = %v, want 0.99", cfg.Reputation.WeeklyDecayFactor)
	}
}

func TestDifficultyTimeoutFor(t *testing.T) {
	cfg := Default()
	if cfg.Difficulty.TimeoutFor("SIMPLE").Seconds() != 60 {
		t.Error("SIMPLE should map to 60s")
	}
	if cfg.Difficulty.TimeoutFor("ADVANCED").Seconds() != 600 {
		t.Error("ADVANCED should map to 600s")
	}
	if cfg.Difficulty.TimeoutFor("UNKNOWN").Seconds() != 60 {
		t.Error("unknown difficulty should fall back to the SIMPLE timeout")
	}
}

func TestLoadWithMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTP.ListenAddr != Default().HTTP.ListenAddr {
		t.Error("missing config file should yield defaults")
	}
}

func TestLoadOverlaysPartialTOMLOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[http]\nlisten_addr = \":9090\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.HTTP.ListenAddr != ":9090" {
		t.Errorf("HTTP.ListenAddr = %q, want :9090", cfg.HTTP.ListenAddr)
	}
	if cfg.Reputation.Floor != 10 {
		t.Error("fields absent from the TOML file should keep their defaults")
	}
}

func TestWorkerConfigDerivedDurations(t *testing.T) {
	w := WorkerConfig{HeartbeatIntervalSeconds: 15, ReaperMultiplier: 3, SendGracePeriodSeconds: 2}
	if w.HeartbeatInterval().Seconds() != 15 {
		t.Error("HeartbeatInterval should be 15s")
	}
	if w.ReaperTimeout().Seconds() != 45 {
		t.Error("ReaperTimeout should be interval * multiplier = 45s")
	}
}
