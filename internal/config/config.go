// Package config loads the coordinator's TOML configuration file and
// fills in the documented defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the coordinator's full, immutable configuration. It is
// loaded once at startup and passed by constructor injection to every
// component — nothing reads a global.
type Config struct {
	HTTP       HTTPConfig       `toml:"http"`
	Worker     WorkerConfig     `toml:"worker"`
	Data       DataConfig       `toml:"data"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Classifier ClassifierConfig `toml:"classifier"`
	Difficulty DifficultyConfig `toml:"difficulty"`
	Selection  SelectionConfig  `toml:"selection"`
	Division   DivisionConfig   `toml:"division"`
	Stream     StreamConfig     `toml:"stream"`
	Reputation ReputationConfig `toml:"reputation"`
	Consensus  ConsensusConfig  `toml:"consensus"`
}

type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// WorkerConfig holds the connection-protocol constants.
type WorkerConfig struct {
	HeartbeatIntervalSeconds int `toml:"heartbeat_interval_s"`
	ReaperMultiplier         int `toml:"reaper_multiplier"` // reaper timeout = multiplier * interval
	SendGracePeriodSeconds   int `toml:"send_grace_period_s"`
}

func (w WorkerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatIntervalSeconds) * time.Second
}

func (w WorkerConfig) ReaperTimeout() time.Duration {
	return time.Duration(w.ReaperMultiplier) * w.HeartbeatInterval()
}

func (w WorkerConfig) SendGrace() time.Duration {
	return time.Duration(w.SendGracePeriodSeconds) * time.Second
}

type DataConfig struct {
	Dir string `toml:"dir"`
}

type DiscoveryConfig struct {
	MDNSEnabled bool `toml:"mdns_enabled"`
	Port        int  `toml:"port"`
}

type ClassifierConfig struct {
	TimeoutSeconds int    `toml:"timeout_s"`
	ExternalURL    string `toml:"external_url"`
}

func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DifficultyConfig is the difficulty_timeout_s map plus the
// per-subtask attempt cap.
type DifficultyConfig struct {
	SimpleTimeoutSeconds     int `toml:"simple_timeout_s"`
	ComplexTimeoutSeconds    int `toml:"complex_timeout_s"`
	AdvancedTimeoutSeconds   int `toml:"advanced_timeout_s"`
	MaxAttemptsPerSubtask    int `toml:"max_attempts_per_subtask"`
	PerSubtaskTimeoutSeconds int `toml:"per_subtask_timeout_s"`
}

func (d DifficultyConfig) TimeoutFor(difficulty string) time.Duration {
	switch difficulty {
	case "SIMPLE":
		return time.Duration(d.SimpleTimeoutSeconds) * time.Second
	case "COMPLEX":
		return time.Duration(d.ComplexTimeoutSeconds) * time.Second
	case "ADVANCED":
		return time.Duration(d.AdvancedTimeoutSeconds) * time.Second
	default:
		return time.Duration(d.SimpleTimeoutSeconds) * time.Second
	}
}

func (d DifficultyConfig) PerSubtaskTimeout() time.Duration {
	return time.Duration(d.PerSubtaskTimeoutSeconds) * time.Second
}

// SelectionConfig holds the node-selection scoring weights.
type SelectionConfig struct {
	WeightReputation float64 `toml:"w_rep"`
	WeightTPS        float64 `toml:"w_tps"`
	WeightLoad       float64 `toml:"w_load"`
	WeightWait       float64 `toml:"w_wait"`
}

// DivisionConfig holds the division-mode knobs.
type DivisionConfig struct {
	MaxSubtasksPerTask   int `toml:"max_subtasks_per_task"`
	ConsensusReplicas    int `toml:"consensus_replicas"`
	ContextWindowTokens  int `toml:"context_window_tokens"`
	ContextOverlapTokens int `toml:"context_overlap_tokens"`
}

type StreamConfig struct {
	QueueCapacity int `toml:"queue_capacity"`
}

type ReputationConfig struct {
	Floor               int     `toml:"floor"`
	Ceiling             int     `toml:"ceiling"`
	FastCompletionRatio float64 `toml:"fast_completion_ratio"`
	WeeklyDecayFactor   float64 `toml:"weekly_decay_factor"`
	LeaderboardSize     int     `toml:"leaderboard_size"`
}

type ConsensusConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	PenalizeDissenters  bool    `toml:"penalize_dissenters"`
	DissentMargin       float64 `toml:"dissent_margin"`
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{ListenAddr: ":8080"},
		Worker: WorkerConfig{
			HeartbeatIntervalSeconds: 15,
			ReaperMultiplier:         3,
			SendGracePeriodSeconds:   2,
		},
		Data: DataConfig{Dir: irisHome()},
		Discovery: DiscoveryConfig{
			MDNSEnabled: true,
			Port:        8080,
		},
		Classifier: ClassifierConfig{
			TimeoutSeconds: 5,
		},
		Difficulty: DifficultyConfig{
			SimpleTimeoutSeconds:     60,
			ComplexTimeoutSeconds:    300,
			AdvancedTimeoutSeconds:   600,
			MaxAttemptsPerSubtask:    2,
			PerSubtaskTimeoutSeconds: 120,
		},
		Selection: SelectionConfig{
			WeightReputation: 0.4,
			WeightTPS:        0.3,
			WeightLoad:       0.2,
			WeightWait:       0.1,
		},
		Division: DivisionConfig{
			MaxSubtasksPerTask:   8,
			ConsensusReplicas:    3,
			ContextWindowTokens:  2048,
			ContextOverlapTokens: 128,
		},
		Stream: StreamConfig{QueueCapacity: 256},
		Reputation: ReputationConfig{
			Floor:               10,
			Ceiling:             1_000_000,
			FastCompletionRatio: 0.5,
			WeeklyDecayFactor:   0.99,
			LeaderboardSize:     10,
		},
		Consensus: ConsensusConfig{
			SimilarityThreshold: 0.8,
			PenalizeDissenters:  false,
			DissentMargin:       0.15,
		},
	}
}

// Load reads path on top of Default(), so a partial TOML file is valid.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func irisHome() string {
	if env := os.Getenv("IRIS_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".iris"
	}
	return filepath.Join(home, ".iris")
}
