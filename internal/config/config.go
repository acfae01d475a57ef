package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level daybook.yaml configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Database  DatabaseConfig  `yaml:"database"`
	Matching  MatchingConfig  `yaml:"matching"`
	Exception ExceptionConfig `yaml:"exceptions"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Server    ServerConfig    `yaml:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig locates the sqlite database, relative to DataDir.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MatchingConfig controls the matcher's time windows.
type MatchingConfig struct {
	WindowHours           int `yaml:"window_hours"`            // amount/time matching window
	SettlementWindowHours int `yaml:"settlement_window_hours"` // pending vs missing cutoff
}

// ExceptionConfig controls severity classification.
type ExceptionConfig struct {
	HighVariancePct  int64 `yaml:"high_variance_pct"`  // mismatch >= pct of ledger amount -> high
	PendingMediumAge int   `yaml:"pending_medium_age"` // hours; pending older than this -> medium
}

// NormalizeConfig controls bad-record handling during ingestion.
type NormalizeConfig struct {
	Policy string `yaml:"policy"` // "skip" (collect errors) or "abort"
}

// ServerConfig holds the HTTP API settings for daybookd.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ScheduleConfig holds cron expressions for background jobs.
type ScheduleConfig struct {
	Nightly string `yaml:"nightly"` // "off" disables the nightly run
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads a daybook.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(dataDir string) *Config {
	cfg := &Config{DataDir: dataDir}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.Database.Path == "" {
		c.Database.Path = "daybook.db"
	}
	if c.Matching.WindowHours == 0 {
		c.Matching.WindowHours = 24
	}
	if c.Matching.SettlementWindowHours == 0 {
		c.Matching.SettlementWindowHours = 24
	}
	if c.Exception.HighVariancePct == 0 {
		c.Exception.HighVariancePct = 10
	}
	if c.Exception.PendingMediumAge == 0 {
		c.Exception.PendingMediumAge = 6
	}
	if c.Normalize.Policy == "" {
		c.Normalize.Policy = "skip"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8480
	}
	if c.Schedule.Nightly == "" {
		c.Schedule.Nightly = "0 30 2 * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
