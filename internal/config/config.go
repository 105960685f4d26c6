// Package config loads the run configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blitzladder/blitzrate/internal/domain/gamemode"
)

// DatabaseConfig holds the ladder database connection parts.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
}

// DSN renders the connection string for lib/pq.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, sslMode)
}

// Timeout is the per-query timeout.
func (d DatabaseConfig) Timeout() time.Duration {
	if d.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(d.TimeoutSecs) * time.Second
}

// Config is the complete run configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`

	// Mode is the ladder to rate, by full or short name (e.g. "blitz").
	Mode string `yaml:"mode"`

	// OutputDir receives the JSON report files.
	OutputDir string `yaml:"output_dir"`

	// TimeShiftHours moves the day boundary of the rating periods.
	TimeShiftHours int `yaml:"time_shift_hours"`

	// EndDate stops the replay early, YYYY-MM-DD. Empty rates everything.
	EndDate string `yaml:"end_date"`

	// DuplicatePolicy is "full", "web-like" or "passthrough".
	DuplicatePolicy string `yaml:"duplicate_policy"`

	// TournamentFile is an optional overlay of manually reported games.
	TournamentFile string `yaml:"tournament_file"`

	// DryRun skips the database write-back.
	DryRun bool `yaml:"dry_run"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

// GameMode resolves the configured mode name.
func (c *Config) GameMode() gamemode.Mode {
	return gamemode.FromName(c.Mode)
}

// EndTime parses the configured end date, zero when unset.
func (c *Config) EndTime() (time.Time, error) {
	if c.EndDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", c.EndDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid end_date %q: %w", c.EndDate, err)
	}
	return t, nil
}

// Load reads the YAML file and applies environment overrides. A missing
// file is not an error, the environment alone can carry a full config.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			SSLMode:      "disable",
			MaxOpenConns: 4,
			TimeoutSecs:  30,
		},
		Mode:      "blitz",
		OutputDir: ".",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if cfg.GameMode() == gamemode.Unknown {
		return nil, fmt.Errorf("unknown game mode %q", cfg.Mode)
	}
	if _, err := cfg.EndTime(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, target *string) {
		if v, ok := os.LookupEnv(key); ok {
			*target = v
		}
	}
	setInt := func(key string, target *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}

	setString("BLITZRATE_DB_HOST", &cfg.Database.Host)
	setInt("BLITZRATE_DB_PORT", &cfg.Database.Port)
	setString("BLITZRATE_DB_NAME", &cfg.Database.Name)
	setString("BLITZRATE_DB_USER", &cfg.Database.User)
	setString("BLITZRATE_DB_PASSWORD", &cfg.Database.Password)
	setString("BLITZRATE_DB_SSLMODE", &cfg.Database.SSLMode)

	setString("BLITZRATE_MODE", &cfg.Mode)
	setString("BLITZRATE_OUTPUT_DIR", &cfg.OutputDir)
	setString("BLITZRATE_END_DATE", &cfg.EndDate)
	setString("BLITZRATE_DUPLICATE_POLICY", &cfg.DuplicatePolicy)
	setString("BLITZRATE_TOURNAMENT_FILE", &cfg.TournamentFile)
	setInt("BLITZRATE_TIME_SHIFT_HOURS", &cfg.TimeShiftHours)

	if v, ok := os.LookupEnv("BLITZRATE_DRY_RUN"); ok {
		cfg.DryRun = v == "1" || v == "true"
	}
}
