package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete synchcore configuration
type Config struct {
	Intersection IntersectionConfig `mapstructure:"intersection" yaml:"intersection"`
	Traffic      TrafficConfig      `mapstructure:"traffic" yaml:"traffic"`
	Process      ProcessConfig      `mapstructure:"process" yaml:"process"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	TUI          TUIConfig          `mapstructure:"tui" yaml:"tui"`
}

// IntersectionConfig controls the admission controller
type IntersectionConfig struct {
	// Threshold is the number of vehicles from one origin that may be in
	// flight before that origin is throttled (default: 4)
	Threshold int `mapstructure:"threshold" yaml:"threshold"`
}

// TrafficConfig controls the traffic simulation driver
type TrafficConfig struct {
	// Vehicles is the total number of vehicles to simulate
	Vehicles int `mapstructure:"vehicles" yaml:"vehicles"`
	// Concurrency bounds how many vehicles are approaching at once
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// Seed seeds the RNG; 0 picks a time-based seed
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
	// DwellMinMs and DwellMaxMs bound the time a vehicle spends inside
	DwellMinMs int `mapstructure:"dwell_min_ms" yaml:"dwell_min_ms"`
	DwellMaxMs int `mapstructure:"dwell_max_ms" yaml:"dwell_max_ms"`
	// ArrivalJitterMs is the maximum random delay before a vehicle arrives
	ArrivalJitterMs int `mapstructure:"arrival_jitter_ms" yaml:"arrival_jitter_ms"`
}

// ProcessConfig controls the process table and the syscall limits
type ProcessConfig struct {
	PIDMin  int `mapstructure:"pid_min" yaml:"pid_min"`
	PIDMax  int `mapstructure:"pid_max" yaml:"pid_max"`
	MaxArgs int `mapstructure:"max_args" yaml:"max_args"`
	// ArgMax is the byte limit on the laid-out argument vector
	ArgMax int `mapstructure:"arg_max" yaml:"arg_max"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory for synchcore.log; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum size in MB before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// TUIConfig controls the live intersection view
type TUIConfig struct {
	// Enabled shows the live view during traffic runs when stdout is a terminal
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// RefreshMs is how often the view polls the controller (default: 100)
	RefreshMs int `mapstructure:"refresh_ms" yaml:"refresh_ms"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Intersection: IntersectionConfig{
			Threshold: 4,
		},
		Traffic: TrafficConfig{
			Vehicles:        200,
			Concurrency:     16,
			Seed:            0,
			DwellMinMs:      1,
			DwellMaxMs:      10,
			ArrivalJitterMs: 5,
		},
		Process: ProcessConfig{
			PIDMin:  2, // pid 1 is reserved for the kernel
			PIDMax:  32767,
			MaxArgs: 64,
			ArgMax:  65536,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		TUI: TUIConfig{
			Enabled:   false,
			RefreshMs: 100,
		},
	}
}

// DwellRange returns the dwell bounds as durations
func (c *TrafficConfig) DwellRange() (time.Duration, time.Duration) {
	return time.Duration(c.DwellMinMs) * time.Millisecond, time.Duration(c.DwellMaxMs) * time.Millisecond
}

// ArrivalJitter returns the arrival jitter as a time.Duration
func (c *TrafficConfig) ArrivalJitter() time.Duration {
	return time.Duration(c.ArrivalJitterMs) * time.Millisecond
}

// RefreshInterval returns the live view refresh interval as a time.Duration
func (c *TUIConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("intersection.threshold", defaults.Intersection.Threshold)

	viper.SetDefault("traffic.vehicles", defaults.Traffic.Vehicles)
	viper.SetDefault("traffic.concurrency", defaults.Traffic.Concurrency)
	viper.SetDefault("traffic.seed", defaults.Traffic.Seed)
	viper.SetDefault("traffic.dwell_min_ms", defaults.Traffic.DwellMinMs)
	viper.SetDefault("traffic.dwell_max_ms", defaults.Traffic.DwellMaxMs)
	viper.SetDefault("traffic.arrival_jitter_ms", defaults.Traffic.ArrivalJitterMs)

	viper.SetDefault("process.pid_min", defaults.Process.PIDMin)
	viper.SetDefault("process.pid_max", defaults.Process.PIDMax)
	viper.SetDefault("process.max_args", defaults.Process.MaxArgs)
	viper.SetDefault("process.arg_max", defaults.Process.ArgMax)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("tui.enabled", defaults.TUI.Enabled)
	viper.SetDefault("tui.refresh_ms", defaults.TUI.RefreshMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "synchcore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".synchcore"
	}
	return filepath.Join(home, ".config", "synchcore")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
