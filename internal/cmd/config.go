package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/synchcore/internal/config"
	"github.com/Iron-Ham/synchcore/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify synchcore configuration",
	Long: `View or modify synchcore configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  synchcore config set intersection.threshold 2
  synchcore config set traffic.vehicles 5000
  synchcore config set logging.level debug

Valid keys:
  intersection.threshold     - Vehicles per origin before it is throttled
  traffic.vehicles           - Vehicles per traffic run
  traffic.concurrency        - Vehicles approaching at once
  traffic.seed               - Random seed (0 picks one from the clock)
  traffic.dwell_min_ms       - Minimum time inside the intersection
  traffic.dwell_max_ms       - Maximum time inside the intersection
  traffic.arrival_jitter_ms  - Maximum random delay before arriving
  process.pid_min            - Lowest pid handed out
  process.pid_max            - Highest pid handed out
  process.max_args           - Maximum execv argument count
  process.arg_max            - Maximum execv argument bytes
  logging.enabled            - Enable logging (true/false)
  logging.level              - Options: debug, info, warn, error
  logging.dir                - Directory for synchcore.log (empty logs to stderr)
  logging.max_size_mb        - Log size in MB before rotation
  logging.max_backups        - Rotated log files to keep
  tui.enabled                - Show the live view for traffic runs (true/false)
  tui.refresh_ms             - Live view refresh interval`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/synchcore/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// validKeys maps each settable key to the kind of value it takes.
var validKeys = map[string]string{
	"intersection.threshold":    "int",
	"traffic.vehicles":          "int",
	"traffic.concurrency":       "int",
	"traffic.seed":              "uint",
	"traffic.dwell_min_ms":      "int",
	"traffic.dwell_max_ms":      "int",
	"traffic.arrival_jitter_ms": "int",
	"process.pid_min":           "int",
	"process.pid_max":           "int",
	"process.max_args":          "int",
	"process.arg_max":           "int",
	"logging.enabled":           "bool",
	"logging.level":             "level",
	"logging.dir":               "string",
	"logging.max_size_mb":       "int",
	"logging.max_backups":       "int",
	"tui.enabled":               "bool",
	"tui.refresh_ms":            "int",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// parseConfigValue converts value to the type key expects.
func parseConfigValue(key, value string) (any, error) {
	keyType, ok := validKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'synchcore config set --help' to see valid keys", key)
	}

	switch keyType {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return intVal, nil
	case "uint":
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected non-negative integer", key)
		}
		return u, nil
	case "level":
		lower := strings.ToLower(value)
		for _, l := range config.ValidLogLevels() {
			if lower == l {
				return lower, nil
			}
		}
		return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
			key, value, strings.Join(config.ValidLogLevels(), ", "))
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	key := args[0]

	typedValue, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	// Reject values that would leave the file unloadable
	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)

	return nil
}

// defaultConfigContent is written by config init.
const defaultConfigContent = `# synchcore configuration

# Intersection admission controller
intersection:
  # Vehicles from one origin that may be in flight before the origin is
  # throttled and the others get a turn
  threshold: 4

# Traffic simulation
traffic:
  vehicles: 200
  # Vehicles approaching the intersection at once
  concurrency: 16
  # Random seed; 0 picks one from the clock
  seed: 0
  # Time a vehicle spends inside the intersection
  dwell_min_ms: 1
  dwell_max_ms: 10
  # Maximum random delay before a vehicle arrives
  arrival_jitter_ms: 5

# Process subsystem
process:
  # Range of pids handed out; pid 1 is reserved
  pid_min: 2
  pid_max: 32767
  # execv argument limits
  max_args: 64
  arg_max: 65536

# Logging
logging:
  enabled: true
  # Options: debug, info, warn, error
  level: info
  # Directory for ` + logging.FileName + `; empty logs to stderr
  dir: ""
  max_size_mb: 10
  max_backups: 3

# Live intersection view
tui:
  # Show the view during traffic runs when stdout is a terminal
  enabled: false
  refresh_ms: 100
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'synchcore config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize synchcore's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: SYNCHCORE_* (e.g., SYNCHCORE_INTERSECTION_THRESHOLD)")

	return nil
}
