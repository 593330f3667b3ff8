package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/synchcore/internal/config"
	"github.com/Iron-Ham/synchcore/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "synchcore",
	Short: "Intersection and process lifecycle synchronization cores",
	Long: `Synchcore runs the two synchronization cores of a teaching kernel:
an intersection admission controller that lets non-conflicting vehicles
through concurrently without starving any approach, and a process table
that implements fork, exit, waitpid and execv with orphan reparenting and
pid recycling.

Use "synchcore traffic" to drive random vehicles through the intersection
and "synchcore proc" to run scripted process scenarios.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/synchcore/config.yaml)")
}

func initConfig() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SYNCHCORE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SYNCHCORE_INTERSECTION_THRESHOLD for intersection.threshold
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the validated configuration. Unlike config.Get it
// does not fall back to defaults, so a bad value is reported to the user.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger described by the logging section. With no
// log directory entries go to stderr, unless quiet is set (the live view
// owns the terminal), in which case they are discarded.
func newLogger(cfg *config.Config, stderr io.Writer, quiet bool) (*logging.Logger, error) {
	lc := cfg.Logging
	if !lc.Enabled {
		return logging.NopLogger(), nil
	}
	if lc.Dir == "" {
		if quiet {
			return logging.NopLogger(), nil
		}
		return logging.New(stderr, lc.Level), nil
	}
	return logging.NewLoggerWithRotation(lc.Dir, lc.Level, logging.RotationConfig{
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
	})
}
