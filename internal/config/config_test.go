package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Intersection.Threshold != 4 {
		t.Errorf("Intersection.Threshold = %d, want 4", cfg.Intersection.Threshold)
	}

	if cfg.Process.PIDMin != 2 || cfg.Process.PIDMax != 32767 {
		t.Errorf("Process pid range = [%d, %d], want [2, 32767]", cfg.Process.PIDMin, cfg.Process.PIDMax)
	}
	if cfg.Process.MaxArgs != 64 {
		t.Errorf("Process.MaxArgs = %d, want 64", cfg.Process.MaxArgs)
	}
	if cfg.Process.ArgMax != 65536 {
		t.Errorf("Process.ArgMax = %d, want 65536", cfg.Process.ArgMax)
	}

	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	if cfg.TUI.Enabled {
		t.Error("TUI.Enabled should be false by default")
	}
}

func TestTrafficConfig_Durations(t *testing.T) {
	cfg := TrafficConfig{DwellMinMs: 2, DwellMaxMs: 20, ArrivalJitterMs: 7}

	lo, hi := cfg.DwellRange()
	if lo != 2*time.Millisecond || hi != 20*time.Millisecond {
		t.Errorf("DwellRange() = (%v, %v), want (2ms, 20ms)", lo, hi)
	}
	if got := cfg.ArrivalJitter(); got != 7*time.Millisecond {
		t.Errorf("ArrivalJitter() = %v, want 7ms", got)
	}
}

func TestTUIConfig_RefreshInterval(t *testing.T) {
	cfg := TUIConfig{RefreshMs: 250}
	if got := cfg.RefreshInterval(); got != 250*time.Millisecond {
		t.Errorf("RefreshInterval() = %v, want 250ms", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/synchcore" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/synchcore")
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		want := filepath.Join(home, ".config", "synchcore")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	want := "/custom/config/synchcore/config.yaml"
	if got := ConfigFile(); got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Intersection.Threshold != 4 {
		t.Errorf("Get().Intersection.Threshold = %d, want 4", cfg.Intersection.Threshold)
	}
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("intersection.threshold", 2)
	viper.Set("traffic.seed", 42)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Intersection.Threshold != 2 {
		t.Errorf("Intersection.Threshold = %d, want 2", cfg.Intersection.Threshold)
	}
	if cfg.Traffic.Seed != 42 {
		t.Errorf("Traffic.Seed = %d, want 42", cfg.Traffic.Seed)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "process:\n  pid_min: 10\n  pid_max: 20\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Process.PIDMin != 10 || cfg.Process.PIDMax != 20 {
		t.Errorf("pid range = [%d, %d], want [10, 20]", cfg.Process.PIDMin, cfg.Process.PIDMax)
	}
	if cfg.Process.MaxArgs != 64 {
		t.Errorf("unset key should keep its default, MaxArgs = %d", cfg.Process.MaxArgs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("intersection.threshold", 0)

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for threshold 0")
	}
	var verrs ValidationErrors
	if ve, ok := err.(ValidationErrors); ok {
		verrs = ve
	}
	if len(verrs) != 1 || verrs[0].Field != "intersection.threshold" {
		t.Errorf("Load() error = %v, want a single intersection.threshold error", err)
	}

	if got := Get(); got.Intersection.Threshold != 4 {
		t.Errorf("Get() should fall back to defaults, threshold = %d", got.Intersection.Threshold)
	}
}
