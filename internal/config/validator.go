package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "process.pid_max")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Hard limits. PIDLimit matches the 16-bit pid space of the teaching kernel.
const (
	PIDLimit      = 32767
	MaxThreshold  = 1024
	MaxVehicles   = 1_000_000
	MaxArgsLimit  = 4096
	MaxArgMax     = 1 << 24
	minArgMax     = 64
	maxLogSizeMB  = 1000
	maxRefreshMs  = 10_000
	minRefreshMs  = 10
	maxDwellMs    = 60_000
	maxArrivalsMs = 60_000
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateIntersection()...)
	errors = append(errors, c.validateTraffic()...)
	errors = append(errors, c.validateProcess()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTUI()...)

	return errors
}

func (c *Config) validateIntersection() []ValidationError {
	var errors []ValidationError

	if c.Intersection.Threshold < 1 || c.Intersection.Threshold > MaxThreshold {
		errors = append(errors, ValidationError{
			Field:   "intersection.threshold",
			Value:   c.Intersection.Threshold,
			Message: fmt.Sprintf("must be between 1 and %d", MaxThreshold),
		})
	}

	return errors
}

// validateTraffic validates the TrafficConfig
func (c *Config) validateTraffic() []ValidationError {
	var errors []ValidationError
	t := c.Traffic

	if t.Vehicles < 0 || t.Vehicles > MaxVehicles {
		errors = append(errors, ValidationError{
			Field:   "traffic.vehicles",
			Value:   t.Vehicles,
			Message: fmt.Sprintf("must be between 0 and %d", MaxVehicles),
		})
	}

	if t.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "traffic.concurrency",
			Value:   t.Concurrency,
			Message: "must be at least 1",
		})
	}

	if t.DwellMinMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "traffic.dwell_min_ms",
			Value:   t.DwellMinMs,
			Message: "must be non-negative",
		})
	}
	if t.DwellMaxMs > maxDwellMs {
		errors = append(errors, ValidationError{
			Field:   "traffic.dwell_max_ms",
			Value:   t.DwellMaxMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxDwellMs),
		})
	}
	if t.DwellMaxMs < t.DwellMinMs {
		errors = append(errors, ValidationError{
			Field:   "traffic.dwell_max_ms",
			Value:   t.DwellMaxMs,
			Message: fmt.Sprintf("must be at least dwell_min_ms (%d)", t.DwellMinMs),
		})
	}

	if t.ArrivalJitterMs < 0 || t.ArrivalJitterMs > maxArrivalsMs {
		errors = append(errors, ValidationError{
			Field:   "traffic.arrival_jitter_ms",
			Value:   t.ArrivalJitterMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxArrivalsMs),
		})
	}

	return errors
}

// validateProcess validates the ProcessConfig
func (c *Config) validateProcess() []ValidationError {
	var errors []ValidationError
	p := c.Process

	// pid 0 means "no parent" and pid 1 is the kernel's own
	if p.PIDMin < 2 {
		errors = append(errors, ValidationError{
			Field:   "process.pid_min",
			Value:   p.PIDMin,
			Message: "must be at least 2",
		})
	}
	if p.PIDMax > PIDLimit {
		errors = append(errors, ValidationError{
			Field:   "process.pid_max",
			Value:   p.PIDMax,
			Message: fmt.Sprintf("exceeds maximum of %d", PIDLimit),
		})
	}
	if p.PIDMax < p.PIDMin {
		errors = append(errors, ValidationError{
			Field:   "process.pid_max",
			Value:   p.PIDMax,
			Message: fmt.Sprintf("must be at least pid_min (%d)", p.PIDMin),
		})
	}

	if p.MaxArgs < 1 || p.MaxArgs > MaxArgsLimit {
		errors = append(errors, ValidationError{
			Field:   "process.max_args",
			Value:   p.MaxArgs,
			Message: fmt.Sprintf("must be between 1 and %d", MaxArgsLimit),
		})
	}

	if p.ArgMax < minArgMax || p.ArgMax > MaxArgMax {
		errors = append(errors, ValidationError{
			Field:   "process.arg_max",
			Value:   p.ArgMax,
			Message: fmt.Sprintf("must be between %d and %d", minArgMax, MaxArgMax),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateTUI validates the TUIConfig
func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if c.TUI.RefreshMs < minRefreshMs || c.TUI.RefreshMs > maxRefreshMs {
		errors = append(errors, ValidationError{
			Field:   "tui.refresh_ms",
			Value:   c.TUI.RefreshMs,
			Message: fmt.Sprintf("must be between %d and %d", minRefreshMs, maxRefreshMs),
		})
	}

	return errors
}
