package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// StopMode mirrors runner stop semantics at the configuration surface.
const (
	StopModeGraceful  = "graceful"
	StopModeImmediate = "immediate"
)

type Config struct {
	Host        string            `mapstructure:"host"`
	Users       int               `mapstructure:"users"`
	SpawnRate   float64           `mapstructure:"spawn_rate"`
	Duration    time.Duration     `mapstructure:"duration"`
	StopMode    string            `mapstructure:"stop_mode"`
	GracePeriod time.Duration     `mapstructure:"grace_period"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Headers     map[string]string `mapstructure:"headers"`
	Profiles    []string          `mapstructure:"profiles"`
	Tags        []string          `mapstructure:"tags"`
	Seed        int64             `mapstructure:"seed"`
	Iterations  int               `mapstructure:"iterations"`
	Retries     int               `mapstructure:"retries"`
	RetryDelay  time.Duration     `mapstructure:"retry_delay"`
	JSONOutput  bool              `mapstructure:"json_output"`
	LogErrors   bool              `mapstructure:"log_errors"`
	Thresholds  []string          `mapstructure:"thresholds"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	ConfigFile  string            `mapstructure:"-"`
}

// TracingConfig controls the optional OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   bool    `mapstructure:"propagate"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if strings.TrimSpace(c.Host) == "" {
		issues = append(issues, "host is required (use --help for usage information)")
	}

	// Security warnings for large populations
	if c.Users > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High user count configured (%d users). Ensure you have authorization to test the target system.", c.Users))
	}
	if c.SpawnRate > 100 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High spawn rate configured (%.0f users/s). Ensure you have authorization to test the target system.", c.SpawnRate))
	}
	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}

	if c.Users < 1 {
		issues = append(issues, "users must be >= 1")
	}
	if c.SpawnRate <= 0 {
		issues = append(issues, "spawn-rate must be > 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.GracePeriod < 0 {
		issues = append(issues, "grace-period must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.RetryDelay < 0 {
		issues = append(issues, "retry-delay must be >= 0")
	}

	switch c.StopMode {
	case "", StopModeGraceful, StopModeImmediate:
	default:
		issues = append(issues, fmt.Sprintf("stop-mode must be %q or %q, got %q", StopModeGraceful, StopModeImmediate, c.StopMode))
	}

	tracingIssues := validateTracingConfig(c.Tracing)
	if len(tracingIssues) > 0 {
		issues = append(issues, tracingIssues...)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	if !t.Enabled {
		return nil
	}
	var issues []string
	switch t.Protocol {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0 and 1")
	}
	return issues
}
