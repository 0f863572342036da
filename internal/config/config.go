// Package config loads the top-level remedy configuration from an
// optional YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/havenops/remedy/internal/healing"
)

// Config is the full daemon configuration.
type Config struct {
	// Database is the SQLite database path
	Database string `yaml:"database"`
	// ListenAddr is the HTTP address for metrics and status endpoints
	ListenAddr string `yaml:"listen_addr"`
	// Healing configures the healing loop
	Healing healing.Config `yaml:"healing"`
	// MaxRecoveryAttempts bounds attempts per recovery episode
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts"`
	// EscalateAfter is the attempt count after which escalation is considered
	EscalateAfter int `yaml:"escalate_after"`
	// SelfModificationAllowed permits the code-fix recovery strategy
	SelfModificationAllowed bool `yaml:"self_modification_allowed"`
	// LearningBatchSize is how many experiences accumulate before a learning pass
	LearningBatchSize int `yaml:"learning_batch_size"`
	// ErrorBufferSize bounds the in-memory error stream ring
	ErrorBufferSize int `yaml:"error_buffer_size"`
	// RecoveryCommand is the hook invoked by recovery strategies to
	// restart or retry the supervised workload; empty means strategies
	// record intent without acting
	RecoveryCommand string `yaml:"recovery_command"`
	// RecoveryArgs are fixed arguments for RecoveryCommand
	RecoveryArgs []string `yaml:"recovery_args"`
	// WorkspaceRoot is the directory code fixes are applied under; empty
	// disables fix application (fixes are still proposed)
	WorkspaceRoot string `yaml:"workspace_root"`
	// WorkspaceCheck is the command run after applying a fix to verify it
	WorkspaceCheck string `yaml:"workspace_check"`
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Database:                ".remedy/remedy.db",
		ListenAddr:              ":9464",
		Healing:                 *healing.DefaultConfig(),
		MaxRecoveryAttempts:     3,
		EscalateAfter:           2,
		SelfModificationAllowed: true,
		LearningBatchSize:       20,
		ErrorBufferSize:         1000,
	}
}

// Load reads configuration from the given YAML file (if path is
// non-empty), then applies environment overrides, then validates. A
// missing file with an empty path is not an error; a missing file with an
// explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from REMEDY_* environment variables.
//
// Environment variables:
//   - REMEDY_DATABASE: SQLite database path
//   - REMEDY_LISTEN_ADDR: HTTP listen address
//   - REMEDY_CHECK_INTERVAL: health check interval (Go duration)
//   - REMEDY_MAX_RECOVERY_ATTEMPTS: attempts per recovery episode
//   - REMEDY_ESCALATE_AFTER: attempts before escalation
//   - REMEDY_SELF_MODIFICATION: enable the code-fix strategy
//   - REMEDY_LEARNING_BATCH_SIZE: experiences per learning pass
//   - REMEDY_ERROR_BUFFER_SIZE: error stream ring size
//   - REMEDY_RECOVERY_COMMAND: recovery hook command
//   - REMEDY_WORKSPACE_ROOT: code-fix workspace directory
func (c *Config) applyEnv() error {
	if err := parseEnvString("REMEDY_DATABASE", &c.Database); err != nil {
		return err
	}
	if err := parseEnvString("REMEDY_LISTEN_ADDR", &c.ListenAddr); err != nil {
		return err
	}
	if err := parseEnvDuration("REMEDY_CHECK_INTERVAL", &c.Healing.CheckInterval); err != nil {
		return err
	}
	if err := parseEnvInt("REMEDY_MAX_RECOVERY_ATTEMPTS", &c.MaxRecoveryAttempts); err != nil {
		return err
	}
	if err := parseEnvInt("REMEDY_ESCALATE_AFTER", &c.EscalateAfter); err != nil {
		return err
	}
	if err := parseEnvBool("REMEDY_SELF_MODIFICATION", &c.SelfModificationAllowed); err != nil {
		return err
	}
	if err := parseEnvInt("REMEDY_LEARNING_BATCH_SIZE", &c.LearningBatchSize); err != nil {
		return err
	}
	if err := parseEnvInt("REMEDY_ERROR_BUFFER_SIZE", &c.ErrorBufferSize); err != nil {
		return err
	}
	if err := parseEnvString("REMEDY_RECOVERY_COMMAND", &c.RecoveryCommand); err != nil {
		return err
	}
	if err := parseEnvString("REMEDY_WORKSPACE_ROOT", &c.WorkspaceRoot); err != nil {
		return err
	}
	return nil
}

// Validate checks that the configuration has sane values.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.MaxRecoveryAttempts < 1 {
		return fmt.Errorf("max_recovery_attempts must be at least 1 (got %d)", c.MaxRecoveryAttempts)
	}
	if c.EscalateAfter < 1 {
		return fmt.Errorf("escalate_after must be at least 1 (got %d)", c.EscalateAfter)
	}
	if c.EscalateAfter > c.MaxRecoveryAttempts {
		return fmt.Errorf("escalate_after (%d) must be <= max_recovery_attempts (%d)",
			c.EscalateAfter, c.MaxRecoveryAttempts)
	}
	if c.LearningBatchSize < 1 {
		return fmt.Errorf("learning_batch_size must be at least 1 (got %d)", c.LearningBatchSize)
	}
	if c.ErrorBufferSize < 10 {
		return fmt.Errorf("error_buffer_size must be at least 10 (got %d)", c.ErrorBufferSize)
	}
	return nil
}

func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	*dest = value
	return nil
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
