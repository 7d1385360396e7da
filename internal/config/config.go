// config.go — Process-wide configuration for the replay engine.
// Loaded from TOML; every tunable the playback pipeline reads lives here so
// tests can construct engines with explicit values instead of globals.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config encapsulates all configuration values for the replay engine.
type Config struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	LogFormat string `toml:"log_format"`
	LogLevel  string `toml:"log_level"`
	APIBind   string `toml:"api_bind"`

	Decision  DecisionConfig  `toml:"decision"`
	Waiting   WaitingConfig   `toml:"waiting"`
	Executor  ExecutorConfig  `toml:"executor"`
	Vision    VisionConfig    `toml:"vision"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	CSV       CSVConfig       `toml:"csv"`
}

// DecisionConfig tunes the playback decision engine.
type DecisionConfig struct {
	MinConfidence     float64 `toml:"min_confidence"`
	StrategyTimeoutMs int     `toml:"strategy_timeout_ms"`
	MaxRetries        int     `toml:"max_retries"`
	RetryDelayMs      int     `toml:"retry_delay_ms"`
	Sequential        bool    `toml:"sequential"`
}

// WaitingConfig tunes the actionability gate.
type WaitingConfig struct {
	TimeoutMs            int `toml:"timeout_ms"`
	PollingIntervalMs    int `toml:"polling_interval_ms"`
	StabilityThresholdMs int `toml:"stability_threshold_ms"`
}

// ExecutorConfig tunes low-level input dispatch.
type ExecutorConfig struct {
	MouseMoveSteps   int `toml:"mouse_move_steps"`
	MouseMoveStepMs  int `toml:"mouse_move_step_ms"`
	KeystrokeDelayMs int `toml:"keystroke_delay_ms"`
}

// VisionConfig tunes the OCR service.
type VisionConfig struct {
	Language       string `toml:"language"`
	MaxConcurrent  int    `toml:"max_concurrent"`
	CacheTTLMs     int    `toml:"cache_ttl_ms"`
	PrewarmOnStart bool   `toml:"prewarm_on_start"`
}

// TelemetryConfig tunes the telemetry logger and store.
type TelemetryConfig struct {
	BatchSize       int `toml:"batch_size"`
	FlushIntervalMs int `toml:"flush_interval_ms"`
	RetentionDays   int `toml:"retention_days"`
}

// CSVConfig tunes variable substitution.
type CSVConfig struct {
	Strict       bool   `toml:"strict"`
	DefaultValue string `toml:"default_value"`
	TrimValues   *bool  `toml:"trim_values"`
}

const (
	defaultDataDir              = "~/.local/share/replaydeck"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAPIBind              = "127.0.0.1:7816"
	defaultMinConfidence        = 0.5
	defaultStrategyTimeoutMs    = 30000
	defaultMaxRetries           = 2
	defaultRetryDelayMs         = 1000
	defaultWaitTimeoutMs        = 30000
	defaultPollingIntervalMs    = 100
	defaultStabilityThresholdMs = 100
	defaultMouseMoveSteps       = 10
	defaultMouseMoveStepMs      = 5
	defaultKeystrokeDelayMs     = 50
	defaultOCRLanguage          = "eng"
	defaultOCRMaxConcurrent     = 2
	defaultOCRCacheTTLMs        = 2000
	defaultBatchSize            = 10
	defaultFlushIntervalMs      = 5000
	defaultRetentionDays        = 30
)

// Default returns a fully-populated configuration with the documented defaults.
func Default() *Config {
	trim := true
	return &Config{
		DataDir:   defaultDataDir,
		LogFormat: defaultLogFormat,
		LogLevel:  defaultLogLevel,
		APIBind:   defaultAPIBind,
		Decision: DecisionConfig{
			MinConfidence:     defaultMinConfidence,
			StrategyTimeoutMs: defaultStrategyTimeoutMs,
			MaxRetries:        defaultMaxRetries,
			RetryDelayMs:      defaultRetryDelayMs,
		},
		Waiting: WaitingConfig{
			TimeoutMs:            defaultWaitTimeoutMs,
			PollingIntervalMs:    defaultPollingIntervalMs,
			StabilityThresholdMs: defaultStabilityThresholdMs,
		},
		Executor: ExecutorConfig{
			MouseMoveSteps:   defaultMouseMoveSteps,
			MouseMoveStepMs:  defaultMouseMoveStepMs,
			KeystrokeDelayMs: defaultKeystrokeDelayMs,
		},
		Vision: VisionConfig{
			Language:      defaultOCRLanguage,
			MaxConcurrent: defaultOCRMaxConcurrent,
			CacheTTLMs:    defaultOCRCacheTTLMs,
		},
		Telemetry: TelemetryConfig{
			BatchSize:       defaultBatchSize,
			FlushIntervalMs: defaultFlushIntervalMs,
			RetentionDays:   defaultRetentionDays,
		},
		CSV: CSVConfig{TrimValues: &trim},
	}
}

// DefaultConfigPath returns the canonical config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "replaydeck", "config.toml"), nil
}

// Load reads the TOML file at path, layering it over Default(). A missing
// file is not an error — the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.expandPaths()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.expandPaths()
	return cfg, cfg.Validate()
}

// TrimValuesEnabled reports whether substituted CSV values are trimmed.
func (c *CSVConfig) TrimValuesEnabled() bool {
	return c.TrimValues == nil || *c.TrimValues
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) expandPaths() {
	c.DataDir = expandHome(c.DataDir)
	c.LogDir = expandHome(c.LogDir)
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
