// validate.go — Config validation. Collects every offending property into a
// single error so the caller sees the full list at once.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks every tunable and returns one error naming all offending
// properties, or nil when the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Decision.MinConfidence < 0 || c.Decision.MinConfidence > 1 {
		add("decision.min_confidence must be between 0 and 1 (got %v)", c.Decision.MinConfidence)
	}
	if c.Decision.StrategyTimeoutMs <= 0 {
		add("decision.strategy_timeout_ms must be positive (got %d)", c.Decision.StrategyTimeoutMs)
	}
	if c.Decision.MaxRetries < 0 {
		add("decision.max_retries must not be negative (got %d)", c.Decision.MaxRetries)
	}
	if c.Decision.RetryDelayMs < 0 {
		add("decision.retry_delay_ms must not be negative (got %d)", c.Decision.RetryDelayMs)
	}

	if c.Waiting.TimeoutMs <= 0 {
		add("waiting.timeout_ms must be positive (got %d)", c.Waiting.TimeoutMs)
	}
	if c.Waiting.PollingIntervalMs <= 0 {
		add("waiting.polling_interval_ms must be positive (got %d)", c.Waiting.PollingIntervalMs)
	}
	if c.Waiting.StabilityThresholdMs <= 0 {
		add("waiting.stability_threshold_ms must be positive (got %d)", c.Waiting.StabilityThresholdMs)
	}

	if c.Executor.MouseMoveSteps < 0 {
		add("executor.mouse_move_steps must not be negative (got %d)", c.Executor.MouseMoveSteps)
	}
	if c.Executor.MouseMoveStepMs < 0 {
		add("executor.mouse_move_step_ms must not be negative (got %d)", c.Executor.MouseMoveStepMs)
	}
	if c.Executor.KeystrokeDelayMs < 0 {
		add("executor.keystroke_delay_ms must not be negative (got %d)", c.Executor.KeystrokeDelayMs)
	}

	if strings.TrimSpace(c.Vision.Language) == "" {
		add("vision.language must be set")
	}
	if c.Vision.MaxConcurrent <= 0 {
		add("vision.max_concurrent must be positive (got %d)", c.Vision.MaxConcurrent)
	}
	if c.Vision.CacheTTLMs <= 0 {
		add("vision.cache_ttl_ms must be positive (got %d)", c.Vision.CacheTTLMs)
	}

	if c.Telemetry.BatchSize <= 0 {
		add("telemetry.batch_size must be positive (got %d)", c.Telemetry.BatchSize)
	}
	if c.Telemetry.FlushIntervalMs <= 0 {
		add("telemetry.flush_interval_ms must be positive (got %d)", c.Telemetry.FlushIntervalMs)
	}
	if c.Telemetry.RetentionDays <= 0 {
		add("telemetry.retention_days must be positive (got %d)", c.Telemetry.RetentionDays)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration:\n  " + strings.Join(problems, "\n  "))
}
