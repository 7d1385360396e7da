// types.go — Telemetry event model: per-step strategy outcomes and run
// summaries.
package telemetry

import "time"

// StrategyEvaluation is one strategy's outcome within a step, in the order
// evaluations were produced.
type StrategyEvaluation struct {
	Type       string  `json:"type"`
	Found      bool    `json:"found"`
	Confidence float64 `json:"confidence"`
	DurationMs int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Event records one run-scoped action: the full evaluation trace, the
// winning strategy, and the outcome.
type Event struct {
	ID                  string               `json:"id"`
	RunID               string               `json:"run_id"`
	StepIndex           int                  `json:"step_index"`
	ActionType          string               `json:"action_type"`
	Timestamp           time.Time            `json:"timestamp"`
	Evaluations         []StrategyEvaluation `json:"evaluations,omitempty"`
	UsedStrategy        string               `json:"used_strategy,omitempty"`
	EffectiveConfidence float64              `json:"effective_confidence"`
	Success             bool                 `json:"success"`
	DurationMs          int64                `json:"duration_ms"`
	PageDomain          string               `json:"page_domain,omitempty"`
}

// RunSummary is derived once when a run ends.
type RunSummary struct {
	RunID             string         `json:"run_id"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           time.Time      `json:"ended_at"`
	PassCount         int            `json:"pass_count"`
	FailCount         int            `json:"fail_count"`
	StrategyUsage     map[string]int `json:"strategy_usage,omitempty"`
	AvgStepDurationMs float64        `json:"avg_step_duration_ms"`
	Domains           []string       `json:"domains,omitempty"`
}

// StrategyMetrics aggregates one strategy's performance over a time range.
type StrategyMetrics struct {
	Type             string  `json:"type"`
	TotalEvaluations int     `json:"total_evaluations"`
	TimesFound       int     `json:"times_found"`
	TimesUsed        int     `json:"times_used"`
	TimesSucceeded   int     `json:"times_succeeded"`
	AvgConfidence    float64 `json:"avg_confidence"`
	AvgEvalTimeMs    float64 `json:"avg_eval_time_ms"`
	SuccessRate      float64 `json:"success_rate"`
	FindRate         float64 `json:"find_rate"`
}

// Query filters stored events.
type Query struct {
	RunID        string
	StrategyType string // matches the used strategy
	Success      *bool
	From, To     time.Time
	Limit        int
	Offset       int
}

// ExportDocument is the JSON export shape.
type ExportDocument struct {
	ExportedAt time.Time    `json:"exported_at"`
	EventCount int          `json:"event_count"`
	Events     []Event      `json:"events"`
	Runs       []RunSummary `json:"runs"`
}
