// types.go — Playback run model: per-step results, run results, progress.
package playback

import (
	"time"

	"github.com/replaydeck/replaydeck/internal/decision"
	"github.com/replaydeck/replaydeck/internal/telemetry"
)

// Controller states.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
)

// Conditional-click termination reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
	// ReasonCompleted is reserved for finite known-match sets.
	ReasonCompleted = "completed"
)

// StepResult records one executed step.
type StepResult struct {
	StepID      string             `json:"step_id"`
	StepIndex   int                `json:"step_index"`
	RowIndex    int                `json:"row_index"`
	Event       string             `json:"event"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	DurationMs  int64              `json:"duration_ms"`
	Decision    *decision.Result   `json:"decision,omitempty"`
	Conditional *ConditionalResult `json:"conditional,omitempty"`
}

// ConditionalResult is the outcome of a conditional-click loop.
type ConditionalResult struct {
	Success      bool     `json:"success"`
	Reason       string   `json:"reason"`
	ClickCount   int      `json:"click_count"`
	ElapsedMs    int64    `json:"elapsed_ms"`
	MatchesFound []string `json:"matches_found,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// RunResult is the full outcome of one playback run.
type RunResult struct {
	RunID       string                `json:"run_id"`
	RecordingID string                `json:"recording_id"`
	StartedAt   time.Time             `json:"started_at"`
	EndedAt     time.Time             `json:"ended_at"`
	Steps       []StepResult          `json:"steps"`
	RowsPlayed  int                   `json:"rows_played"`
	PassCount   int                   `json:"pass_count"`
	FailCount   int                   `json:"fail_count"`
	Stopped     bool                  `json:"stopped,omitempty"`
	Summary     *telemetry.RunSummary `json:"summary,omitempty"`
}

// Progress is emitted after each step.
type Progress struct {
	RunID      string `json:"run_id"`
	RowIndex   int    `json:"row_index"`
	StepIndex  int    `json:"step_index"`
	TotalSteps int    `json:"total_steps"`
	StepID     string `json:"step_id"`
	Success    bool   `json:"success"`
}

// Options tunes one run.
type Options struct {
	RunID       string // generated when empty
	StopOnError bool
	CSVStrict   bool
	CSVDefault  string
	CSVTrim     bool
}
