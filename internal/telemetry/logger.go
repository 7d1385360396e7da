// logger.go — Buffered telemetry sink.
// Events buffer in memory and flush as a batch when the buffer fills or the
// flush interval expires. Persistence errors are swallowed and the batch is
// re-queued; telemetry never takes a run down.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/util"
)

// LoggerOptions tunes buffering.
type LoggerOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	RetentionDays int
}

// Logger is the buffered event sink. Lifecycle:
// StartRun → {StartAction, EndAction}* → EndRun → RunSummary.
type Logger struct {
	store *Store
	log   *slog.Logger
	opts  LoggerOptions

	mu     sync.Mutex
	buffer []Event
	runs   map[string]*runState

	stopCh chan struct{}
	doneCh chan struct{}

	now func() time.Time
}

type runState struct {
	startedAt     time.Time
	passCount     int
	failCount     int
	strategyUsage map[string]int
	totalDuration int64
	stepCount     int
	domains       map[string]bool
}

// ActionHandle tracks one in-flight action between StartAction and EndAction.
type ActionHandle struct {
	RunID      string
	StepIndex  int
	ActionType string
	StartedAt  time.Time
}

// ActionOutcome carries the completed action's results into EndAction.
type ActionOutcome struct {
	Evaluations         []StrategyEvaluation
	UsedStrategy        string
	EffectiveConfidence float64
	Success             bool
	PageDomain          string
}

// NewLogger creates a buffered telemetry logger over the store.
func NewLogger(store *Store, opts LoggerOptions, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	return &Logger{
		store:  store,
		log:    logging.WithComponent(logger, "telemetry"),
		opts:   opts,
		runs:   make(map[string]*runState),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the periodic flush loop.
func (l *Logger) Start() {
	util.SafeGo(func() {
		ticker := time.NewTicker(l.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Flush(context.Background())
			case <-l.stopCh:
				close(l.doneCh)
				return
			}
		}
	})
}

// Shutdown stops the flush loop and drains the buffer.
func (l *Logger) Shutdown(ctx context.Context) {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
		<-l.doneCh
	}
	l.Flush(ctx)
}

// StartRun begins tallying a run.
func (l *Logger) StartRun(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[runID] = &runState{
		startedAt:     l.now(),
		strategyUsage: make(map[string]int),
		domains:       make(map[string]bool),
	}
}

// StartAction marks the beginning of one step's execution.
func (l *Logger) StartAction(runID string, stepIndex int, actionType string) ActionHandle {
	return ActionHandle{
		RunID:      runID,
		StepIndex:  stepIndex,
		ActionType: actionType,
		StartedAt:  l.now(),
	}
}

// EndAction produces and buffers the event for a completed action.
func (l *Logger) EndAction(handle ActionHandle, outcome ActionOutcome) {
	now := l.now()
	event := Event{
		ID:                  uuid.NewString(),
		RunID:               handle.RunID,
		StepIndex:           handle.StepIndex,
		ActionType:          handle.ActionType,
		Timestamp:           now,
		Evaluations:         outcome.Evaluations,
		UsedStrategy:        outcome.UsedStrategy,
		EffectiveConfidence: outcome.EffectiveConfidence,
		Success:             outcome.Success,
		DurationMs:          now.Sub(handle.StartedAt).Milliseconds(),
		PageDomain:          outcome.PageDomain,
	}

	l.mu.Lock()
	l.buffer = append(l.buffer, event)
	shouldFlush := len(l.buffer) >= l.opts.BatchSize

	if state, ok := l.runs[handle.RunID]; ok {
		if outcome.Success {
			state.passCount++
		} else {
			state.failCount++
		}
		if outcome.UsedStrategy != "" {
			state.strategyUsage[outcome.UsedStrategy]++
		}
		state.totalDuration += event.DurationMs
		state.stepCount++
		if outcome.PageDomain != "" {
			state.domains[outcome.PageDomain] = true
		}
	}
	l.mu.Unlock()

	if shouldFlush {
		l.Flush(context.Background())
	}
}

// EndRun finalizes a run, persists its summary, and returns it.
func (l *Logger) EndRun(runID string) *RunSummary {
	l.mu.Lock()
	state, ok := l.runs[runID]
	delete(l.runs, runID)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	summary := RunSummary{
		RunID:         runID,
		StartedAt:     state.startedAt,
		EndedAt:       l.now(),
		PassCount:     state.passCount,
		FailCount:     state.failCount,
		StrategyUsage: state.strategyUsage,
	}
	if state.stepCount > 0 {
		summary.AvgStepDurationMs = float64(state.totalDuration) / float64(state.stepCount)
	}
	for domain := range state.domains {
		summary.Domains = append(summary.Domains, domain)
	}

	l.Flush(context.Background())
	if err := l.store.SaveRun(context.Background(), summary); err != nil {
		l.log.Warn("run summary persist failed", logging.FieldRunID, runID, "error", err)
	}
	return &summary
}

// Flush writes buffered events to the store. On failure the batch is
// re-queued for the next attempt.
func (l *Logger) Flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.buffer
	l.buffer = nil
	l.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := l.store.InsertEvents(ctx, batch); err != nil {
		l.log.Warn("telemetry flush failed; re-queueing batch",
			"events", len(batch), "error", err)
		l.mu.Lock()
		l.buffer = append(batch, l.buffer...)
		l.mu.Unlock()
	}
}

// PurgeExpired drops events past the retention window.
func (l *Logger) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -l.opts.RetentionDays)
	return l.store.Purge(ctx, cutoff)
}

// BufferedCount reports how many events await flushing.
func (l *Logger) BufferedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}
