// engine.go — Playback decision engine.
// Evaluates every chain strategy in parallel, picks the best weighted
// survivor, gates it through auto-waiting, dispatches the action, and
// retries the whole step when the executor fails. Never mutates the chain;
// never throws to its caller for a single-step failure.
package decision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/executor"
	"github.com/replaydeck/replaydeck/internal/locator"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/telemetry"
	"github.com/replaydeck/replaydeck/internal/waiting"
)

// StrategyEvaluator resolves one strategy against a live tab.
// *locator.Registry is the production implementation.
type StrategyEvaluator interface {
	Evaluate(ctx context.Context, tab browser.TabID, strategy locator.Strategy) locator.Evaluation
}

// Gate is the actionability check. *waiting.Waiter is the production
// implementation.
type Gate interface {
	WaitForActionable(ctx context.Context, tab browser.TabID, node browser.NodeID, req waiting.Requirements) waiting.Result
	ScrollIntoViewIfNeeded(ctx context.Context, tab browser.TabID, node browser.NodeID) error
}

// ActionRunner dispatches input. *executor.Executor is the production
// implementation.
type ActionRunner interface {
	Execute(ctx context.Context, tab browser.TabID, req executor.Request) executor.Outcome
}

// Sink receives telemetry. *telemetry.Logger is the production
// implementation; nil disables emission.
type Sink interface {
	StartAction(runID string, stepIndex int, actionType string) telemetry.ActionHandle
	EndAction(handle telemetry.ActionHandle, outcome telemetry.ActionOutcome)
}

// Failure reasons surfaced on Result.
const (
	FailureNoStrategy     = "no_strategy_above_threshold"
	FailureExecutorFailed = "executor_failed"
)

// Options tunes the engine. Thresholds are configuration, not data.
type Options struct {
	MinConfidence   float64
	StrategyTimeout time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	Sequential      bool // debugging fallback; evaluation is parallel by default
	AutoWaitBudget  time.Duration
	StrictGating    bool // abort the step when auto-waiting fails
}

func (o Options) withDefaults() Options {
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.5
	}
	if o.StrategyTimeout <= 0 {
		o.StrategyTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 2
	}
	if o.AutoWaitBudget <= 0 {
		o.AutoWaitBudget = 5 * time.Second
	}
	return o
}

// Request is one step's execution input.
type Request struct {
	Tab        browser.TabID
	Chain      locator.Chain
	Action     string // executor action type
	Value      string
	Modifiers  int
	DeltaY     float64
	RunID      string
	StepIndex  int
	PageDomain string
}

// Result is the engine's per-step outcome with the full evaluation trace.
type Result struct {
	Success             bool                 `json:"success"`
	UsedStrategy        locator.Type         `json:"used_strategy,omitempty"`
	EffectiveConfidence float64              `json:"effective_confidence"`
	Evaluations         []locator.Evaluation `json:"evaluations,omitempty"`
	Attempts            int                  `json:"attempts"`
	Duration            time.Duration        `json:"duration_ns"`
	FailureReason       string               `json:"failure_reason,omitempty"`
	Error               string               `json:"error,omitempty"`
	Waiting             *waiting.Result      `json:"waiting,omitempty"`
}

// Engine selects and executes the best locator strategy per step.
type Engine struct {
	evaluator StrategyEvaluator
	gate      Gate
	runner    ActionRunner
	sink      Sink
	opts      Options
	logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires the engine over its collaborators. sink may be nil.
func NewEngine(evaluator StrategyEvaluator, gate Gate, runner ActionRunner, sink Sink, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		evaluator: evaluator,
		gate:      gate,
		runner:    runner,
		sink:      sink,
		opts:      opts.withDefaults(),
		logger:    logging.WithComponent(logger, "decision"),
		sleep: func(ctx context.Context, d time.Duration) error {
			if d <= 0 {
				return nil
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// ExecuteStep runs one step through evaluate → select → wait → execute,
// re-evaluating the whole chain on executor failure (the page may have
// changed between attempts).
func (e *Engine) ExecuteStep(ctx context.Context, req Request) Result {
	start := time.Now()
	var handle telemetry.ActionHandle
	if e.sink != nil && req.RunID != "" {
		handle = e.sink.StartAction(req.RunID, req.StepIndex, req.Action)
	}

	result := e.executeWithRetries(ctx, req)
	result.Duration = time.Since(start)

	if e.sink != nil && req.RunID != "" {
		e.sink.EndAction(handle, telemetry.ActionOutcome{
			Evaluations:         toTelemetryTrace(result.Evaluations),
			UsedStrategy:        string(result.UsedStrategy),
			EffectiveConfidence: result.EffectiveConfidence,
			Success:             result.Success,
			PageDomain:          req.PageDomain,
		})
	}
	return result
}

func (e *Engine) executeWithRetries(ctx context.Context, req Request) Result {
	attempts := e.opts.MaxRetries + 1
	var last Result

	for attempt := 1; attempt <= attempts; attempt++ {
		last = e.executeOnce(ctx, req)
		last.Attempts = attempt
		if last.Success || last.FailureReason == FailureNoStrategy {
			return last
		}
		if attempt < attempts {
			e.logger.Debug("step retry after executor failure",
				logging.FieldStepIndex, req.StepIndex,
				"attempt", attempt,
				"error", last.Error)
			if err := e.sleep(ctx, e.opts.RetryDelay); err != nil {
				return last
			}
		}
	}
	return last
}

func (e *Engine) executeOnce(ctx context.Context, req Request) Result {
	strategies := req.Chain.Strategies
	if len(strategies) > locator.MaxStrategies {
		strategies = strategies[:locator.MaxStrategies]
	}

	evaluations := e.evaluateAll(ctx, req.Tab, strategies)
	result := Result{Evaluations: evaluations}

	selected, weighted := selectBest(evaluations, e.opts.MinConfidence)
	if selected < 0 {
		result.FailureReason = FailureNoStrategy
		result.Error = fmt.Sprintf("no strategy above confidence %v", e.opts.MinConfidence)
		return result
	}

	winner := evaluations[selected]
	result.UsedStrategy = winner.Type
	result.EffectiveConfidence = weighted

	// Soft actionability gate: a waiting failure is logged but the action
	// is still attempted unless strict gating is on.
	if winner.BackendNodeID != 0 {
		if err := e.gate.ScrollIntoViewIfNeeded(ctx, req.Tab, winner.BackendNodeID); err != nil {
			e.logger.Debug("scroll into view failed", "error", err)
		}
		waitResult := e.gate.WaitForActionable(ctx, req.Tab, winner.BackendNodeID, waiting.Requirements{
			Timeout: e.opts.AutoWaitBudget,
			Visible: true,
			Enabled: true,
			Stable:  true,
		})
		result.Waiting = &waitResult
		if !waitResult.Success {
			e.logger.Warn("element not actionable; attempting action anyway",
				logging.FieldStrategy, string(winner.Type),
				"reason", string(waitResult.FailureReason))
			if e.opts.StrictGating {
				result.FailureReason = string(waitResult.FailureReason)
				result.Error = fmt.Sprintf("element not actionable: %s", waitResult.FailureReason)
				return result
			}
		}
	}

	outcome := e.runner.Execute(ctx, req.Tab, executor.Request{
		Action:    req.Action,
		Point:     winner.ClickPoint,
		Node:      winner.BackendNodeID,
		Value:     req.Value,
		Modifiers: req.Modifiers,
		DeltaY:    req.DeltaY,
	})
	if !outcome.Success {
		result.FailureReason = FailureExecutorFailed
		result.Error = outcome.Error
		return result
	}

	result.Success = true
	return result
}

// evaluateAll runs every strategy with a per-strategy timeout. Results keep
// chain order regardless of completion order. An error inside one strategy
// becomes a not-found result; it never aborts peers.
func (e *Engine) evaluateAll(ctx context.Context, tab browser.TabID, strategies []locator.Strategy) []locator.Evaluation {
	evaluations := make([]locator.Evaluation, len(strategies))

	if e.opts.Sequential {
		for i, strategy := range strategies {
			evaluations[i] = e.evaluateOne(ctx, tab, strategy)
		}
		return evaluations
	}

	var wg sync.WaitGroup
	for i, strategy := range strategies {
		wg.Add(1)
		go func(index int, s locator.Strategy) {
			defer wg.Done()
			evaluations[index] = e.evaluateOne(ctx, tab, s)
		}(i, strategy)
	}
	wg.Wait()
	return evaluations
}

// evaluateOne races the evaluator against the per-strategy timeout. The
// timeout is enforced here — it needs no cooperation from the strategy.
func (e *Engine) evaluateOne(ctx context.Context, tab browser.TabID, strategy locator.Strategy) locator.Evaluation {
	evalCtx, cancel := context.WithTimeout(ctx, e.opts.StrategyTimeout)
	defer cancel()

	done := make(chan locator.Evaluation, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				eval := locator.Evaluation{Type: strategy.Type, Duration: time.Since(start)}
				eval.Error = fmt.Sprintf("strategy panicked: %v", r)
				done <- eval
			}
		}()
		done <- e.evaluator.Evaluate(evalCtx, tab, strategy)
	}()

	select {
	case eval := <-done:
		return eval
	case <-evalCtx.Done():
		return locator.Evaluation{
			Type:     strategy.Type,
			Duration: time.Since(start),
			Error:    fmt.Sprintf("strategy evaluation timed out after %s", e.opts.StrategyTimeout),
		}
	}
}

// selectBest picks the argmax of baseWeight × confidence among survivors.
// Ties break by original chain order: a later strategy must be strictly
// better to displace an earlier one.
func selectBest(evaluations []locator.Evaluation, minConfidence float64) (int, float64) {
	best := -1
	bestWeighted := 0.0
	for i, eval := range evaluations {
		if !eval.Found || eval.Confidence < minConfidence {
			continue
		}
		weighted := locator.BaseWeight(eval.Type) * eval.Confidence
		if best < 0 || weighted > bestWeighted {
			best = i
			bestWeighted = weighted
		}
	}
	return best, bestWeighted
}

func toTelemetryTrace(evaluations []locator.Evaluation) []telemetry.StrategyEvaluation {
	trace := make([]telemetry.StrategyEvaluation, 0, len(evaluations))
	for _, eval := range evaluations {
		trace = append(trace, telemetry.StrategyEvaluation{
			Type:       string(eval.Type),
			Found:      eval.Found,
			Confidence: eval.Confidence,
			DurationMs: eval.Duration.Milliseconds(),
			Error:      eval.Error,
		})
	}
	return trace
}
