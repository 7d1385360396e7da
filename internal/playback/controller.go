// controller.go — Playback controller.
// Drives a recording over its CSV rows: row 0 plays every step, later rows
// start at the loop start index. Steps run strictly sequentially; pause,
// resume, and stop act between steps.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/csvmap"
	"github.com/replaydeck/replaydeck/internal/decision"
	"github.com/replaydeck/replaydeck/internal/executor"
	"github.com/replaydeck/replaydeck/internal/locator"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/recording"
	"github.com/replaydeck/replaydeck/internal/telemetry"
	"github.com/replaydeck/replaydeck/internal/vision"
)

// Controller replays recordings against a live tab.
type Controller struct {
	engine   *decision.Engine
	exec     *executor.Executor
	vision   *vision.Service
	ax       *ax.Service
	sessions *browser.Sessions
	tele     *telemetry.Logger
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	pauseCh  chan struct{} // closed to resume
	stopping bool

	progress func(Progress)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController wires a playback controller. tele and progress may be nil.
func NewController(
	engine *decision.Engine,
	exec *executor.Executor,
	visionSvc *vision.Service,
	axSvc *ax.Service,
	sessions *browser.Sessions,
	tele *telemetry.Logger,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		engine:   engine,
		exec:     exec,
		vision:   visionSvc,
		ax:       axSvc,
		sessions: sessions,
		tele:     tele,
		logger:   logging.WithComponent(logger, "playback"),
		state:    StateIdle,
		now:      time.Now,
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

// OnProgress registers the per-step progress callback.
func (c *Controller) OnProgress(fn func(Progress)) {
	c.mu.Lock()
	c.progress = fn
	c.mu.Unlock()
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pause suspends the run before the next step.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.state = StatePaused
		c.pauseCh = make(chan struct{})
	}
}

// Resume continues a paused run.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePaused {
		c.state = StateRunning
		close(c.pauseCh)
		c.pauseCh = nil
	}
}

// Stop finishes the current step, then ends the run.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning || c.state == StatePaused {
		c.stopping = true
		c.state = StateStopping
		if c.pauseCh != nil {
			close(c.pauseCh)
			c.pauseCh = nil
		}
	}
}

// Run replays the recording, once per CSV row (or once with no CSV).
func (c *Controller) Run(ctx context.Context, tab browser.TabID, rec *recording.Recording, table *csvmap.Table, opts Options) (*RunResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("recording not playable: %w", err)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return nil, fmt.Errorf("playback busy: controller is %s", state)
	}
	c.state = StateRunning
	c.stopping = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.stopping = false
		c.mu.Unlock()
	}()

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if c.tele != nil {
		c.tele.StartRun(runID)
	}

	result := &RunResult{
		RunID:       runID,
		RecordingID: rec.ID,
		StartedAt:   c.now(),
	}

	var mapper *csvmap.Mapper
	rows := 1
	if table != nil && len(table.Rows) > 0 {
		mapper = csvmap.New(table, csvmap.Options{
			Strict:  opts.CSVStrict,
			Default: opts.CSVDefault,
			Trim:    opts.CSVTrim,
		})
		rows = mapper.RowCount()
	}

	domain := domainOf(rec.URL)

rowLoop:
	for row := 0; row < rows; row++ {
		startIndex := 0
		if row > 0 {
			startIndex = rec.LoopStartIndex
		}

		for index := startIndex; index < len(rec.Steps); index++ {
			if stopped := c.awaitResumable(ctx); stopped {
				result.Stopped = true
				break rowLoop
			}

			stepResult := c.runStep(ctx, tab, rec, rec.Steps[index], index, row, mapper, runID, domain)
			result.Steps = append(result.Steps, stepResult)
			if stepResult.Success {
				result.PassCount++
			} else {
				result.FailCount++
			}

			c.emitProgress(Progress{
				RunID:      runID,
				RowIndex:   row,
				StepIndex:  index,
				TotalSteps: len(rec.Steps),
				StepID:     stepResult.StepID,
				Success:    stepResult.Success,
			})

			if !stepResult.Success && opts.StopOnError {
				c.logger.Warn("run aborted on step failure",
					logging.FieldRunID, runID,
					logging.FieldStepIndex, index,
					"error", stepResult.Error)
				break rowLoop
			}
		}
		result.RowsPlayed++
	}

	result.EndedAt = c.now()
	if c.tele != nil {
		result.Summary = c.tele.EndRun(runID)
	}
	return result, nil
}

// awaitResumable blocks while paused and reports whether the run should
// stop instead of executing the next step.
func (c *Controller) awaitResumable(ctx context.Context) bool {
	for {
		c.mu.Lock()
		if c.stopping || ctx.Err() != nil {
			c.mu.Unlock()
			return true
		}
		if c.state != StatePaused {
			c.mu.Unlock()
			return false
		}
		pauseCh := c.pauseCh
		c.mu.Unlock()

		select {
		case <-pauseCh:
		case <-ctx.Done():
			return true
		}
	}
}

func (c *Controller) runStep(
	ctx context.Context,
	tab browser.TabID,
	rec *recording.Recording,
	step recording.Step,
	index, row int,
	mapper *csvmap.Mapper,
	runID, domain string,
) StepResult {
	start := c.now()
	stepResult := StepResult{
		StepID:    step.ID,
		StepIndex: index,
		RowIndex:  row,
		Event:     step.Event,
	}

	if mapper != nil {
		substituted, _, err := mapper.SubstituteStep(step, row)
		if err != nil {
			stepResult.Error = err.Error()
			stepResult.DurationMs = c.now().Sub(start).Milliseconds()
			return stepResult
		}
		step = substituted
	}

	// Pre-step delay: per-step override wins over the recording-wide delay.
	delay := time.Duration(rec.GlobalDelayMs) * time.Millisecond
	if step.DelaySeconds != nil {
		delay = time.Duration(*step.DelaySeconds * float64(time.Second))
	}
	if err := c.sleep(ctx, delay); err != nil {
		stepResult.Error = err.Error()
		return stepResult
	}

	switch step.Event {
	case recording.EventOpen:
		if err := c.sessions.Session(tab).Navigate(ctx, step.URL); err != nil {
			stepResult.Error = fmt.Sprintf("navigate: %v", err)
		} else {
			stepResult.Success = true
		}

	case recording.EventConditionalClick:
		conditional := c.runConditional(ctx, tab, *step.Conditional)
		stepResult.Conditional = &conditional
		stepResult.Success = conditional.Success
		stepResult.Error = conditional.ErrorMessage

	default:
		decisionResult := c.engine.ExecuteStep(ctx, decision.Request{
			Tab:        tab,
			Chain:      chainForStep(step),
			Action:     actionForStep(step),
			Value:      valueForStep(step),
			RunID:      runID,
			StepIndex:  index,
			PageDomain: domain,
		})
		stepResult.Decision = &decisionResult
		stepResult.Success = decisionResult.Success
		stepResult.Error = decisionResult.Error
	}

	stepResult.DurationMs = c.now().Sub(start).Milliseconds()
	return stepResult
}

func (c *Controller) emitProgress(progress Progress) {
	c.mu.Lock()
	fn := c.progress
	c.mu.Unlock()
	if fn != nil {
		fn(progress)
	}
}

// chainForStep returns the step's recorded fallback chain, or synthesizes
// one from the step's legacy fields when no chain was recorded.
func chainForStep(step recording.Step) locator.Chain {
	if step.Chain != nil && len(step.Chain.Strategies) > 0 {
		return *step.Chain
	}

	var strategies []locator.Strategy
	if step.Selector != "" {
		strategies = append(strategies, locator.Strategy{
			Type: locator.TypeDOMCSS, Selector: step.Selector, Confidence: 0.75,
		})
	}
	if step.XPath != "" {
		strategies = append(strategies, locator.Strategy{
			Type:       locator.TypeCSSPath,
			Metadata:   map[string]string{locator.MetaXPath: step.XPath},
			Confidence: 0.65,
		})
	}
	target := step.VisionTarget
	if target == "" {
		target = step.OCRText
	}
	if target != "" {
		strategies = append(strategies, locator.Strategy{
			Type:       locator.TypeVisionOCR,
			Metadata:   map[string]string{locator.MetaTargetText: target},
			Confidence: 0.70,
		})
	}
	if point := step.ClickPoint(); point != nil {
		strategies = append(strategies, locator.Strategy{
			Type: locator.TypeCoordinates, Point: point, Confidence: 0.60,
		})
	}
	return locator.Chain{Strategies: strategies}
}

func actionForStep(step recording.Step) string {
	switch step.Event {
	case recording.EventInput:
		return executor.ActionType
	case recording.EventDropdown:
		return executor.ActionSelect
	default:
		return executor.ActionClick
	}
}

func valueForStep(step recording.Step) string {
	switch step.Event {
	case recording.EventInput:
		if step.InputText != "" {
			return step.InputText
		}
		return step.Value
	case recording.EventDropdown:
		if step.OptionText != "" {
			return step.OptionText
		}
		return step.Value
	default:
		return step.Value
	}
}

func domainOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Host
}
