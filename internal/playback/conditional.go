// conditional.go — Conditional-click loop.
// Repeatedly scans the page for target text and interacts with every match
// until an inactivity timeout elapses. The timeout window measures time
// since the last click, not total runtime.
package playback

import (
	"context"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/executor"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/recording"
)

const conditionalScrollDelta = 400

func (c *Controller) runConditional(ctx context.Context, tab browser.TabID, cfg recording.ConditionalConfig) ConditionalResult {
	result := ConditionalResult{}
	if !cfg.Enabled {
		result.Success = true
		result.Reason = ReasonTimeout
		return result
	}
	if err := cfg.Validate(); err != nil {
		result.Reason = ReasonError
		result.ErrorMessage = err.Error()
		return result
	}

	start := c.now()
	lastActivity := start
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	pollInterval := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	matchesFound := map[string]bool{}

	finish := func(reason string, success bool, errMessage string) ConditionalResult {
		result.Reason = reason
		result.Success = success
		result.ErrorMessage = errMessage
		result.ElapsedMs = c.now().Sub(start).Milliseconds()
		for term := range matchesFound {
			result.MatchesFound = append(result.MatchesFound, term)
		}
		return result
	}

	for {
		if ctx.Err() != nil {
			return finish(ReasonCancelled, false, "")
		}
		// Inactivity window: since the last click, or since start with
		// zero clicks. Zero matches is still successful completion.
		if c.now().Sub(lastActivity) >= timeout {
			return finish(ReasonTimeout, true, "")
		}

		// Fresh pixels every poll.
		c.vision.InvalidateCache(tab)
		c.ax.ClearCache(tab)

		term, match, err := c.vision.FindAnyText(ctx, tab, cfg.SearchTerms)
		if err != nil {
			return finish(ReasonError, false, err.Error())
		}

		if match != nil {
			if err := c.interact(ctx, tab, cfg, match.ClickPoint); err != nil {
				return finish(ReasonError, false, err.Error())
			}
			result.ClickCount++
			matchesFound[term] = true
			lastActivity = c.now()
			c.logger.Debug("conditional match handled",
				logging.FieldStrategy, "vision_ocr",
				"term", term,
				"clicks", result.ClickCount)
		}

		if err := c.sleep(ctx, pollInterval); err != nil {
			return finish(ReasonCancelled, false, "")
		}
	}
}

func (c *Controller) interact(ctx context.Context, tab browser.TabID, cfg recording.ConditionalConfig, point browser.Point) error {
	switch cfg.InteractionType {
	case recording.InteractScroll:
		outcome := c.exec.Execute(ctx, tab, executor.Request{
			Action: executor.ActionScroll,
			Point:  &point,
			DeltaY: conditionalScrollDelta,
		})
		if !outcome.Success {
			return contextualError("scroll", outcome.Error)
		}
		return nil

	default: // click, and click-then-type
		outcome := c.exec.Execute(ctx, tab, executor.Request{
			Action: executor.ActionClick,
			Point:  &point,
		})
		if !outcome.Success {
			return contextualError("click", outcome.Error)
		}
		if cfg.InteractionType == recording.InteractType {
			// The click focused the target; insert the text at focus.
			if err := c.sessions.Session(tab).InsertText(ctx, cfg.TypeText); err != nil {
				return contextualError("type", err.Error())
			}
		}
		return nil
	}
}

type conditionalError struct {
	op      string
	message string
}

func (e *conditionalError) Error() string {
	return e.op + ": " + e.message
}

func contextualError(op, message string) error {
	return &conditionalError{op: op, message: message}
}
