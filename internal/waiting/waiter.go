// waiter.go — Auto-waiting actionability gate.
// Polls element state until every required condition holds or the timeout
// elapses. Returns the latest snapshot with the first failing condition.
package waiting

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/logging"
)

// FailureReason names the first condition that kept the element
// non-actionable.
type FailureReason string

const (
	ReasonTimeout         FailureReason = "timeout"
	ReasonDetached        FailureReason = "detached"
	ReasonHidden          FailureReason = "hidden"
	ReasonDisabled        FailureReason = "disabled"
	ReasonUnstable        FailureReason = "unstable"
	ReasonNotEditable     FailureReason = "not_editable"
	ReasonCovered         FailureReason = "covered"
	ReasonOutsideViewport FailureReason = "outside_viewport"
	ReasonNodeNotFound    FailureReason = "node_not_found"
)

// Requirements selects which actionability conditions to wait for.
// Attachment is always required.
type Requirements struct {
	Timeout               time.Duration
	Visible               bool
	Enabled               bool
	Stable                bool
	Editable              bool
	ReceivesPointerEvents bool
	InViewport            bool
}

// DefaultRequirements is the gate used before pointer actions.
func DefaultRequirements() Requirements {
	return Requirements{Visible: true, Enabled: true, Stable: true}
}

// State is one actionability snapshot.
type State struct {
	Attached              bool          `json:"attached"`
	Visible               bool          `json:"visible"`
	Enabled               bool          `json:"enabled"`
	Stable                bool          `json:"stable"`
	Editable              bool          `json:"editable"`
	ReceivesPointerEvents bool          `json:"receives_pointer_events"`
	InViewport            bool          `json:"in_viewport"`
	Box                   *browser.Rect `json:"box,omitempty"`
}

// Result is the gate's outcome.
type Result struct {
	Success       bool          `json:"success"`
	State         State         `json:"state"`
	WaitedMs      int64         `json:"waited_ms"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
}

// Options tunes the waiter.
type Options struct {
	Timeout            time.Duration
	PollingInterval    time.Duration
	StabilityThreshold time.Duration
}

// Waiter polls actionability over the browser-control layer.
type Waiter struct {
	sessions  *browser.Sessions
	logger    *slog.Logger
	tracker   *stabilityTracker
	timeout   time.Duration
	interval  time.Duration
	threshold time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter creates an actionability gate.
func NewWaiter(sessions *browser.Sessions, opts Options, logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = 100 * time.Millisecond
	}
	if opts.StabilityThreshold <= 0 {
		opts.StabilityThreshold = 100 * time.Millisecond
	}
	return &Waiter{
		sessions:  sessions,
		logger:    logging.WithComponent(logger, "waiting"),
		tracker:   newStabilityTracker(),
		timeout:   opts.Timeout,
		interval:  opts.PollingInterval,
		threshold: opts.StabilityThreshold,
		now:       time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
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

// WaitForActionable polls until every required condition holds or the
// timeout elapses.
func (w *Waiter) WaitForActionable(ctx context.Context, tab browser.TabID, node browser.NodeID, req Requirements) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = w.timeout
	}
	start := w.now()
	everAttached := false

	for {
		state, reason := w.probe(ctx, tab, node, req, everAttached)
		if state.Attached {
			everAttached = true
		}
		waited := w.now().Sub(start)

		if reason == "" {
			return Result{Success: true, State: state, WaitedMs: waited.Milliseconds()}
		}
		if waited+w.interval > timeout {
			if !state.Attached {
				w.tracker.forget(tab, node)
			}
			return Result{Success: false, State: state, WaitedMs: waited.Milliseconds(), FailureReason: reason}
		}
		if err := w.sleep(ctx, w.interval); err != nil {
			return Result{Success: false, State: state, WaitedMs: w.now().Sub(start).Milliseconds(), FailureReason: reason}
		}
	}
}

// probe takes one actionability snapshot and returns the first failing
// required condition.
func (w *Waiter) probe(ctx context.Context, tab browser.TabID, node browser.NodeID, req Requirements, everAttached bool) (State, FailureReason) {
	session := w.sessions.Session(tab)
	state := State{}

	desc, err := session.DescribeNode(ctx, node)
	if err != nil {
		if everAttached {
			return state, ReasonDetached
		}
		return state, ReasonNodeNotFound
	}
	state.Attached = true

	box, boxErr := session.GetBoxModel(ctx, node)
	if boxErr == nil {
		state.Box = box
	}

	style, _ := session.GetComputedStyle(ctx, node)
	state.Visible = isVisible(box, style)
	state.Enabled = isEnabled(desc)
	state.Editable = isEditable(desc)

	if box != nil {
		state.Stable = w.tracker.observe(tab, node, *box, w.now(), w.threshold)
		if metrics, err := session.GetLayoutMetrics(ctx); err == nil {
			state.InViewport = inViewport(*box, *metrics)
		}
		if req.ReceivesPointerEvents {
			center := box.Center()
			if top, err := session.GetNodeForLocation(ctx, center.X, center.Y); err == nil {
				state.ReceivesPointerEvents = top == node
			}
		}
	}

	switch {
	case req.Visible && !state.Visible:
		return state, ReasonHidden
	case req.Enabled && !state.Enabled:
		return state, ReasonDisabled
	case req.Stable && !state.Stable:
		return state, ReasonUnstable
	case req.Editable && !state.Editable:
		return state, ReasonNotEditable
	case req.ReceivesPointerEvents && !state.ReceivesPointerEvents:
		return state, ReasonCovered
	case req.InViewport && !state.InViewport:
		return state, ReasonOutsideViewport
	}
	return state, ""
}

// ScrollIntoViewIfNeeded scrolls the node into the layout viewport when its
// box is not already inside it. Used as a prelude to actions.
func (w *Waiter) ScrollIntoViewIfNeeded(ctx context.Context, tab browser.TabID, node browser.NodeID) error {
	session := w.sessions.Session(tab)
	box, err := session.GetBoxModel(ctx, node)
	if err != nil {
		return err
	}
	metrics, err := session.GetLayoutMetrics(ctx)
	if err != nil {
		return err
	}
	if inViewport(*box, *metrics) {
		return nil
	}
	return session.ScrollIntoView(ctx, node)
}

func isVisible(box *browser.Rect, style map[string]string) bool {
	if box == nil || box.Area() <= 0 {
		return false
	}
	if style == nil {
		return true
	}
	if strings.EqualFold(style["display"], "none") {
		return false
	}
	if strings.EqualFold(style["visibility"], "hidden") {
		return false
	}
	if raw, ok := style["opacity"]; ok {
		if opacity, err := strconv.ParseFloat(raw, 64); err == nil && opacity <= 0 {
			return false
		}
	}
	return true
}

func isEnabled(desc *browser.NodeDescription) bool {
	if _, disabled := desc.Attributes["disabled"]; disabled {
		return false
	}
	return !strings.EqualFold(desc.Attributes["aria-disabled"], "true")
}

func isEditable(desc *browser.NodeDescription) bool {
	tag := strings.ToLower(desc.Tag)
	if tag == "input" || tag == "textarea" || tag == "select" {
		if _, readonly := desc.Attributes["readonly"]; readonly {
			return false
		}
		return isEnabled(desc)
	}
	if value, ok := desc.Attributes["contenteditable"]; ok {
		return value == "" || strings.EqualFold(value, "true")
	}
	return false
}

func inViewport(box browser.Rect, metrics browser.LayoutMetrics) bool {
	return box.X >= 0 && box.Y >= 0 &&
		box.X+box.Width <= metrics.ViewportWidth &&
		box.Y+box.Height <= metrics.ViewportHeight
}
