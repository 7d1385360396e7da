// executor.go — Action executor: low-level input dispatch.
// Assumes the element already passed the actionability gate. Never retries —
// the decision engine owns retry policy.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/logging"
)

// Action types the executor dispatches.
const (
	ActionClick       = "click"
	ActionDoubleClick = "double_click"
	ActionRightClick  = "right_click"
	ActionType        = "type"
	ActionSelect      = "select"
	ActionHover       = "hover"
	ActionScroll      = "scroll"
	ActionKeyDown     = "keydown"
)

// Request describes one action to perform.
type Request struct {
	Action    string
	Point     *browser.Point // pointer actions
	Node      browser.NodeID // focus/select/type target
	Value     string         // typed text, select value, keydown key name
	Modifiers int
	DeltaY    float64 // scroll
}

// Outcome is the executor's result.
type Outcome struct {
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Options tunes input synthesis.
type Options struct {
	MouseMoveSteps     int           // interpolation steps for simulated motion; 0 disables
	MouseMoveStepDelay time.Duration // per interpolation step
	KeystrokeDelay     time.Duration // between characters
	ClearBeforeType    bool
}

// Executor dispatches input events through the browser-control layer.
type Executor struct {
	sessions *browser.Sessions
	logger   *slog.Logger
	opts     Options

	mu     sync.Mutex
	cursor map[browser.TabID]browser.Point // last known cursor position per tab

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor.
func New(sessions *browser.Sessions, opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		sessions: sessions,
		logger:   logging.WithComponent(logger, "executor"),
		opts:     opts,
		cursor:   make(map[browser.TabID]browser.Point),
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

// Execute performs one action and reports the outcome.
func (e *Executor) Execute(ctx context.Context, tab browser.TabID, req Request) Outcome {
	start := time.Now()
	var err error

	switch req.Action {
	case ActionClick:
		err = e.click(ctx, tab, req, browser.ButtonLeft, 1)
	case ActionDoubleClick:
		err = e.click(ctx, tab, req, browser.ButtonLeft, 2)
	case ActionRightClick:
		err = e.click(ctx, tab, req, browser.ButtonRight, 1)
	case ActionType:
		err = e.typeText(ctx, tab, req)
	case ActionSelect:
		err = e.selectOption(ctx, tab, req)
	case ActionHover:
		err = e.hover(ctx, tab, req)
	case ActionScroll:
		err = e.scroll(ctx, tab, req)
	case ActionKeyDown:
		err = e.keydown(ctx, tab, req)
	default:
		err = fmt.Errorf("unknown action type %q", req.Action)
	}

	outcome := Outcome{Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		outcome.Error = err.Error()
	}
	return outcome
}

func (e *Executor) click(ctx context.Context, tab browser.TabID, req Request, button string, clicks int) error {
	if req.Point == nil {
		return fmt.Errorf("click requires a target point")
	}
	session := e.sessions.Session(tab)
	target := *req.Point

	if err := e.moveCursor(ctx, session, tab, target); err != nil {
		return err
	}

	for count := 1; count <= clicks; count++ {
		press := browser.MouseEvent{
			Type: browser.MousePressed, X: target.X, Y: target.Y,
			Button: button, ClickCount: count, Modifiers: req.Modifiers,
		}
		if err := session.DispatchMouseEvent(ctx, press); err != nil {
			return fmt.Errorf("dispatch mouse press: %w", err)
		}
		release := press
		release.Type = browser.MouseReleased
		if err := session.DispatchMouseEvent(ctx, release); err != nil {
			return fmt.Errorf("dispatch mouse release: %w", err)
		}
	}
	return nil
}

// moveCursor simulates motion from the last known position to target over
// the configured interpolation steps, then records the new position.
func (e *Executor) moveCursor(ctx context.Context, session *browser.Session, tab browser.TabID, target browser.Point) error {
	e.mu.Lock()
	from, known := e.cursor[tab]
	e.mu.Unlock()

	steps := e.opts.MouseMoveSteps
	if known && steps > 0 {
		for i := 1; i <= steps; i++ {
			fraction := float64(i) / float64(steps)
			move := browser.MouseEvent{
				Type: browser.MouseMoved,
				X:    from.X + (target.X-from.X)*fraction,
				Y:    from.Y + (target.Y-from.Y)*fraction,
			}
			if err := session.DispatchMouseEvent(ctx, move); err != nil {
				return fmt.Errorf("dispatch mouse move: %w", err)
			}
			if err := e.sleep(ctx, e.opts.MouseMoveStepDelay); err != nil {
				return err
			}
		}
	} else {
		move := browser.MouseEvent{Type: browser.MouseMoved, X: target.X, Y: target.Y}
		if err := session.DispatchMouseEvent(ctx, move); err != nil {
			return fmt.Errorf("dispatch mouse move: %w", err)
		}
	}

	e.mu.Lock()
	e.cursor[tab] = target
	e.mu.Unlock()
	return nil
}

func (e *Executor) typeText(ctx context.Context, tab browser.TabID, req Request) error {
	if req.Node == 0 {
		return fmt.Errorf("type requires a target node")
	}
	session := e.sessions.Session(tab)

	if err := session.FocusNode(ctx, req.Node); err != nil {
		return fmt.Errorf("focus node: %w", err)
	}

	if e.opts.ClearBeforeType {
		if err := e.clearField(ctx, session); err != nil {
			return err
		}
	}

	for _, r := range req.Value {
		down := browser.KeyEvent{Type: browser.KeyDown, Key: keyNameFor(r), Code: keyCodeFor(r)}
		if err := session.DispatchKeyEvent(ctx, down); err != nil {
			return fmt.Errorf("dispatch key down: %w", err)
		}
		char := browser.KeyEvent{Type: browser.KeyChar, Key: keyNameFor(r), Text: string(r)}
		if err := session.DispatchKeyEvent(ctx, char); err != nil {
			return fmt.Errorf("dispatch char: %w", err)
		}
		up := down
		up.Type = browser.KeyUp
		if err := session.DispatchKeyEvent(ctx, up); err != nil {
			return fmt.Errorf("dispatch key up: %w", err)
		}
		if err := e.sleep(ctx, e.opts.KeystrokeDelay); err != nil {
			return err
		}
	}
	return nil
}

// clearField selects all (Ctrl+A) then deletes.
func (e *Executor) clearField(ctx context.Context, session *browser.Session) error {
	selectAll := []browser.KeyEvent{
		{Type: browser.KeyDown, Key: "a", Code: "KeyA", Modifiers: browser.ModifierCtrl},
		{Type: browser.KeyUp, Key: "a", Code: "KeyA", Modifiers: browser.ModifierCtrl},
		{Type: browser.KeyDown, Key: "Backspace", Code: "Backspace"},
		{Type: browser.KeyUp, Key: "Backspace", Code: "Backspace"},
	}
	for _, event := range selectAll {
		if err := session.DispatchKeyEvent(ctx, event); err != nil {
			return fmt.Errorf("clear field: %w", err)
		}
	}
	return nil
}

func (e *Executor) selectOption(ctx context.Context, tab browser.TabID, req Request) error {
	if req.Node == 0 {
		return fmt.Errorf("select requires a target node")
	}
	session := e.sessions.Session(tab)

	if err := session.FocusNode(ctx, req.Node); err != nil {
		return fmt.Errorf("focus select: %w", err)
	}

	encoded, err := json.Marshal(req.Value)
	if err != nil {
		return fmt.Errorf("encode option value: %w", err)
	}
	script := fmt.Sprintf(
		`this.value = %s; this.dispatchEvent(new Event("change", {bubbles: true}));`,
		encoded,
	)
	if _, err := session.EvaluateOnNode(ctx, req.Node, script); err != nil {
		return fmt.Errorf("set select value: %w", err)
	}
	return nil
}

func (e *Executor) hover(ctx context.Context, tab browser.TabID, req Request) error {
	if req.Point == nil {
		return fmt.Errorf("hover requires a target point")
	}
	return e.moveCursor(ctx, e.sessions.Session(tab), tab, *req.Point)
}

func (e *Executor) scroll(ctx context.Context, tab browser.TabID, req Request) error {
	point := browser.Point{}
	if req.Point != nil {
		point = *req.Point
	}
	event := browser.MouseEvent{
		Type: browser.MouseWheel, X: point.X, Y: point.Y, DeltaY: req.DeltaY,
	}
	if err := e.sessions.Session(tab).DispatchMouseEvent(ctx, event); err != nil {
		return fmt.Errorf("dispatch wheel: %w", err)
	}
	return nil
}

func (e *Executor) keydown(ctx context.Context, tab browser.TabID, req Request) error {
	if req.Value == "" {
		return fmt.Errorf("keydown requires a key name")
	}
	session := e.sessions.Session(tab)

	code := namedKeyCodes[req.Value]
	down := browser.KeyEvent{Type: browser.KeyDown, Key: req.Value, Code: code, Modifiers: req.Modifiers}
	if err := session.DispatchKeyEvent(ctx, down); err != nil {
		return fmt.Errorf("dispatch key down: %w", err)
	}
	up := down
	up.Type = browser.KeyUp
	if err := session.DispatchKeyEvent(ctx, up); err != nil {
		return fmt.Errorf("dispatch key up: %w", err)
	}
	return nil
}
