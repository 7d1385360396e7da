package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/replaydeck/replaydeck/internal/browser"
)

func noSleepExecutor(opts Options) (*Executor, *browser.FakeClient) {
	fake := browser.NewFakeClient()
	fake.AddNode(1, &browser.FakeNode{Desc: browser.NodeDescription{Tag: "input"}})
	fake.AddNode(2, &browser.FakeNode{Desc: browser.NodeDescription{Tag: "select"}})
	exec := New(browser.NewSessions(fake, nil), opts, nil)
	return exec, fake
}

func TestClickDispatchesPressAndRelease(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	outcome := exec.Execute(context.Background(), "tab", Request{
		Action: ActionClick,
		Point:  &browser.Point{X: 100, Y: 200},
	})
	if !outcome.Success {
		t.Fatalf("click failed: %s", outcome.Error)
	}

	// move + press + release
	if len(fake.MouseEvents) != 3 {
		t.Fatalf("expected 3 mouse events, got %d", len(fake.MouseEvents))
	}
	press, release := fake.MouseEvents[1], fake.MouseEvents[2]
	if press.Type != browser.MousePressed || press.Button != browser.ButtonLeft || press.ClickCount != 1 {
		t.Fatalf("press event: %+v", press)
	}
	if release.Type != browser.MouseReleased || release.X != 100 || release.Y != 200 {
		t.Fatalf("release event: %+v", release)
	}
}

func TestDoubleClickIncrementsClickCount(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	outcome := exec.Execute(context.Background(), "tab", Request{
		Action: ActionDoubleClick,
		Point:  &browser.Point{X: 50, Y: 50},
	})
	if !outcome.Success {
		t.Fatalf("double click failed: %s", outcome.Error)
	}

	var clickCounts []int
	for _, ev := range fake.MouseEvents {
		if ev.Type == browser.MousePressed {
			clickCounts = append(clickCounts, ev.ClickCount)
		}
	}
	if len(clickCounts) != 2 || clickCounts[0] != 1 || clickCounts[1] != 2 {
		t.Fatalf("expected click counts [1 2], got %v", clickCounts)
	}
}

func TestRightClickUsesRightButton(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	exec.Execute(context.Background(), "tab", Request{
		Action: ActionRightClick,
		Point:  &browser.Point{X: 10, Y: 10},
	})
	for _, ev := range fake.MouseEvents {
		if ev.Type == browser.MousePressed && ev.Button != browser.ButtonRight {
			t.Fatalf("expected right button, got %+v", ev)
		}
	}
}

func TestMouseMotionInterpolation(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{MouseMoveSteps: 10})
	ctx := context.Background()

	// First click establishes the cursor; second interpolates from it.
	exec.Execute(ctx, "tab", Request{Action: ActionClick, Point: &browser.Point{X: 0, Y: 0}})
	fake.MouseEvents = nil
	exec.Execute(ctx, "tab", Request{Action: ActionClick, Point: &browser.Point{X: 100, Y: 0}})

	var moves []browser.MouseEvent
	for _, ev := range fake.MouseEvents {
		if ev.Type == browser.MouseMoved {
			moves = append(moves, ev)
		}
	}
	if len(moves) != 10 {
		t.Fatalf("expected 10 interpolation steps, got %d", len(moves))
	}
	if moves[0].X != 10 || moves[9].X != 100 {
		t.Fatalf("interpolation endpoints wrong: first %v last %v", moves[0].X, moves[9].X)
	}
}

func TestTypeDispatchesPerCharacterKeyEvents(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	outcome := exec.Execute(context.Background(), "tab", Request{
		Action: ActionType,
		Node:   1,
		Value:  "hi",
	})
	if !outcome.Success {
		t.Fatalf("type failed: %s", outcome.Error)
	}
	if len(fake.Focused) != 1 || fake.Focused[0] != 1 {
		t.Fatalf("expected focus on node 1, got %v", fake.Focused)
	}

	// keyDown + char + keyUp per character.
	if len(fake.KeyEvents) != 6 {
		t.Fatalf("expected 6 key events, got %d", len(fake.KeyEvents))
	}
	if fake.KeyEvents[0].Type != browser.KeyDown || fake.KeyEvents[0].Code != "KeyH" {
		t.Fatalf("first event: %+v", fake.KeyEvents[0])
	}
	if fake.KeyEvents[1].Type != browser.KeyChar || fake.KeyEvents[1].Text != "h" {
		t.Fatalf("char event: %+v", fake.KeyEvents[1])
	}
	if fake.KeyEvents[2].Type != browser.KeyUp {
		t.Fatalf("third event: %+v", fake.KeyEvents[2])
	}
}

func TestClearBeforeType(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{ClearBeforeType: true})
	exec.Execute(context.Background(), "tab", Request{Action: ActionType, Node: 1, Value: "x"})

	// Ctrl+A down/up, Backspace down/up, then x down/char/up.
	if len(fake.KeyEvents) != 7 {
		t.Fatalf("expected 7 key events, got %d", len(fake.KeyEvents))
	}
	if fake.KeyEvents[0].Code != "KeyA" || fake.KeyEvents[0].Modifiers != browser.ModifierCtrl {
		t.Fatalf("select-all event: %+v", fake.KeyEvents[0])
	}
	if fake.KeyEvents[2].Code != "Backspace" {
		t.Fatalf("backspace event: %+v", fake.KeyEvents[2])
	}
}

func TestSelectSetsValueAndFiresChange(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	outcome := exec.Execute(context.Background(), "tab", Request{
		Action: ActionSelect,
		Node:   2,
		Value:  "us-east",
	})
	if !outcome.Success {
		t.Fatalf("select failed: %s", outcome.Error)
	}
	if len(fake.Evaluated) != 1 {
		t.Fatalf("expected one script evaluation, got %d", len(fake.Evaluated))
	}
	script := fake.Evaluated[0]
	if !strings.Contains(script, `"us-east"`) || !strings.Contains(script, `new Event("change"`) {
		t.Fatalf("select script: %s", script)
	}
}

func TestScrollDispatchesWheel(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	exec.Execute(context.Background(), "tab", Request{
		Action: ActionScroll,
		Point:  &browser.Point{X: 640, Y: 360},
		DeltaY: 480,
	})
	if len(fake.MouseEvents) != 1 || fake.MouseEvents[0].Type != browser.MouseWheel || fake.MouseEvents[0].DeltaY != 480 {
		t.Fatalf("wheel event: %+v", fake.MouseEvents)
	}
}

func TestKeydownWithModifiers(t *testing.T) {
	t.Parallel()

	exec, fake := noSleepExecutor(Options{})
	outcome := exec.Execute(context.Background(), "tab", Request{
		Action:    ActionKeyDown,
		Value:     "Enter",
		Modifiers: browser.ModifierShift,
	})
	if !outcome.Success {
		t.Fatalf("keydown failed: %s", outcome.Error)
	}
	if len(fake.KeyEvents) != 2 {
		t.Fatalf("expected down+up, got %d events", len(fake.KeyEvents))
	}
	if fake.KeyEvents[0].Key != "Enter" || fake.KeyEvents[0].Modifiers != browser.ModifierShift {
		t.Fatalf("keydown event: %+v", fake.KeyEvents[0])
	}
}

func TestUnknownActionFails(t *testing.T) {
	t.Parallel()

	exec, _ := noSleepExecutor(Options{})
	outcome := exec.Execute(context.Background(), "tab", Request{Action: "teleport"})
	if outcome.Success || outcome.Error == "" {
		t.Fatalf("unknown action must fail: %+v", outcome)
	}
}

func TestModifierBitmaskValues(t *testing.T) {
	t.Parallel()

	if browser.ModifierAlt != 1 || browser.ModifierCtrl != 2 || browser.ModifierMeta != 4 || browser.ModifierShift != 8 {
		t.Fatal("modifier bitmask must be alt=1 ctrl=2 meta=4 shift=8")
	}
}
