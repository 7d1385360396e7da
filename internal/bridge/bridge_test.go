package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/util"
)

// answer runs a minimal extension: polls until the command appears and
// posts the scripted result.
func answer(b *Bridge, method string, result string, errMessage string) {
	util.SafeGo(func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			for _, command := range b.PollCommands(10) {
				if command.Method == method {
					b.SubmitResult(command.ID, json.RawMessage(result), errMessage)
					return
				}
				// Not ours; answer it with null so nothing hangs.
				b.SubmitResult(command.ID, json.RawMessage(`null`), "")
			}
			time.Sleep(time.Millisecond)
		}
	})
}

func TestDispatchRoundTrip(t *testing.T) {
	t.Parallel()

	b := New(nil)
	answer(b, "query_selector", `42`, "")

	id, err := b.QuerySelector(context.Background(), "tab-1", "#go")
	if err != nil {
		t.Fatalf("QuerySelector: %v", err)
	}
	if id != 42 {
		t.Fatalf("node id = %d, want 42", id)
	}
}

func TestDispatchSurfacesExtensionError(t *testing.T) {
	t.Parallel()

	b := New(nil)
	answer(b, "focus_node", `null`, "No node with given id")

	err := b.FocusNode(context.Background(), "tab-1", 7)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !browser.IsNonRetryable(err) {
		t.Fatalf("node-not-found must classify as non-retryable: %v", err)
	}
}

func TestDispatchExpiresWithoutExtension(t *testing.T) {
	t.Parallel()

	b := New(nil)
	b.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := b.QuerySelector(context.Background(), "tab-1", "#never")
	if err == nil {
		t.Fatal("expected expiry error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expiry took too long: %s", elapsed)
	}

	// The expired command must be gone from the queue.
	if commands := b.PollCommands(10); len(commands) != 0 {
		t.Fatalf("expired command still queued: %+v", commands)
	}
}

func TestDispatchHonorsContextCancel(t *testing.T) {
	t.Parallel()

	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	util.SafeGo(func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	})

	_, err := b.QuerySelector(ctx, "tab-1", "#never")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPollCommandsBatches(t *testing.T) {
	t.Parallel()

	b := New(nil)
	b.timeout = 200 * time.Millisecond
	for i := 0; i < 3; i++ {
		go func() { _, _ = b.dispatch(context.Background(), "tab-1", "navigate", urlParams{URL: "x"}) }()
	}

	deadline := time.Now().Add(time.Second)
	var seen int
	for time.Now().Before(deadline) && seen < 3 {
		batch := b.PollCommands(2)
		if len(batch) > 2 {
			t.Fatalf("batch exceeded max: %d", len(batch))
		}
		for _, command := range batch {
			b.SubmitResult(command.ID, json.RawMessage(`null`), "")
			seen++
		}
		time.Sleep(time.Millisecond)
	}
	if seen != 3 {
		t.Fatalf("expected to drain 3 commands, got %d", seen)
	}
}

func TestSubmitResultUnknownIDIsDropped(t *testing.T) {
	t.Parallel()

	b := New(nil)
	b.SubmitResult("ghost", json.RawMessage(`1`), "")
	if len(b.results) != 0 {
		t.Fatal("unknown correlation id must not be stored")
	}
}
