// bridge.go — Browser-control provider over an extension long-poll bridge.
// The extension polls for queued commands and posts correlated results
// back; each Client call enqueues one command and blocks until its result
// arrives or the deadline passes. Command expiry keeps the queue from
// growing when the extension disconnects.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/logging"
)

const (
	defaultCommandTimeout = 30 * time.Second
	maxQueuedCommands     = 256
)

// Command is one queued browser-control command for the extension.
type Command struct {
	ID     string          `json:"id"`
	Tab    browser.TabID   `json:"tab"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Queued time.Time       `json:"-"`
}

type commandResult struct {
	result json.RawMessage
	err    string
	done   bool
}

// Bridge queues commands and correlates results.
type Bridge struct {
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending []Command
	results map[string]*commandResult
	notify  chan struct{}
}

// New creates a bridge.
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bridge{
		logger:  logging.WithComponent(logger, "bridge"),
		timeout: defaultCommandTimeout,
		results: make(map[string]*commandResult),
		notify:  make(chan struct{}),
	}
}

// PollCommands hands up to max queued commands to the extension.
func (b *Bridge) PollCommands(max int) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max <= 0 || max > len(b.pending) {
		max = len(b.pending)
	}
	batch := b.pending[:max]
	b.pending = b.pending[max:]
	out := make([]Command, len(batch))
	copy(out, batch)
	return out
}

// SubmitResult records the extension's result for a command and wakes
// waiters. Unknown correlation ids are dropped.
func (b *Bridge) SubmitResult(id string, result json.RawMessage, errMessage string) {
	b.mu.Lock()
	entry, ok := b.results[id]
	if !ok || entry.done {
		b.mu.Unlock()
		return
	}
	entry.result = result
	entry.err = errMessage
	entry.done = true

	// Signal waiters: close the current channel, replace with a fresh one.
	ch := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()
	close(ch)
}

// dispatch queues one command and blocks until its result arrives.
func (b *Bridge) dispatch(ctx context.Context, tab browser.TabID, method string, params any) (json.RawMessage, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}

	command := Command{
		ID:     uuid.NewString(),
		Tab:    tab,
		Method: method,
		Params: encoded,
		Queued: time.Now(),
	}

	b.mu.Lock()
	if len(b.pending) >= maxQueuedCommands {
		b.mu.Unlock()
		return nil, fmt.Errorf("%s: command queue full", method)
	}
	b.pending = append(b.pending, command)
	b.results[command.ID] = &commandResult{}
	b.mu.Unlock()

	deadline := time.Now().Add(b.timeout)
	defer func() {
		b.mu.Lock()
		delete(b.results, command.ID)
		b.mu.Unlock()
	}()

	for {
		b.mu.Lock()
		entry := b.results[command.ID]
		if entry != nil && entry.done {
			result, errMessage := entry.result, entry.err
			b.mu.Unlock()
			if errMessage != "" {
				return nil, fmt.Errorf("%s: %s", method, errMessage)
			}
			return result, nil
		}
		ch := b.notify
		b.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			b.expire(command.ID)
			b.logger.Debug("command expired", "method", method, "id", command.ID)
			return nil, fmt.Errorf("%s: command expired before the extension answered", method)
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			b.expire(command.ID)
			return nil, ctx.Err()
		}
	}
}

// expire removes a command that will never be answered, both from the
// pending queue and the result table.
func (b *Bridge) expire(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, command := range b.pending {
		if command.ID == id {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	delete(b.results, id)
}

func dispatchTyped[T any](ctx context.Context, b *Bridge, tab browser.TabID, method string, params any) (T, error) {
	var zero T
	raw, err := b.dispatch(ctx, tab, method, params)
	if err != nil {
		return zero, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return zero, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%s: decode result: %w", method, err)
	}
	return out, nil
}
