// session.go — Per-tab command session over a Client.
// Serializes command dispatch and applies command-level retry (3 attempts,
// 100 ms delay) for transient failures. Non-retryable errors pass through
// immediately.
package browser

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/replaydeck/replaydeck/internal/logging"
)

const (
	defaultCommandAttempts = 3
	defaultCommandDelay    = 100 * time.Millisecond
)

// Session wraps a Client for one tab, owning dispatch order and retry.
type Session struct {
	client Client
	tab    TabID
	logger *slog.Logger

	mu sync.Mutex // serializes command dispatch

	attempts int
	delay    time.Duration
}

// NewSession creates a command session for the given tab.
func NewSession(client Client, tab TabID, logger *slog.Logger) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		client:   client,
		tab:      tab,
		logger:   logging.WithComponent(logger, "browser"),
		attempts: defaultCommandAttempts,
		delay:    defaultCommandDelay,
	}
}

// Tab returns the tab this session is bound to.
func (s *Session) Tab() TabID { return s.tab }

// Client returns the underlying provider. Exposed for services that layer
// their own caching over raw primitives.
func (s *Session) Client() Client { return s.client }

// dispatch runs fn under the session lock with command-level retry.
func dispatch[T any](ctx context.Context, s *Session, command string, fn func() (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if IsNonRetryable(err) {
			return zero, err
		}
		if attempt < s.attempts {
			s.logger.Debug("command retry",
				"command", command,
				"attempt", attempt,
				"error", err)
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

func dispatchVoid(ctx context.Context, s *Session, command string, fn func() error) error {
	_, err := dispatch(ctx, s, command, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Navigate loads url in the tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return dispatchVoid(ctx, s, "navigate", func() error {
		return s.client.Navigate(ctx, s.tab, url)
	})
}

// QuerySelector resolves a CSS selector to a node handle.
func (s *Session) QuerySelector(ctx context.Context, selector string) (NodeID, error) {
	return dispatch(ctx, s, "query_selector", func() (NodeID, error) {
		return s.client.QuerySelector(ctx, s.tab, selector)
	})
}

// QuerySelectorAll resolves a CSS selector to every matching node handle.
func (s *Session) QuerySelectorAll(ctx context.Context, selector string) ([]NodeID, error) {
	return dispatch(ctx, s, "query_selector_all", func() ([]NodeID, error) {
		return s.client.QuerySelectorAll(ctx, s.tab, selector)
	})
}

// QueryXPath resolves an XPath expression to matching node handles.
func (s *Session) QueryXPath(ctx context.Context, expression string) ([]NodeID, error) {
	return dispatch(ctx, s, "query_xpath", func() ([]NodeID, error) {
		return s.client.QueryXPath(ctx, s.tab, expression)
	})
}

// DescribeNode returns the provider's view of a node.
func (s *Session) DescribeNode(ctx context.Context, node NodeID) (*NodeDescription, error) {
	return dispatch(ctx, s, "describe_node", func() (*NodeDescription, error) {
		return s.client.DescribeNode(ctx, s.tab, node)
	})
}

// GetBoxModel returns the node's border box.
func (s *Session) GetBoxModel(ctx context.Context, node NodeID) (*Rect, error) {
	return dispatch(ctx, s, "get_box_model", func() (*Rect, error) {
		return s.client.GetBoxModel(ctx, s.tab, node)
	})
}

// GetComputedStyle returns the subset of computed style the provider exposes.
func (s *Session) GetComputedStyle(ctx context.Context, node NodeID) (map[string]string, error) {
	return dispatch(ctx, s, "get_computed_style", func() (map[string]string, error) {
		return s.client.GetComputedStyle(ctx, s.tab, node)
	})
}

// GetAccessibilityTree fetches the full accessibility tree.
func (s *Session) GetAccessibilityTree(ctx context.Context) ([]AXNode, error) {
	return dispatch(ctx, s, "get_accessibility_tree", func() ([]AXNode, error) {
		return s.client.GetAccessibilityTree(ctx, s.tab)
	})
}

// GetNodeForLocation hit-tests a viewport coordinate to a node handle.
func (s *Session) GetNodeForLocation(ctx context.Context, x, y float64) (NodeID, error) {
	return dispatch(ctx, s, "get_node_for_location", func() (NodeID, error) {
		return s.client.GetNodeForLocation(ctx, s.tab, x, y)
	})
}

// DispatchMouseEvent sends a pointer event to the tab.
func (s *Session) DispatchMouseEvent(ctx context.Context, event MouseEvent) error {
	return dispatchVoid(ctx, s, "dispatch_mouse_event", func() error {
		return s.client.DispatchMouseEvent(ctx, s.tab, event)
	})
}

// DispatchKeyEvent sends a keyboard event to the tab.
func (s *Session) DispatchKeyEvent(ctx context.Context, event KeyEvent) error {
	return dispatchVoid(ctx, s, "dispatch_key_event", func() error {
		return s.client.DispatchKeyEvent(ctx, s.tab, event)
	})
}

// InsertText inserts text at the current focus.
func (s *Session) InsertText(ctx context.Context, text string) error {
	return dispatchVoid(ctx, s, "insert_text", func() error {
		return s.client.InsertText(ctx, s.tab, text)
	})
}

// FocusNode focuses the node.
func (s *Session) FocusNode(ctx context.Context, node NodeID) error {
	return dispatchVoid(ctx, s, "focus_node", func() error {
		return s.client.FocusNode(ctx, s.tab, node)
	})
}

// ScrollIntoView scrolls the node into the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, node NodeID) error {
	return dispatchVoid(ctx, s, "scroll_into_view", func() error {
		return s.client.ScrollIntoView(ctx, s.tab, node)
	})
}

// EvaluateOnNode runs a script expression with the node bound as `this`.
func (s *Session) EvaluateOnNode(ctx context.Context, node NodeID, expression string) (json.RawMessage, error) {
	return dispatch(ctx, s, "evaluate_on_node", func() (json.RawMessage, error) {
		return s.client.EvaluateOnNode(ctx, s.tab, node, expression)
	})
}

// CaptureScreenshot captures the viewport.
func (s *Session) CaptureScreenshot(ctx context.Context, format string) ([]byte, error) {
	return dispatch(ctx, s, "capture_screenshot", func() ([]byte, error) {
		return s.client.CaptureScreenshot(ctx, s.tab, format)
	})
}

// GetLayoutMetrics reads the visual viewport.
func (s *Session) GetLayoutMetrics(ctx context.Context) (*LayoutMetrics, error) {
	return dispatch(ctx, s, "get_layout_metrics", func() (*LayoutMetrics, error) {
		return s.client.GetLayoutMetrics(ctx, s.tab)
	})
}
