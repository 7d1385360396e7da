// client.go — Abstract browser-control provider interface and error taxonomy.
// Any provider offering these primitives suffices; the engine never assumes a
// concrete protocol behind them.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Client is the set of browser-control primitives the engine requires.
// All calls are suspension points; implementations own their own transport.
type Client interface {
	Attach(ctx context.Context, tab TabID) error
	Detach(ctx context.Context, tab TabID) error
	Navigate(ctx context.Context, tab TabID, url string) error

	QuerySelector(ctx context.Context, tab TabID, selector string) (NodeID, error)
	QuerySelectorAll(ctx context.Context, tab TabID, selector string) ([]NodeID, error)
	QueryXPath(ctx context.Context, tab TabID, expression string) ([]NodeID, error)
	DescribeNode(ctx context.Context, tab TabID, node NodeID) (*NodeDescription, error)
	GetBoxModel(ctx context.Context, tab TabID, node NodeID) (*Rect, error)
	GetComputedStyle(ctx context.Context, tab TabID, node NodeID) (map[string]string, error)
	GetAccessibilityTree(ctx context.Context, tab TabID) ([]AXNode, error)
	GetNodeForLocation(ctx context.Context, tab TabID, x, y float64) (NodeID, error)

	DispatchMouseEvent(ctx context.Context, tab TabID, event MouseEvent) error
	DispatchKeyEvent(ctx context.Context, tab TabID, event KeyEvent) error
	InsertText(ctx context.Context, tab TabID, text string) error
	FocusNode(ctx context.Context, tab TabID, node NodeID) error
	ScrollIntoView(ctx context.Context, tab TabID, node NodeID) error
	EvaluateOnNode(ctx context.Context, tab TabID, node NodeID, expression string) (json.RawMessage, error)

	CaptureScreenshot(ctx context.Context, tab TabID, format string) ([]byte, error)
	GetLayoutMetrics(ctx context.Context, tab TabID) (*LayoutMetrics, error)
}

// Sentinel errors a provider must surface for the non-retryable conditions.
var (
	// ErrNotAttached means the tab session is gone; no command can succeed.
	ErrNotAttached = errors.New("not attached")
	// ErrNodeNotFound means the backend node handle no longer resolves.
	ErrNodeNotFound = errors.New("no node with given id")
)

// IsNonRetryable reports whether err represents a browser-control failure
// that retrying cannot fix. Providers that wrap foreign transports may only
// carry the condition in the message text, so the match is textual as well.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAttached) || errors.Is(err, ErrNodeNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not attached") || strings.Contains(msg, "no node with given id")
}
