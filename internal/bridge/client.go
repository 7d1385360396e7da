// client.go — browser.Client implementation over the bridge.
// Every primitive maps to one queued command; the extension executes it in
// the tab and posts the correlated result back.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/replaydeck/replaydeck/internal/browser"
)

type selectorParams struct {
	Selector string `json:"selector,omitempty"`
	XPath    string `json:"xpath,omitempty"`
}

type nodeParams struct {
	Node browser.NodeID `json:"node"`
}

type pointParams struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type textParams struct {
	Text string `json:"text"`
}

type urlParams struct {
	URL string `json:"url"`
}

type evalParams struct {
	Node       browser.NodeID `json:"node"`
	Expression string         `json:"expression"`
}

type screenshotParams struct {
	Format string `json:"format"`
}

func (b *Bridge) Attach(ctx context.Context, tab browser.TabID) error {
	_, err := b.dispatch(ctx, tab, "attach", nil)
	return err
}

func (b *Bridge) Detach(ctx context.Context, tab browser.TabID) error {
	_, err := b.dispatch(ctx, tab, "detach", nil)
	return err
}

func (b *Bridge) Navigate(ctx context.Context, tab browser.TabID, url string) error {
	_, err := b.dispatch(ctx, tab, "navigate", urlParams{URL: url})
	return err
}

func (b *Bridge) QuerySelector(ctx context.Context, tab browser.TabID, selector string) (browser.NodeID, error) {
	return dispatchTyped[browser.NodeID](ctx, b, tab, "query_selector", selectorParams{Selector: selector})
}

func (b *Bridge) QuerySelectorAll(ctx context.Context, tab browser.TabID, selector string) ([]browser.NodeID, error) {
	return dispatchTyped[[]browser.NodeID](ctx, b, tab, "query_selector_all", selectorParams{Selector: selector})
}

func (b *Bridge) QueryXPath(ctx context.Context, tab browser.TabID, expression string) ([]browser.NodeID, error) {
	return dispatchTyped[[]browser.NodeID](ctx, b, tab, "query_xpath", selectorParams{XPath: expression})
}

func (b *Bridge) DescribeNode(ctx context.Context, tab browser.TabID, node browser.NodeID) (*browser.NodeDescription, error) {
	return dispatchTyped[*browser.NodeDescription](ctx, b, tab, "describe_node", nodeParams{Node: node})
}

func (b *Bridge) GetBoxModel(ctx context.Context, tab browser.TabID, node browser.NodeID) (*browser.Rect, error) {
	return dispatchTyped[*browser.Rect](ctx, b, tab, "get_box_model", nodeParams{Node: node})
}

func (b *Bridge) GetComputedStyle(ctx context.Context, tab browser.TabID, node browser.NodeID) (map[string]string, error) {
	return dispatchTyped[map[string]string](ctx, b, tab, "get_computed_style", nodeParams{Node: node})
}

func (b *Bridge) GetAccessibilityTree(ctx context.Context, tab browser.TabID) ([]browser.AXNode, error) {
	return dispatchTyped[[]browser.AXNode](ctx, b, tab, "get_accessibility_tree", nil)
}

func (b *Bridge) GetNodeForLocation(ctx context.Context, tab browser.TabID, x, y float64) (browser.NodeID, error) {
	return dispatchTyped[browser.NodeID](ctx, b, tab, "get_node_for_location", pointParams{X: x, Y: y})
}

func (b *Bridge) DispatchMouseEvent(ctx context.Context, tab browser.TabID, event browser.MouseEvent) error {
	_, err := b.dispatch(ctx, tab, "dispatch_mouse_event", event)
	return err
}

func (b *Bridge) DispatchKeyEvent(ctx context.Context, tab browser.TabID, event browser.KeyEvent) error {
	_, err := b.dispatch(ctx, tab, "dispatch_key_event", event)
	return err
}

func (b *Bridge) InsertText(ctx context.Context, tab browser.TabID, text string) error {
	_, err := b.dispatch(ctx, tab, "insert_text", textParams{Text: text})
	return err
}

func (b *Bridge) FocusNode(ctx context.Context, tab browser.TabID, node browser.NodeID) error {
	_, err := b.dispatch(ctx, tab, "focus_node", nodeParams{Node: node})
	return err
}

func (b *Bridge) ScrollIntoView(ctx context.Context, tab browser.TabID, node browser.NodeID) error {
	_, err := b.dispatch(ctx, tab, "scroll_into_view", nodeParams{Node: node})
	return err
}

func (b *Bridge) EvaluateOnNode(ctx context.Context, tab browser.TabID, node browser.NodeID, expression string) (json.RawMessage, error) {
	return b.dispatch(ctx, tab, "evaluate_on_node", evalParams{Node: node, Expression: expression})
}

func (b *Bridge) CaptureScreenshot(ctx context.Context, tab browser.TabID, format string) ([]byte, error) {
	return dispatchTyped[[]byte](ctx, b, tab, "capture_screenshot", screenshotParams{Format: format})
}

func (b *Bridge) GetLayoutMetrics(ctx context.Context, tab browser.TabID) (*browser.LayoutMetrics, error) {
	return dispatchTyped[*browser.LayoutMetrics](ctx, b, tab, "get_layout_metrics", nil)
}

var _ browser.Client = (*Bridge)(nil)
