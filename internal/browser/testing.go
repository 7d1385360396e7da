// testing.go — Scriptable in-memory Client used by the engine's test suites.
// Not guarded by a build tag so downstream packages can wire it into their
// own tests; carries no dependencies beyond the standard library.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeNode is the scripted state backing one node handle in a FakeClient.
type FakeNode struct {
	Desc  NodeDescription
	Box   Rect
	Style map[string]string
}

// FakeClient is a scriptable Client. Tests populate the maps, run the code
// under test, then assert on the recorded event slices.
type FakeClient struct {
	mu sync.Mutex

	Nodes     map[NodeID]*FakeNode
	Selectors map[string][]NodeID
	XPaths    map[string][]NodeID
	Tree      []AXNode
	HitTest   func(x, y float64) NodeID
	Shot      []byte
	Layout    LayoutMetrics

	// Recorded interactions.
	MouseEvents []MouseEvent
	KeyEvents   []KeyEvent
	Inserted    []string
	Focused     []NodeID
	Scrolled    []NodeID
	Navigated   []string
	Evaluated   []string

	// FailNext queues one error per command name, consumed in order.
	// FailAlways makes every call to that command fail.
	FailNext   map[string][]error
	FailAlways map[string]error

	CallCounts map[string]int
}

// NewFakeClient returns an empty scriptable client.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Nodes:      make(map[NodeID]*FakeNode),
		Selectors:  make(map[string][]NodeID),
		XPaths:     make(map[string][]NodeID),
		FailNext:   make(map[string][]error),
		FailAlways: make(map[string]error),
		CallCounts: make(map[string]int),
		Layout:     LayoutMetrics{ViewportWidth: 1280, ViewportHeight: 720, PageScaleFactor: 1, DevicePixelRatio: 1},
	}
}

// AddNode registers a node with its description, box, and computed style.
func (f *FakeClient) AddNode(id NodeID, node *FakeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node.Desc.NodeID = id
	f.Nodes[id] = node
}

// QueueError makes the next call to command fail with err.
func (f *FakeClient) QueueError(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailNext[command] = append(f.FailNext[command], err)
}

// Calls returns how many times command was invoked.
func (f *FakeClient) Calls(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CallCounts[command]
}

func (f *FakeClient) enter(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CallCounts[command]++
	if err, ok := f.FailAlways[command]; ok {
		return err
	}
	if queue := f.FailNext[command]; len(queue) > 0 {
		f.FailNext[command] = queue[1:]
		return queue[0]
	}
	return nil
}

func (f *FakeClient) Attach(ctx context.Context, tab TabID) error {
	return f.enter("attach")
}

func (f *FakeClient) Detach(ctx context.Context, tab TabID) error {
	return f.enter("detach")
}

func (f *FakeClient) Navigate(ctx context.Context, tab TabID, url string) error {
	if err := f.enter("navigate"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigated = append(f.Navigated, url)
	return nil
}

func (f *FakeClient) QuerySelector(ctx context.Context, tab TabID, selector string) (NodeID, error) {
	if err := f.enter("query_selector"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ids := f.Selectors[selector]; len(ids) > 0 {
		return ids[0], nil
	}
	return 0, fmt.Errorf("query selector %q: %w", selector, ErrNodeNotFound)
}

func (f *FakeClient) QuerySelectorAll(ctx context.Context, tab TabID, selector string) ([]NodeID, error) {
	if err := f.enter("query_selector_all"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NodeID(nil), f.Selectors[selector]...), nil
}

func (f *FakeClient) QueryXPath(ctx context.Context, tab TabID, expression string) ([]NodeID, error) {
	if err := f.enter("query_xpath"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NodeID(nil), f.XPaths[expression]...), nil
}

func (f *FakeClient) DescribeNode(ctx context.Context, tab TabID, node NodeID) (*NodeDescription, error) {
	if err := f.enter("describe_node"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fake, ok := f.Nodes[node]
	if !ok {
		return nil, fmt.Errorf("describe node %d: %w", node, ErrNodeNotFound)
	}
	desc := fake.Desc
	return &desc, nil
}

func (f *FakeClient) GetBoxModel(ctx context.Context, tab TabID, node NodeID) (*Rect, error) {
	if err := f.enter("get_box_model"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fake, ok := f.Nodes[node]
	if !ok {
		return nil, fmt.Errorf("box model for node %d: %w", node, ErrNodeNotFound)
	}
	box := fake.Box
	return &box, nil
}

func (f *FakeClient) GetComputedStyle(ctx context.Context, tab TabID, node NodeID) (map[string]string, error) {
	if err := f.enter("get_computed_style"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fake, ok := f.Nodes[node]
	if !ok {
		return nil, fmt.Errorf("computed style for node %d: %w", node, ErrNodeNotFound)
	}
	style := make(map[string]string, len(fake.Style))
	for k, v := range fake.Style {
		style[k] = v
	}
	return style, nil
}

func (f *FakeClient) GetAccessibilityTree(ctx context.Context, tab TabID) ([]AXNode, error) {
	if err := f.enter("get_accessibility_tree"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AXNode(nil), f.Tree...), nil
}

func (f *FakeClient) GetNodeForLocation(ctx context.Context, tab TabID, x, y float64) (NodeID, error) {
	if err := f.enter("get_node_for_location"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	hit := f.HitTest
	f.mu.Unlock()
	if hit == nil {
		return 0, fmt.Errorf("hit test (%v, %v): %w", x, y, ErrNodeNotFound)
	}
	id := hit(x, y)
	if id == 0 {
		return 0, fmt.Errorf("hit test (%v, %v): %w", x, y, ErrNodeNotFound)
	}
	return id, nil
}

func (f *FakeClient) DispatchMouseEvent(ctx context.Context, tab TabID, event MouseEvent) error {
	if err := f.enter("dispatch_mouse_event"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MouseEvents = append(f.MouseEvents, event)
	return nil
}

func (f *FakeClient) DispatchKeyEvent(ctx context.Context, tab TabID, event KeyEvent) error {
	if err := f.enter("dispatch_key_event"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.KeyEvents = append(f.KeyEvents, event)
	return nil
}

func (f *FakeClient) InsertText(ctx context.Context, tab TabID, text string) error {
	if err := f.enter("insert_text"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inserted = append(f.Inserted, text)
	return nil
}

func (f *FakeClient) FocusNode(ctx context.Context, tab TabID, node NodeID) error {
	if err := f.enter("focus_node"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Focused = append(f.Focused, node)
	return nil
}

func (f *FakeClient) ScrollIntoView(ctx context.Context, tab TabID, node NodeID) error {
	if err := f.enter("scroll_into_view"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scrolled = append(f.Scrolled, node)
	return nil
}

func (f *FakeClient) EvaluateOnNode(ctx context.Context, tab TabID, node NodeID, expression string) (json.RawMessage, error) {
	if err := f.enter("evaluate_on_node"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Nodes[node]; !ok {
		return nil, fmt.Errorf("evaluate on node %d: %w", node, ErrNodeNotFound)
	}
	f.Evaluated = append(f.Evaluated, expression)
	return json.RawMessage(`null`), nil
}

func (f *FakeClient) CaptureScreenshot(ctx context.Context, tab TabID, format string) ([]byte, error) {
	if err := f.enter("capture_screenshot"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.Shot...), nil
}

func (f *FakeClient) GetLayoutMetrics(ctx context.Context, tab TabID) (*LayoutMetrics, error) {
	if err := f.enter("get_layout_metrics"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	layout := f.Layout
	return &layout, nil
}

var _ Client = (*FakeClient)(nil)
