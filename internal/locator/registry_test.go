package locator

import (
	"context"
	"math"
	"testing"

	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/vision"
)

type fakeEngine struct {
	lines []vision.Line
}

func (e *fakeEngine) Init(ctx context.Context, language string) error { return nil }
func (e *fakeEngine) Recognize(ctx context.Context, image []byte) ([]vision.Line, error) {
	return append([]vision.Line(nil), e.lines...), nil
}
func (e *fakeEngine) Close() error { return nil }

func newTestRegistry(t *testing.T, fake *browser.FakeClient, lines []vision.Line) *Registry {
	t.Helper()
	sessions := browser.NewSessions(fake, nil)
	axSvc := ax.NewService(fake, nil)
	visionSvc := vision.NewService(fake, &fakeEngine{lines: lines}, vision.Options{}, nil)
	return NewRegistry(sessions, axSvc, visionSvc, nil)
}

func pageFake() *browser.FakeClient {
	fake := browser.NewFakeClient()
	fake.Shot = []byte{1}
	fake.Tree = []browser.AXNode{
		{ID: "1", Role: "button", Name: "Submit Order", BackendNodeID: 10},
		{ID: "2", Role: "textbox", Name: "Email address", BackendNodeID: 11},
		{ID: "3", Role: "link", Name: "Order history", BackendNodeID: 12},
	}
	fake.AddNode(10, &browser.FakeNode{Box: browser.Rect{X: 100, Y: 200, Width: 80, Height: 30}})
	fake.AddNode(11, &browser.FakeNode{Box: browser.Rect{X: 100, Y: 300, Width: 200, Height: 24}})
	fake.AddNode(12, &browser.FakeNode{Box: browser.Rect{X: 400, Y: 50, Width: 120, Height: 16}})
	fake.Selectors["#submit"] = []browser.NodeID{10}
	fake.Selectors[`[data-testid="submit-btn"]`] = []browser.NodeID{10}
	fake.XPaths["/html/body/button[1]"] = []browser.NodeID{10}
	fake.HitTest = func(x, y float64) browser.NodeID {
		if x >= 100 && x <= 180 && y >= 200 && y <= 230 {
			return 10
		}
		return 0
	}
	return fake
}

func TestSemanticEvaluator(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		strategy   Strategy
		wantFound  bool
		wantConf   float64
		wantNode   browser.NodeID
	}{
		{
			name:      "role with name",
			strategy:  Strategy{Type: TypeSemantic, Metadata: map[string]string{MetaRole: "button", MetaName: "submit"}},
			wantFound: true,
			wantConf:  0.95,
			wantNode:  10,
		},
		{
			name:      "role only",
			strategy:  Strategy{Type: TypeSemantic, Metadata: map[string]string{MetaRole: "textbox"}},
			wantFound: true,
			wantConf:  0.85,
			wantNode:  11,
		},
		{
			name:     "no match",
			strategy: Strategy{Type: TypeSemantic, Metadata: map[string]string{MetaRole: "tab"}},
		},
		{
			name:     "missing role is an error",
			strategy: Strategy{Type: TypeSemantic},
		},
	}

	for _, tt := range tests {
		eval := registry.Evaluate(ctx, "tab", tt.strategy)
		if eval.Found != tt.wantFound {
			t.Fatalf("%s: found = %v, want %v (err %q)", tt.name, eval.Found, tt.wantFound, eval.Error)
		}
		if tt.wantFound {
			if eval.Confidence != tt.wantConf {
				t.Fatalf("%s: confidence = %v, want %v", tt.name, eval.Confidence, tt.wantConf)
			}
			if eval.BackendNodeID != tt.wantNode {
				t.Fatalf("%s: node = %d, want %d", tt.name, eval.BackendNodeID, tt.wantNode)
			}
			if eval.ClickPoint == nil {
				t.Fatalf("%s: expected a click point", tt.name)
			}
		}
	}
}

func TestPowerEvaluator(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		strategy  Strategy
		wantFound bool
		wantConf  float64
	}{
		{
			name:      "exact text",
			strategy:  Strategy{Type: TypePower, Metadata: map[string]string{MetaText: "Submit Order"}},
			wantFound: true,
			wantConf:  0.90,
		},
		{
			name:      "substring text",
			strategy:  Strategy{Type: TypePower, Metadata: map[string]string{MetaText: "Order h"}},
			wantFound: true,
			wantConf:  0.80,
		},
		{
			name:      "label restricted to form roles",
			strategy:  Strategy{Type: TypePower, Metadata: map[string]string{MetaLabel: "Email"}},
			wantFound: true,
			wantConf:  0.85,
		},
		{
			name:      "test id attribute",
			strategy:  Strategy{Type: TypePower, Metadata: map[string]string{MetaTestID: "submit-btn"}},
			wantFound: true,
			wantConf:  0.95,
		},
		{
			name:     "nothing matches",
			strategy: Strategy{Type: TypePower, Metadata: map[string]string{MetaText: "does not exist"}},
		},
	}

	for _, tt := range tests {
		eval := registry.Evaluate(ctx, "tab", tt.strategy)
		if eval.Found != tt.wantFound {
			t.Fatalf("%s: found = %v, want %v (err %q)", tt.name, eval.Found, tt.wantFound, eval.Error)
		}
		if tt.wantFound && eval.Confidence != tt.wantConf {
			t.Fatalf("%s: confidence = %v, want %v", tt.name, eval.Confidence, tt.wantConf)
		}
	}
}

func TestLabelLookupIgnoresNonFormRoles(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)
	// "Order" appears in a button and a link name but neither is a form role.
	eval := registry.Evaluate(context.Background(), "tab",
		Strategy{Type: TypePower, Metadata: map[string]string{MetaLabel: "Order"}})
	if eval.Found {
		t.Fatalf("label lookup must only consider form roles, got %+v", eval)
	}
}

func TestCSSEvaluators(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)
	ctx := context.Background()

	eval := registry.Evaluate(ctx, "tab", Strategy{Type: TypeDOMCSS, Selector: "#submit"})
	if !eval.Found || eval.Confidence != 0.75 || eval.BackendNodeID != 10 {
		t.Fatalf("dom_css: %+v", eval)
	}
	if eval.ClickPoint == nil || eval.ClickPoint.X != 140 || eval.ClickPoint.Y != 215 {
		t.Fatalf("dom_css click point should be box center, got %+v", eval.ClickPoint)
	}

	eval = registry.Evaluate(ctx, "tab", Strategy{Type: TypeCSSPath, Metadata: map[string]string{MetaXPath: "/html/body/button[1]"}})
	if !eval.Found || eval.Confidence != 0.65 {
		t.Fatalf("css_path xpath: %+v", eval)
	}

	eval = registry.Evaluate(ctx, "tab", Strategy{Type: TypeDOMCSS, Selector: "#missing"})
	if eval.Found {
		t.Fatalf("missing selector must not be found: %+v", eval)
	}
}

func TestVisionEvaluatorMapsConfidence(t *testing.T) {
	t.Parallel()

	lines := []vision.Line{
		{Text: "Checkout now", Confidence: 85, BBox: browser.Rect{X: 50, Y: 60, Width: 100, Height: 20}},
	}
	registry := newTestRegistry(t, pageFake(), lines)

	eval := registry.Evaluate(context.Background(), "tab",
		Strategy{Type: TypeVisionOCR, Metadata: map[string]string{MetaTargetText: "Checkout"}})
	if !eval.Found {
		t.Fatalf("expected vision match: %+v", eval)
	}
	if math.Abs(eval.Confidence-0.765) > 1e-9 {
		t.Fatalf("OCR confidence 85 should map to 0.765, got %v", eval.Confidence)
	}
	if eval.ClickPoint == nil || eval.ClickPoint.X != 100 || eval.ClickPoint.Y != 70 {
		t.Fatalf("click point should be line bbox center, got %+v", eval.ClickPoint)
	}
}

func TestEvidenceEvaluator(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)
	ctx := context.Background()

	eval := registry.Evaluate(ctx, "tab",
		Strategy{Type: TypeEvidenceScoring, Point: &browser.Point{X: 140, Y: 215}})
	if !eval.Found || eval.Confidence != 0.80 || eval.BackendNodeID != 10 {
		t.Fatalf("evidence hit: %+v", eval)
	}

	eval = registry.Evaluate(ctx, "tab",
		Strategy{Type: TypeEvidenceScoring, Point: &browser.Point{X: 5, Y: 5}})
	if eval.Found {
		t.Fatalf("evidence miss must not be found: %+v", eval)
	}
}

func TestCoordinatesEvaluator(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)

	eval := registry.Evaluate(context.Background(), "tab",
		Strategy{Type: TypeCoordinates, Point: &browser.Point{X: 33, Y: 44}})
	if !eval.Found || eval.Confidence != 0.60 {
		t.Fatalf("coordinates: %+v", eval)
	}
	if eval.ClickPoint.X != 33 || eval.ClickPoint.Y != 44 {
		t.Fatalf("coordinates click point: %+v", eval.ClickPoint)
	}

	eval = registry.Evaluate(context.Background(), "tab", Strategy{Type: TypeCoordinates})
	if eval.Found || eval.Error == "" {
		t.Fatalf("coordinate strategy without point must error: %+v", eval)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, pageFake(), nil)
	eval := registry.Evaluate(context.Background(), "tab", Strategy{Type: Type("teleport")})
	if eval.Found || eval.Error == "" {
		t.Fatalf("unknown type must evaluate to a not-found error: %+v", eval)
	}
}

func TestBaseWeights(t *testing.T) {
	t.Parallel()

	want := map[Type]float64{
		TypeSemantic:        0.95,
		TypePower:           0.90,
		TypeDOMCSS:          0.85,
		TypeEvidenceScoring: 0.80,
		TypeCSSPath:         0.75,
		TypeVisionOCR:       0.70,
		TypeCoordinates:     0.60,
	}
	for typ, weight := range want {
		if got := BaseWeight(typ); got != weight {
			t.Fatalf("BaseWeight(%s) = %v, want %v", typ, got, weight)
		}
	}
	if BaseWeight(Type("bogus")) != 0 {
		t.Fatal("unknown type must weigh 0")
	}
}
