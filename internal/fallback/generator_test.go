package fallback

import (
	"testing"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/locator"
)

func fullEvidence() Evidence {
	return Evidence{
		DOM: DOMCapture{
			Tag:            "button",
			ID:             "login-submit",
			TestID:         "login-submit",
			Text:           "Sign in",
			AccessibleName: "Sign in",
			AccessibleRole: "button",
			CSSPath:        "body > div.app > form > button#login-submit",
			XPath:          "/html/body/div[1]/form/button",
			Attributes:     map[string]string{"type": "submit", "class": "btn primary", "id": "login-submit"},
			BoundingRect:   browser.Rect{X: 400, Y: 300, Width: 120, Height: 40},
		},
		Vision: &VisionCapture{Text: "Sign in", Confidence: 88, BBox: browser.Rect{X: 400, Y: 300, Width: 120, Height: 40}},
		Mouse:  &MouseCapture{Endpoint: browser.Point{X: 460, Y: 320}, Pattern: TrailDirect},
	}
}

func TestGenerateProducesValidChain(t *testing.T) {
	t.Parallel()

	chain, _ := NewGenerator(nil).Generate(fullEvidence(), "click")

	if err := chain.Validate(); err != nil {
		t.Fatalf("generated chain must validate: %v", err)
	}
	if len(chain.Strategies) > locator.MaxStrategies {
		t.Fatalf("chain too long: %d", len(chain.Strategies))
	}
	if chain.Warning != "" {
		t.Fatalf("unexpected warning: %s", chain.Warning)
	}

	// Rich evidence must yield at least three distinct categories.
	categories := map[Category]bool{}
	for _, s := range chain.Strategies {
		categories[categoryForStrategy(s)] = true
	}
	if len(categories) < 3 {
		t.Fatalf("expected >= 3 categories in chain, got %v", categories)
	}

	last := chain.Strategies[len(chain.Strategies)-1]
	if last.Type != locator.TypeCoordinates {
		t.Fatalf("coordinate backstop must rank last, got %s", last.Type)
	}
	if last.Point == nil || last.Point.X != 460 || last.Point.Y != 320 {
		t.Fatalf("coordinate point should be the mouse endpoint, got %+v", last.Point)
	}
}

func TestGenerateDynamicIDDoesNotDominate(t *testing.T) {
	t.Parallel()

	evidence := fullEvidence()
	evidence.DOM.ID = "ember1234"
	evidence.DOM.TestID = ""
	evidence.DOM.CSSPath = "#ember1234"

	chain, _ := NewGenerator(nil).Generate(evidence, "click")
	if err := chain.Validate(); err != nil {
		t.Fatalf("chain must validate: %v", err)
	}
	// Semantic evidence beats the framework-minted id.
	if chain.Primary == locator.TypeDOMCSS || chain.Primary == locator.TypeCSSPath {
		t.Fatalf("dynamic id must not win primary, got %s", chain.Primary)
	}
}

func TestGenerateDegradesToCoordinateOnly(t *testing.T) {
	t.Parallel()

	chain, _ := NewGenerator(nil).Generate(Evidence{}, "click")
	if chain.Warning == "" {
		t.Fatal("degraded chain must carry a warning")
	}
	if len(chain.Strategies) != 1 || chain.Strategies[0].Type != locator.TypeCoordinates {
		t.Fatalf("expected coordinate-only chain, got %+v", chain.Strategies)
	}
}

func TestGenerateSyntheticVisionCandidate(t *testing.T) {
	t.Parallel()

	// No OCR capture and sparse DOM evidence; the visible text stands in.
	evidence := Evidence{
		DOM: DOMCapture{
			Tag:          "button",
			Text:         "Sign in",
			BoundingRect: browser.Rect{X: 400, Y: 300, Width: 120, Height: 40},
		},
	}

	chain, _ := NewGenerator(nil).Generate(evidence, "click")
	found := false
	for _, s := range chain.Strategies {
		if s.Type == locator.TypeVisionOCR && s.Meta(locator.MetaTargetText) == "Sign in" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a synthetic vision candidate from visible text")
	}
}
