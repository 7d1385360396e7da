// evidence.go — The record-time evidence bundle and element context.
// One bundle per user action, assembled by the evidence collector and
// consumed once by the chain generator.
package fallback

import (
	"strings"

	"github.com/replaydeck/replaydeck/internal/browser"
)

// Evidence is everything captured about one user action.
type Evidence struct {
	DOM    DOMCapture     `json:"dom"`
	Vision *VisionCapture `json:"vision,omitempty"`
	Mouse  *MouseCapture  `json:"mouse,omitempty"`
}

// DOMCapture is the structural snapshot of the target element.
type DOMCapture struct {
	Tag            string            `json:"tag"`
	ID             string            `json:"id,omitempty"`
	Classes        []string          `json:"classes,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	Text           string            `json:"text,omitempty"`
	AccessibleName string            `json:"accessible_name,omitempty"`
	AccessibleRole string            `json:"accessible_role,omitempty"`
	Placeholder    string            `json:"placeholder,omitempty"`
	TestID         string            `json:"test_id,omitempty"`
	CSSPath        string            `json:"css_path,omitempty"`
	XPath          string            `json:"xpath,omitempty"`
	BoundingRect   browser.Rect      `json:"bounding_rect"`
	ShadowPath     []string          `json:"shadow_path,omitempty"`
}

// VisionCapture is the OCR snapshot of the target element, when available.
type VisionCapture struct {
	Text          string       `json:"text"`
	Confidence    float64      `json:"confidence"` // [0,100]
	BBox          browser.Rect `json:"bbox"`
	ScreenshotRef string       `json:"screenshot_ref,omitempty"`
}

// Mouse trail patterns classified by the evidence collector.
const (
	TrailDirect     = "direct"
	TrailHesitant   = "hesitant"
	TrailCorrective = "corrective"
)

// MouseCapture is the pointer evidence for the action.
type MouseCapture struct {
	Trail    []browser.Point `json:"trail,omitempty"`
	Endpoint browser.Point   `json:"endpoint"`
	Pattern  string          `json:"pattern,omitempty"`
}

// ElementContext classifies the target element for scoring.
type ElementContext struct {
	Tag               string
	ID                string
	TestID            string
	HasStableID       bool
	HasTestID         bool
	HasAccessibleName bool
	IsFormInteractive bool
	InShadowDOM       bool
	BoundingRect      browser.Rect
	AttributeCount    int
}

var formTags = map[string]bool{
	"input":    true,
	"textarea": true,
	"select":   true,
	"button":   true,
	"option":   true,
}

// AnalyzeContext derives the element context from the DOM capture. An id is
// stable iff it matches no dynamic pattern.
func AnalyzeContext(dom DOMCapture) ElementContext {
	tag := strings.ToLower(dom.Tag)
	return ElementContext{
		Tag:               tag,
		ID:                dom.ID,
		TestID:            dom.TestID,
		HasStableID:       dom.ID != "" && !IsDynamic(dom.ID),
		HasTestID:         dom.TestID != "",
		HasAccessibleName: dom.AccessibleName != "",
		IsFormInteractive: formTags[tag],
		InShadowDOM:       len(dom.ShadowPath) > 0,
		BoundingRect:      dom.BoundingRect,
		AttributeCount:    len(dom.Attributes),
	}
}
