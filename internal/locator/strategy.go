// strategy.go — Locator strategy model shared by record and playback.
// A strategy is a tagged variant with an opaque metadata bag; base weights
// make confidences comparable across variants.
package locator

import (
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
)

// Type tags one of the seven locator techniques.
type Type string

const (
	TypeSemantic        Type = "semantic"
	TypePower           Type = "power"
	TypeDOMCSS          Type = "dom_css"
	TypeCSSPath         Type = "css_path"
	TypeVisionOCR       Type = "vision_ocr"
	TypeEvidenceScoring Type = "evidence_scoring"
	TypeCoordinates     Type = "coordinates"
)

// AllTypes lists every variant in descending base-weight order.
var AllTypes = []Type{
	TypeSemantic,
	TypePower,
	TypeDOMCSS,
	TypeEvidenceScoring,
	TypeCSSPath,
	TypeVisionOCR,
	TypeCoordinates,
}

// BaseWeight returns the fixed variant weight. weighted = BaseWeight × confidence
// is the comparable quantity across variants.
func BaseWeight(t Type) float64 {
	switch t {
	case TypeSemantic:
		return 0.95
	case TypePower:
		return 0.90
	case TypeDOMCSS:
		return 0.85
	case TypeEvidenceScoring:
		return 0.80
	case TypeCSSPath:
		return 0.75
	case TypeVisionOCR:
		return 0.70
	case TypeCoordinates:
		return 0.60
	default:
		return 0
	}
}

// Valid reports whether t is a known variant.
func (t Type) Valid() bool {
	return BaseWeight(t) > 0
}

// Metadata keys recognized across variants.
const (
	MetaRole         = "role"
	MetaName         = "name"
	MetaText         = "text"
	MetaLabel        = "label"
	MetaPlaceholder  = "placeholder"
	MetaAlt          = "alt"
	MetaTitle        = "title"
	MetaTestID       = "test_id"
	MetaTargetText   = "target_text"
	MetaExact        = "exact"
	MetaXPath        = "xpath"
	MetaExpanded     = "expanded"
	MetaPressed      = "pressed"
	MetaChecked      = "checked"
	MetaDisabled     = "disabled"
	MetaSelected     = "selected"
	MetaLevel        = "level"
	MetaTrailPattern = "trail_pattern"
)

// Strategy is one immutable locator candidate.
type Strategy struct {
	Type       Type              `json:"type"`
	Selector   string            `json:"selector,omitempty"`
	Confidence float64           `json:"confidence"`
	Point      *browser.Point    `json:"point,omitempty"` // recorded endpoint for evidence/coordinate variants
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value, empty when absent.
func (s Strategy) Meta(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

// Evaluation is the outcome of running one strategy against a live tab.
type Evaluation struct {
	Type          Type              `json:"type"`
	Found         bool              `json:"found"`
	Confidence    float64           `json:"confidence"`
	BackendNodeID browser.NodeID    `json:"backend_node_id,omitempty"`
	ClickPoint    *browser.Point    `json:"click_point,omitempty"`
	MatchCount    int               `json:"match_count,omitempty"`
	Duration      time.Duration     `json:"duration_ns"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func notFound(t Type, err error) Evaluation {
	eval := Evaluation{Type: t}
	if err != nil {
		eval.Error = err.Error()
	}
	return eval
}
