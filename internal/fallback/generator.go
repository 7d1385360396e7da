// generator.go — Fallback chain generator: evidence bundle → candidate set.
// Enumerates candidates from every evidence family, scores them, and hands
// them to the builder. A generator failure degrades to a coordinate-only
// chain with a warning instead of failing the recording.
package fallback

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/locator"
	"github.com/replaydeck/replaydeck/internal/logging"
)

// Raw candidate confidences per family, before scoring.
const (
	rawTestID          = 0.95
	rawStableID        = 0.90
	rawSemanticNamed   = 0.95
	rawSemanticRole    = 0.80
	rawText            = 0.85
	rawLabel           = 0.85
	rawPlaceholder     = 0.80
	rawCSSPath         = 0.75
	rawSyntheticVision = 0.70
	rawEvidence        = 0.75
	rawXPath           = 0.65
	rawCoordinates     = 0.60

	maxTextCandidateLen = 50
)

// Generator converts one evidence bundle into an ordered fallback chain.
type Generator struct {
	builder *Builder
	logger  *slog.Logger
	now     func() time.Time
}

// NewGenerator creates a chain generator.
func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Generator{
		builder: NewBuilder(),
		logger:  logging.WithComponent(logger, "fallback"),
		now:     time.Now,
	}
}

// Generate produces the fallback chain for one recorded action.
func (g *Generator) Generate(evidence Evidence, actionType string) (locator.Chain, []Excluded) {
	ctx := AnalyzeContext(evidence.DOM)

	candidates, err := g.enumerate(evidence, ctx)
	if err != nil || len(candidates) == 0 {
		g.logger.Warn("chain generation degraded to coordinate fallback",
			"action", actionType, "error", err)
		chain, _ := g.builder.build([]Candidate{g.coordinateCandidate(evidence, ctx)}, g.now())
		if err != nil {
			chain.Warning = fmt.Sprintf("chain generation failed: %v", err)
		} else {
			chain.Warning = "no locator evidence; coordinate fallback only"
		}
		return chain, nil
	}

	for i := range candidates {
		breakdown := Score(candidates[i], ctx)
		candidates[i].Strategy.Confidence = breakdown.Final
	}

	return g.builder.build(candidates, g.now())
}

// enumerate emits candidates from each evidence family. The coordinate
// backstop is always last in the slice.
func (g *Generator) enumerate(evidence Evidence, ctx ElementContext) ([]Candidate, error) {
	dom := evidence.DOM
	if dom.Tag == "" && dom.CSSPath == "" && dom.Text == "" && evidence.Vision == nil && evidence.Mouse == nil {
		return nil, fmt.Errorf("evidence bundle carries no usable capture")
	}

	var candidates []Candidate

	// Structural DOM family.
	if ctx.HasTestID {
		candidates = append(candidates, Candidate{
			Category:      CategoryDOM,
			RawConfidence: rawTestID,
			Strategy: locator.Strategy{
				Type:     locator.TypePower,
				Selector: fmt.Sprintf(`[data-testid=%q]`, dom.TestID),
				Metadata: map[string]string{locator.MetaTestID: dom.TestID},
			},
		})
	}
	if ctx.HasStableID {
		candidates = append(candidates, Candidate{
			Category:      CategoryDOM,
			RawConfidence: rawStableID,
			Strategy: locator.Strategy{
				Type:     locator.TypeDOMCSS,
				Selector: "#" + dom.ID,
			},
		})
	}
	if dom.CSSPath != "" {
		candidates = append(candidates, Candidate{
			Category:      CategoryDOM,
			RawConfidence: rawCSSPath,
			Strategy: locator.Strategy{
				Type:     locator.TypeCSSPath,
				Selector: dom.CSSPath,
			},
		})
	}
	if dom.XPath != "" {
		candidates = append(candidates, Candidate{
			Category:      CategoryDOM,
			RawConfidence: rawXPath,
			Strategy: locator.Strategy{
				Type:     locator.TypeCSSPath,
				Metadata: map[string]string{locator.MetaXPath: dom.XPath},
			},
		})
	}

	// Semantic family.
	if dom.AccessibleRole != "" {
		raw := rawSemanticRole
		meta := map[string]string{locator.MetaRole: dom.AccessibleRole}
		if dom.AccessibleName != "" {
			raw = rawSemanticNamed
			meta[locator.MetaName] = dom.AccessibleName
		}
		candidates = append(candidates, Candidate{
			Category:      CategorySemantic,
			RawConfidence: raw,
			Strategy:      locator.Strategy{Type: locator.TypeSemantic, Metadata: meta},
		})
	}
	if text := dom.Text; text != "" && len(text) <= maxTextCandidateLen {
		candidates = append(candidates, Candidate{
			Category:      CategorySemantic,
			RawConfidence: rawText,
			Strategy: locator.Strategy{
				Type:     locator.TypePower,
				Metadata: map[string]string{locator.MetaText: text},
			},
		})
	}
	if ctx.IsFormInteractive && dom.AccessibleName != "" {
		candidates = append(candidates, Candidate{
			Category:      CategorySemantic,
			RawConfidence: rawLabel,
			Strategy: locator.Strategy{
				Type:     locator.TypePower,
				Metadata: map[string]string{locator.MetaLabel: dom.AccessibleName},
			},
		})
	}
	if dom.Placeholder != "" {
		candidates = append(candidates, Candidate{
			Category:      CategorySemantic,
			RawConfidence: rawPlaceholder,
			Strategy: locator.Strategy{
				Type:     locator.TypePower,
				Metadata: map[string]string{locator.MetaPlaceholder: dom.Placeholder},
			},
		})
	}

	// Vision family: real OCR reading when captured, synthetic from the
	// element's visible text otherwise.
	if evidence.Vision != nil && evidence.Vision.Text != "" {
		candidates = append(candidates, Candidate{
			Category:      CategoryVision,
			OCRConfidence: evidence.Vision.Confidence,
			Strategy: locator.Strategy{
				Type:     locator.TypeVisionOCR,
				Metadata: map[string]string{locator.MetaTargetText: evidence.Vision.Text},
			},
		})
	} else if dom.Text != "" && len(dom.Text) <= maxTextCandidateLen {
		candidates = append(candidates, Candidate{
			Category:      CategoryVision,
			RawConfidence: rawSyntheticVision,
			Strategy: locator.Strategy{
				Type:     locator.TypeVisionOCR,
				Metadata: map[string]string{locator.MetaTargetText: dom.Text},
			},
		})
	}

	// Evidence-scoring family.
	if evidence.Mouse != nil {
		endpoint := evidence.Mouse.Endpoint
		candidates = append(candidates, Candidate{
			Category:       CategoryEvidence,
			RawConfidence:  rawEvidence,
			TrailPattern:   evidence.Mouse.Pattern,
			AttributeCount: ctx.AttributeCount,
			Strategy: locator.Strategy{
				Type:  locator.TypeEvidenceScoring,
				Point: &endpoint,
				Metadata: map[string]string{
					locator.MetaTrailPattern: evidence.Mouse.Pattern,
				},
			},
		})
	}

	candidates = append(candidates, g.coordinateCandidate(evidence, ctx))
	return candidates, nil
}

func (g *Generator) coordinateCandidate(evidence Evidence, ctx ElementContext) Candidate {
	point := ctx.BoundingRect.Center()
	if evidence.Mouse != nil {
		point = evidence.Mouse.Endpoint
	}
	p := browser.Point{X: point.X, Y: point.Y}
	return Candidate{
		Category:      CategoryCoordinates,
		RawConfidence: rawCoordinates,
		Area:          ctx.BoundingRect.Area(),
		Strategy: locator.Strategy{
			Type:       locator.TypeCoordinates,
			Confidence: rawCoordinates,
			Point:      &p,
		},
	}
}
