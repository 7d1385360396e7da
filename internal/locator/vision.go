// vision.go — OCR-text strategy.
package locator

import (
	"context"
	"fmt"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/vision"
)

type visionEvaluator struct {
	vision *vision.Service
}

func (e *visionEvaluator) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	target := strategy.Meta(MetaTargetText)
	if target == "" {
		return notFound(TypeVisionOCR, fmt.Errorf("vision strategy requires target_text"))
	}

	match, err := e.vision.FindText(ctx, tab, target, strategy.Meta(MetaExact) == "true")
	if err != nil {
		return notFound(TypeVisionOCR, err)
	}
	if match == nil {
		return Evaluation{Type: TypeVisionOCR}
	}

	// OCR confidence [0,100] maps linearly into [0,0.90].
	confidence := match.Line.Confidence / 100 * 0.90
	point := match.ClickPoint
	return Evaluation{
		Type:       TypeVisionOCR,
		Found:      true,
		Confidence: confidence,
		ClickPoint: &point,
		MatchCount: 1,
		Metadata:   map[string]string{MetaText: match.Line.Text},
	}
}
