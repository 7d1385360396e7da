// evidence.go — Mouse-evidence strategy: hit-test the recorded endpoint.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/replaydeck/replaydeck/internal/browser"
)

type evidenceEvaluator struct {
	sessions *browser.Sessions
}

func (e *evidenceEvaluator) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	if strategy.Point == nil {
		return notFound(TypeEvidenceScoring, fmt.Errorf("evidence strategy requires an endpoint"))
	}

	session := e.sessions.Session(tab)
	node, err := session.GetNodeForLocation(ctx, strategy.Point.X, strategy.Point.Y)
	if err != nil {
		if errors.Is(err, browser.ErrNodeNotFound) {
			return Evaluation{Type: TypeEvidenceScoring}
		}
		return notFound(TypeEvidenceScoring, err)
	}
	if node == 0 {
		return Evaluation{Type: TypeEvidenceScoring}
	}

	point := *strategy.Point
	return Evaluation{
		Type:          TypeEvidenceScoring,
		Found:         true,
		Confidence:    0.80,
		BackendNodeID: node,
		ClickPoint:    &point,
		MatchCount:    1,
	}
}
