// coordinates.go — Raw-coordinate backstop strategy.
package locator

import (
	"context"
	"fmt"

	"github.com/replaydeck/replaydeck/internal/browser"
)

func evaluateCoordinates(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	if strategy.Point == nil {
		return notFound(TypeCoordinates, fmt.Errorf("coordinate strategy requires a point"))
	}

	point := *strategy.Point
	return Evaluation{
		Type:       TypeCoordinates,
		Found:      true,
		Confidence: 0.60,
		ClickPoint: &point,
		MatchCount: 1,
	}
}
