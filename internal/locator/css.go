// css.go — Recorded-selector strategies: short-form CSS and computed
// long-form path / XPath. Same evaluation shape, different confidence.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/replaydeck/replaydeck/internal/browser"
)

type cssEvaluator struct {
	sessions   *browser.Sessions
	variant    Type
	confidence float64
}

func (e *cssEvaluator) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	session := e.sessions.Session(tab)

	// css_path strategies may carry an XPath instead of (or alongside) the
	// computed CSS path.
	if e.variant == TypeCSSPath && strategy.Selector == "" {
		if xpath := strategy.Meta(MetaXPath); xpath != "" {
			return e.evaluateXPath(ctx, session, xpath)
		}
	}
	if strategy.Selector == "" {
		return notFound(e.variant, fmt.Errorf("%s strategy requires a selector", e.variant))
	}

	nodes, err := session.QuerySelectorAll(ctx, strategy.Selector)
	if err != nil {
		if errors.Is(err, browser.ErrNodeNotFound) {
			return Evaluation{Type: e.variant}
		}
		return notFound(e.variant, err)
	}
	if len(nodes) == 0 {
		return Evaluation{Type: e.variant}
	}

	eval := Evaluation{
		Type:          e.variant,
		Found:         true,
		Confidence:    e.confidence,
		BackendNodeID: nodes[0],
		MatchCount:    len(nodes),
	}
	if point, err := clickPointForNode(ctx, session, nodes[0]); err == nil {
		eval.ClickPoint = point
	}
	return eval
}

func (e *cssEvaluator) evaluateXPath(ctx context.Context, session *browser.Session, xpath string) Evaluation {
	nodes, err := session.QueryXPath(ctx, xpath)
	if err != nil {
		return notFound(e.variant, err)
	}
	if len(nodes) == 0 {
		return Evaluation{Type: e.variant}
	}

	eval := Evaluation{
		Type:          e.variant,
		Found:         true,
		Confidence:    e.confidence,
		BackendNodeID: nodes[0],
		MatchCount:    len(nodes),
	}
	if point, err := clickPointForNode(ctx, session, nodes[0]); err == nil {
		eval.ClickPoint = point
	}
	return eval
}
