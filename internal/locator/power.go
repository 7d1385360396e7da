// power.go — Composite text/label/placeholder/test-id strategy.
// Tries each recorded facet in order; first non-empty match wins.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/browser"
)

type powerEvaluator struct {
	ax       *ax.Service
	sessions *browser.Sessions
}

func (e *powerEvaluator) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	if text := strategy.Meta(MetaText); text != "" {
		if eval, ok := e.byAccessibleName(ctx, tab, text, false); ok {
			return eval
		}
	}
	if label := strategy.Meta(MetaLabel); label != "" {
		if eval, ok := e.byAccessibleName(ctx, tab, label, true); ok {
			return eval
		}
	}

	attributeQueries := []struct {
		attr       string
		value      string
		confidence float64
	}{
		{"data-testid", strategy.Meta(MetaTestID), 0.95},
		{"placeholder", strategy.Meta(MetaPlaceholder), 0.80},
		{"alt", strategy.Meta(MetaAlt), 0.80},
		{"title", strategy.Meta(MetaTitle), 0.75},
	}
	for _, q := range attributeQueries {
		if q.value == "" {
			continue
		}
		if eval, ok := e.byAttribute(ctx, tab, q.attr, q.value, q.confidence); ok {
			return eval
		}
	}

	return Evaluation{Type: TypePower}
}

// byAccessibleName matches on accessible name: exact at 0.90, substring at
// 0.80. When formOnly is set, only form-interactive roles are considered and
// any match scores 0.85.
func (e *powerEvaluator) byAccessibleName(ctx context.Context, tab browser.TabID, text string, formOnly bool) (Evaluation, bool) {
	tree, err := e.ax.Tree(ctx, tab)
	if err != nil {
		return notFound(TypePower, err), true
	}

	var exact, substring []browser.AXNode
	needle := strings.ToLower(text)
	for _, node := range tree {
		if node.Ignored || node.Hidden {
			continue
		}
		if formOnly && !ax.FormRoles[strings.ToLower(node.Role)] {
			continue
		}
		name := strings.ToLower(node.Name)
		switch {
		case name == needle:
			exact = append(exact, node)
		case strings.Contains(name, needle):
			substring = append(substring, node)
		}
	}

	confidence := 0.90
	matches := exact
	if len(matches) == 0 {
		confidence = 0.80
		matches = substring
	}
	if formOnly && len(matches) > 0 {
		confidence = 0.85
	}
	if len(matches) == 0 {
		return Evaluation{}, false
	}

	node := matches[0]
	eval := Evaluation{
		Type:          TypePower,
		Found:         true,
		Confidence:    confidence,
		BackendNodeID: node.BackendNodeID,
		MatchCount:    len(exact) + len(substring),
		Metadata:      map[string]string{MetaRole: node.Role, MetaName: node.Name},
	}
	if node.BackendNodeID != 0 {
		if point, err := clickPointForNode(ctx, e.sessions.Session(tab), node.BackendNodeID); err == nil {
			eval.ClickPoint = point
		}
	}
	return eval, true
}

func (e *powerEvaluator) byAttribute(ctx context.Context, tab browser.TabID, attr, value string, confidence float64) (Evaluation, bool) {
	session := e.sessions.Session(tab)
	selector := fmt.Sprintf(`[%s=%q]`, attr, value)
	nodes, err := session.QuerySelectorAll(ctx, selector)
	if err != nil {
		return notFound(TypePower, err), true
	}
	if len(nodes) == 0 {
		return Evaluation{}, false
	}

	eval := Evaluation{
		Type:          TypePower,
		Found:         true,
		Confidence:    confidence,
		BackendNodeID: nodes[0],
		MatchCount:    len(nodes),
		Metadata:      map[string]string{"attribute": attr},
	}
	if point, err := clickPointForNode(ctx, session, nodes[0]); err == nil {
		eval.ClickPoint = point
	}
	return eval, true
}
