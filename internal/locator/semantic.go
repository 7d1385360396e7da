// semantic.go — Accessibility-tree semantic strategy (role + optional name).
package locator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/browser"
)

type semanticEvaluator struct {
	ax       *ax.Service
	sessions *browser.Sessions
}

func (e *semanticEvaluator) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	role := strategy.Meta(MetaRole)
	if role == "" {
		return notFound(TypeSemantic, fmt.Errorf("semantic strategy requires a role"))
	}

	query := ax.Query{
		Role:      role,
		Name:      strategy.Meta(MetaName),
		ExactName: strategy.Meta(MetaExact) == "true",
	}
	applyStateFilters(&query, strategy)

	matches, err := e.ax.Find(ctx, tab, query)
	if err != nil {
		return notFound(TypeSemantic, err)
	}
	if len(matches) == 0 {
		return Evaluation{Type: TypeSemantic}
	}

	confidence := 0.85
	if query.Name != "" {
		confidence = 0.95
	}

	node := matches[0]
	eval := Evaluation{
		Type:          TypeSemantic,
		Found:         true,
		Confidence:    confidence,
		BackendNodeID: node.BackendNodeID,
		MatchCount:    len(matches),
		Metadata:      map[string]string{MetaRole: node.Role, MetaName: node.Name},
	}

	if node.BackendNodeID != 0 {
		if point, err := clickPointForNode(ctx, e.sessions.Session(tab), node.BackendNodeID); err == nil {
			eval.ClickPoint = point
		}
	}
	return eval
}

// applyStateFilters maps recorded state metadata onto the accessibility query.
func applyStateFilters(query *ax.Query, strategy Strategy) {
	if v := strategy.Meta(MetaExpanded); v != "" {
		b := v == "true"
		query.Expanded = &b
	}
	if v := strategy.Meta(MetaPressed); v != "" {
		b := v == "true"
		query.Pressed = &b
	}
	if v := strategy.Meta(MetaChecked); v != "" {
		checked := strings.ToLower(v)
		query.Checked = &checked
	}
	if v := strategy.Meta(MetaDisabled); v != "" {
		b := v == "true"
		query.Disabled = &b
	}
	if v := strategy.Meta(MetaSelected); v != "" {
		b := v == "true"
		query.Selected = &b
	}
	if v := strategy.Meta(MetaLevel); v != "" {
		if level, err := strconv.Atoi(v); err == nil {
			query.Level = &level
		}
	}
}
