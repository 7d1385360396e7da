// registry.go — Dispatch table mapping strategy variants to evaluators.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/vision"
)

// Evaluator maps one strategy to an evaluation against a live tab.
type Evaluator interface {
	Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	return f(ctx, tab, strategy)
}

// Registry resolves strategy types to their evaluators.
type Registry struct {
	evaluators map[Type]Evaluator
	logger     *slog.Logger
}

// NewRegistry wires the seven evaluators over the shared services.
func NewRegistry(sessions *browser.Sessions, axSvc *ax.Service, visionSvc *vision.Service, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithComponent(logger, "locator")

	return &Registry{
		logger: logger,
		evaluators: map[Type]Evaluator{
			TypeSemantic:        &semanticEvaluator{ax: axSvc, sessions: sessions},
			TypePower:           &powerEvaluator{ax: axSvc, sessions: sessions},
			TypeDOMCSS:          &cssEvaluator{sessions: sessions, variant: TypeDOMCSS, confidence: 0.75},
			TypeCSSPath:         &cssEvaluator{sessions: sessions, variant: TypeCSSPath, confidence: 0.65},
			TypeVisionOCR:       &visionEvaluator{vision: visionSvc},
			TypeEvidenceScoring: &evidenceEvaluator{sessions: sessions},
			TypeCoordinates:     EvaluatorFunc(evaluateCoordinates),
		},
	}
}

// Evaluate dispatches to the variant's evaluator and stamps the duration.
// Unknown variants yield a not-found evaluation rather than an error — the
// decision engine treats them like any other miss.
func (r *Registry) Evaluate(ctx context.Context, tab browser.TabID, strategy Strategy) Evaluation {
	start := time.Now()
	evaluator, ok := r.evaluators[strategy.Type]
	if !ok {
		eval := notFound(strategy.Type, fmt.Errorf("unknown strategy type %q", strategy.Type))
		eval.Duration = time.Since(start)
		return eval
	}

	eval := evaluator.Evaluate(ctx, tab, strategy)
	eval.Type = strategy.Type
	eval.Duration = time.Since(start)
	if eval.Error != "" {
		r.logger.Debug("strategy evaluation failed",
			logging.FieldStrategy, string(strategy.Type),
			"error", eval.Error)
	}
	return eval
}

// clickPointForNode resolves a node's box-model center.
func clickPointForNode(ctx context.Context, session *browser.Session, node browser.NodeID) (*browser.Point, error) {
	box, err := session.GetBoxModel(ctx, node)
	if err != nil {
		return nil, err
	}
	p := box.Center()
	return &p, nil
}
