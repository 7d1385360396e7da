// scorer.go — Strategy scorer: candidate → final confidence.
// score = baseWeight(variant) × selectorQuality × contextFactor, adjusted by
// per-variant multipliers, then bonuses and penalties, clamped to [0,1].
package fallback

import (
	"strconv"
	"strings"

	"github.com/replaydeck/replaydeck/internal/ax"
	"github.com/replaydeck/replaydeck/internal/locator"
)

// Category groups candidates for the builder's diversity rule.
type Category string

const (
	CategorySemantic    Category = "semantic"
	CategoryDOM         Category = "dom"
	CategoryVision      Category = "vision"
	CategoryEvidence    Category = "evidence"
	CategoryCoordinates Category = "coordinates"
)

// Candidate is one scored-or-unscored chain candidate.
type Candidate struct {
	Strategy locator.Strategy
	Category Category

	RawConfidence float64
	// Vision extras.
	OCRConfidence float64 // [0,100]; 0 means synthetic (no OCR reading)
	// Evidence extras.
	TrailPattern   string
	AttributeCount int
	// Coordinate extras.
	Area float64
}

// Adjustment records one applied bonus, penalty, or multiplier.
type Adjustment struct {
	Reason string  `json:"reason"`
	Delta  float64 `json:"delta"`
}

// ScoreBreakdown is the scorer's full audit trail for one candidate.
type ScoreBreakdown struct {
	Base            float64      `json:"base"`
	SelectorQuality float64      `json:"selector_quality"`
	ContextFactor   float64      `json:"context_factor"`
	Multipliers     []Adjustment `json:"multipliers,omitempty"`
	Bonuses         []Adjustment `json:"bonuses,omitempty"`
	Penalties       []Adjustment `json:"penalties,omitempty"`
	Final           float64      `json:"final"`
}

var genericWords = map[string]bool{
	"ok": true, "okay": true, "submit": true, "next": true, "back": true,
	"cancel": true, "yes": true, "no": true, "continue": true, "close": true,
	"save": true, "delete": true, "edit": true, "search": true, "go": true,
}

// Score computes the final confidence for one candidate in its element
// context and returns the full breakdown.
func Score(c Candidate, ctx ElementContext) ScoreBreakdown {
	if c.Strategy.Type == locator.TypeVisionOCR {
		return scoreVision(c)
	}

	breakdown := ScoreBreakdown{
		Base:            locator.BaseWeight(c.Strategy.Type),
		SelectorQuality: 1.0,
		ContextFactor:   1.0,
	}

	analysis := SelectorAnalysis{Stability: 1.0, Uniqueness: 0.5}
	if c.Strategy.Selector != "" {
		analysis = AnalyzeSelector(c.Strategy.Selector)
		breakdown.SelectorQuality = analysis.Stability * (0.7 + 0.3*analysis.Uniqueness)
	}
	if ctx.InShadowDOM && (c.Strategy.Type == locator.TypeDOMCSS || c.Strategy.Type == locator.TypeCSSPath) {
		breakdown.ContextFactor = 0.9
	}

	score := breakdown.Base * breakdown.SelectorQuality * breakdown.ContextFactor
	score = applyVariantRules(c, &breakdown, score)

	// Bonuses.
	if ctx.HasTestID {
		score = addBonus(&breakdown, score, "test_id", 0.10)
	}
	if ctx.HasStableID {
		score = addBonus(&breakdown, score, "stable_id", 0.05)
	}
	if ctx.HasAccessibleName && (c.Strategy.Type == locator.TypeSemantic || c.Strategy.Type == locator.TypePower) {
		score = addBonus(&breakdown, score, "accessible_name", 0.10)
	}

	// Penalties.
	if analysis.Stability < 1.0 {
		score = addPenalty(&breakdown, score, "dynamic_pattern", -0.30)
	}
	if analysis.HasPositional {
		score = addPenalty(&breakdown, score, "positional_selector", -0.15)
	}
	if analysis.Complexity > 5 {
		score = addPenalty(&breakdown, score, "high_complexity", -0.10)
	}

	breakdown.Final = clamp01(score)
	return breakdown
}

func scoreVision(c Candidate) ScoreBreakdown {
	breakdown := ScoreBreakdown{
		Base:            locator.BaseWeight(locator.TypeVisionOCR),
		SelectorQuality: 1.0,
		ContextFactor:   1.0,
	}

	score := c.RawConfidence
	if c.OCRConfidence > 0 {
		// OCR confidence [0,100] maps linearly into [0,0.90].
		score = c.OCRConfidence / 100 * 0.90
		breakdown.Multipliers = append(breakdown.Multipliers, Adjustment{Reason: "ocr_confidence", Delta: score})
	}

	text := c.Strategy.Meta(locator.MetaTargetText)
	if n := len(strings.TrimSpace(text)); n >= 10 && n <= 30 {
		score = addBonus(&breakdown, score, "distinctive_text", 0.05)
	}

	breakdown.Final = clamp01(score)
	return breakdown
}

func applyVariantRules(c Candidate, breakdown *ScoreBreakdown, score float64) float64 {
	switch c.Strategy.Type {
	case locator.TypeSemantic:
		role := strings.ToLower(c.Strategy.Meta(locator.MetaRole))
		if c.Strategy.Meta(locator.MetaName) == "" {
			score = multiply(breakdown, score, "role_without_name", 0.85)
		}
		if ax.InteractiveRoles[role] {
			score = addBonus(breakdown, score, "interactive_role", 0.02)
		}

	case locator.TypePower:
		text := c.Strategy.Meta(locator.MetaText)
		if text == "" {
			text = c.Strategy.Meta(locator.MetaLabel)
		}
		if text != "" {
			lowered := strings.ToLower(strings.TrimSpace(text))
			if genericWords[lowered] {
				score = multiply(breakdown, score, "generic_word", 0.85)
			}
			if _, err := strconv.ParseFloat(lowered, 64); err == nil {
				score = multiply(breakdown, score, "numeric_text", 0.70)
			}
			if len(lowered) < 3 {
				score = multiply(breakdown, score, "short_text", 0.80)
			}
		}

	case locator.TypeEvidenceScoring:
		switch c.TrailPattern {
		case TrailDirect:
			score = addBonus(breakdown, score, "direct_trail", 0.05)
		case TrailHesitant:
			score = multiply(breakdown, score, "hesitant_trail", 0.95)
		case TrailCorrective:
			score = multiply(breakdown, score, "corrective_trail", 0.90)
		}
		if c.AttributeCount >= 3 {
			score = addBonus(breakdown, score, "rich_attributes", 0.05)
		}

	case locator.TypeCoordinates:
		if c.Area >= 10000 {
			score = addBonus(breakdown, score, "large_target", 0.05)
		} else if c.Area > 0 && c.Area < 500 {
			score = multiply(breakdown, score, "tiny_target", 0.80)
		}
	}
	return score
}

func addBonus(breakdown *ScoreBreakdown, score float64, reason string, delta float64) float64 {
	breakdown.Bonuses = append(breakdown.Bonuses, Adjustment{Reason: reason, Delta: delta})
	return score + delta
}

func addPenalty(breakdown *ScoreBreakdown, score float64, reason string, delta float64) float64 {
	breakdown.Penalties = append(breakdown.Penalties, Adjustment{Reason: reason, Delta: delta})
	return score + delta
}

func multiply(breakdown *ScoreBreakdown, score float64, reason string, factor float64) float64 {
	breakdown.Multipliers = append(breakdown.Multipliers, Adjustment{Reason: reason, Delta: factor})
	return score * factor
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
