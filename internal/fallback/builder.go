// builder.go — Chain builder: scored candidates → final fallback chain.
// Enforces the hard cap of 7, category diversity, similar-selector dedup,
// and the guaranteed coordinate backstop. Reports every exclusion with a
// reason code.
package fallback

import (
	"sort"
	"time"

	"github.com/replaydeck/replaydeck/internal/locator"
)

// Exclusion reason codes.
type Reason string

const (
	ReasonDuplicateSelector    Reason = "duplicate_selector"
	ReasonSimilarSelector      Reason = "similar_selector"
	ReasonLowConfidence        Reason = "low_confidence"
	ReasonMaxStrategiesReached Reason = "max_strategies_reached"
	ReasonTypeAlreadyCovered   Reason = "type_already_covered"
	ReasonInvalidCandidate     Reason = "invalid_candidate"
)

// Excluded is a candidate the builder left out, with why.
type Excluded struct {
	Strategy locator.Strategy `json:"strategy"`
	Reason   Reason           `json:"reason"`
}

const (
	// minCandidateConfidence is the floor below which candidates are dropped
	// (unless needed to reach the two-strategy minimum).
	minCandidateConfidence = 0.3
	// similarityThreshold merges selectors whose character-set Jaccard
	// similarity reaches it.
	similarityThreshold = 0.9
	// perCategoryCap bounds candidates per category until diversity is met.
	perCategoryCap = 2
	// diversityTarget is how many distinct categories lift the per-category cap.
	diversityTarget = 3
	// minChainLength is the preferred minimum when candidates allow.
	minChainLength = 2
)

// Builder assembles fallback chains from scored candidates.
type Builder struct{}

// NewBuilder creates a chain builder.
func NewBuilder() *Builder { return &Builder{} }

// Build produces a chain from scored candidates, stamped with now.
func (b *Builder) Build(candidates []Candidate, now time.Time) (locator.Chain, []Excluded) {
	return b.build(candidates, now)
}

// Rebuild re-invokes the builder with additional candidates, producing an
// optimized chain that preserves the original record timestamp.
func (b *Builder) Rebuild(chain locator.Chain, extra []Candidate) (locator.Chain, []Excluded) {
	candidates := make([]Candidate, 0, len(chain.Strategies)+len(extra))
	for _, s := range chain.Strategies {
		candidates = append(candidates, Candidate{Strategy: s, Category: categoryForStrategy(s)})
	}
	candidates = append(candidates, extra...)

	rebuilt, excluded := b.build(candidates, chain.RecordedAt)
	return rebuilt, excluded
}

func (b *Builder) build(candidates []Candidate, now time.Time) (locator.Chain, []Excluded) {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Strategy.Confidence > ordered[j].Strategy.Confidence
	})

	var (
		included   []locator.Strategy
		excluded   []Excluded
		coordinate *locator.Strategy
		selectors  []string
		catCounts  = map[Category]int{CategoryCoordinates: 1} // backstop reserved up front
	)

	exclude := func(s locator.Strategy, reason Reason) {
		excluded = append(excluded, Excluded{Strategy: s, Reason: reason})
	}

	for _, c := range ordered {
		s := c.Strategy

		if c.Strategy.Type == locator.TypeCoordinates {
			if coordinate == nil {
				copied := s
				coordinate = &copied
			} else {
				exclude(s, ReasonDuplicateSelector)
			}
			continue
		}

		if !s.Type.Valid() || s.Confidence < 0 || s.Confidence > 1 {
			exclude(s, ReasonInvalidCandidate)
			continue
		}
		if s.Confidence < minCandidateConfidence {
			exclude(s, ReasonLowConfidence)
			continue
		}
		if len(included) >= locator.MaxStrategies-1 { // one slot reserved for coordinates
			exclude(s, ReasonMaxStrategiesReached)
			continue
		}

		if s.Selector != "" {
			if reason, dropped := selectorConflict(selectors, s.Selector); dropped {
				exclude(s, reason)
				continue
			}
		}

		category := c.Category
		if category == "" {
			category = categoryForStrategy(s)
		}
		if catCounts[category] >= perCategoryCap && distinctCategories(catCounts) < diversityTarget {
			exclude(s, ReasonTypeAlreadyCovered)
			continue
		}

		included = append(included, s)
		catCounts[category]++
		if s.Selector != "" {
			selectors = append(selectors, s.Selector)
		}
	}

	// Preferred minimum of two: re-admit the best low-confidence exclusion
	// when nothing else is available.
	if len(included) < minChainLength {
		for i, ex := range excluded {
			if ex.Reason == ReasonLowConfidence {
				included = append(included, ex.Strategy)
				excluded = append(excluded[:i], excluded[i+1:]...)
				break
			}
		}
	}

	if coordinate == nil {
		coordinate = &locator.Strategy{Type: locator.TypeCoordinates, Confidence: rawCoordinates}
	}
	included = append(included, *coordinate)
	sort.SliceStable(included, func(i, j int) bool {
		return included[i].Confidence > included[j].Confidence
	})

	chain := locator.Chain{
		Strategies: included,
		Primary:    included[0].Type,
		RecordedAt: now,
	}
	return chain, excluded
}

// selectorConflict checks an incoming selector against the already-included
// ones. Higher-confidence candidates were processed first, so a duplicate or
// near-duplicate always loses to its predecessor.
func selectorConflict(existing []string, selector string) (Reason, bool) {
	for _, prev := range existing {
		if prev == selector {
			return ReasonDuplicateSelector, true
		}
		if JaccardSimilarity(prev, selector) >= similarityThreshold {
			return ReasonSimilarSelector, true
		}
	}
	return "", false
}

func distinctCategories(counts map[Category]int) int {
	n := 0
	for _, count := range counts {
		if count > 0 {
			n++
		}
	}
	return n
}

func categoryForStrategy(s locator.Strategy) Category {
	switch s.Type {
	case locator.TypeCoordinates:
		return CategoryCoordinates
	case locator.TypeEvidenceScoring:
		return CategoryEvidence
	case locator.TypeVisionOCR:
		return CategoryVision
	case locator.TypeSemantic:
		return CategorySemantic
	case locator.TypePower:
		if s.Meta(locator.MetaTestID) != "" {
			return CategoryDOM
		}
		return CategorySemantic
	default:
		return CategoryDOM
	}
}
