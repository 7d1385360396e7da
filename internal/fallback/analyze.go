// analyze.go — Selector quality analysis feeding the strategy scorer.
package fallback

import (
	"regexp"
	"strings"
)

// SelectorAnalysis is the scorer's view of one selector string.
type SelectorAnalysis struct {
	Stability     float64 // 1.0 stable, 0.7 when a dynamic pattern matches
	Complexity    float64 // combinator/pseudo/attribute count, clamped to 10
	HasPositional bool    // nth-child / nth-of-type / first-child / last-child
	Uniqueness    float64 // estimated probability the selector is unique
}

var (
	pureIDPattern     = regexp.MustCompile(`^#[A-Za-z][\w-]*$`)
	pureTestIDPattern = regexp.MustCompile(`^\[data-testid=("[^"]*"|'[^']*'|[^\]]*)\]$`)
	bareTagPattern    = regexp.MustCompile(`^[a-zA-Z]+$`)
	childCombinator   = regexp.MustCompile(`\s*>\s*`)
)

var genericTags = map[string]bool{
	"div": true, "span": true, "p": true, "a": true, "li": true,
	"ul": true, "ol": true, "td": true, "tr": true, "table": true,
	"section": true, "article": true, "i": true, "b": true,
}

var positionalPseudos = []string{"nth-child", "nth-of-type", "first-child", "last-child"}

// AnalyzeSelector scores the selector's stability, complexity, positional
// dependence, and uniqueness estimate.
func AnalyzeSelector(selector string) SelectorAnalysis {
	analysis := SelectorAnalysis{Stability: 1.0, Uniqueness: 0.5}
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return analysis
	}

	if IsDynamic(trimmed) {
		analysis.Stability = 0.7
	}

	for _, pseudo := range positionalPseudos {
		if strings.Contains(trimmed, pseudo) {
			analysis.HasPositional = true
			break
		}
	}

	analysis.Complexity = selectorComplexity(trimmed)
	analysis.Uniqueness = uniquenessEstimate(trimmed, analysis.Stability == 1.0)
	return analysis
}

// selectorComplexity counts structural features: descendant and child
// combinators, pseudo-class colons, attribute brackets, and class dots at
// half weight. Clamped to 10.
func selectorComplexity(selector string) float64 {
	var complexity float64
	inBracket := false
	prevSpace := false
	// Spaces around '>' are part of the child combinator, not descendants.
	selector = childCombinator.ReplaceAllString(selector, ">")
	for _, r := range selector {
		switch r {
		case '[':
			inBracket = true
			complexity++
		case ']':
			inBracket = false
		case '>':
			if !inBracket {
				complexity++
			}
		case ':':
			if !inBracket {
				complexity++
			}
		case '.':
			if !inBracket {
				complexity += 0.5
			}
		case ' ':
			if !inBracket && !prevSpace {
				complexity++
			}
		}
		prevSpace = r == ' '
	}
	if complexity > 10 {
		complexity = 10
	}
	return complexity
}

func uniquenessEstimate(selector string, stable bool) float64 {
	if stable && (pureIDPattern.MatchString(selector) || pureTestIDPattern.MatchString(selector)) {
		return 0.95
	}
	if bareTagPattern.MatchString(selector) && genericTags[strings.ToLower(selector)] {
		return 0.20
	}

	uniqueness := 0.5
	if selectorSegments(selector) >= 3 {
		uniqueness += 0.10
	}
	return uniqueness
}

// selectorSegments counts compound selectors separated by combinators.
func selectorSegments(selector string) int {
	normalized := strings.ReplaceAll(selector, ">", " ")
	segments := 0
	for _, field := range strings.Fields(normalized) {
		if field != "" {
			segments++
		}
	}
	return segments
}

// JaccardSimilarity computes set similarity over the two selectors'
// character sets. Used by the builder to merge near-duplicate selectors.
func JaccardSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	setA := charSet(a)
	setB := charSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for r := range setA {
		if setB[r] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func charSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}
