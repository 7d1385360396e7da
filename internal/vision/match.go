// match.go — Text matching over recognized OCR lines.
package vision

import (
	"context"
	"strings"

	"github.com/replaydeck/replaydeck/internal/browser"
)

// Match is a recognized line matching a target text, with the click point
// at the line's bbox center.
type Match struct {
	Line       Line          `json:"line"`
	Exact      bool          `json:"exact"`
	ClickPoint browser.Point `json:"click_point"`
}

// FindText locates targetText among the tab's OCR lines. Of matching lines
// with confidence ≥ 60, exact matches win over substring matches, then
// highest confidence. Returns nil when nothing matches.
func (s *Service) FindText(ctx context.Context, tab browser.TabID, targetText string, exactOnly bool) (*Match, error) {
	lines, err := s.Lines(ctx, tab)
	if err != nil {
		return nil, err
	}
	return bestMatch(lines, targetText, exactOnly), nil
}

// FindAnyText scans for the first search term with a match, in term order.
// Returns the matched term alongside the match.
func (s *Service) FindAnyText(ctx context.Context, tab browser.TabID, terms []string) (string, *Match, error) {
	lines, err := s.Lines(ctx, tab)
	if err != nil {
		return "", nil, err
	}
	for _, term := range terms {
		if m := bestMatch(lines, term, false); m != nil {
			return term, m, nil
		}
	}
	return "", nil, nil
}

func bestMatch(lines []Line, target string, exactOnly bool) *Match {
	needle := strings.ToLower(strings.TrimSpace(target))
	if needle == "" {
		return nil
	}

	var best *Match
	for _, line := range lines {
		if line.Confidence < minLineConfidence {
			continue
		}
		haystack := strings.ToLower(strings.TrimSpace(line.Text))
		exact := haystack == needle
		if !exact && (exactOnly || !strings.Contains(haystack, needle)) {
			continue
		}
		candidate := &Match{Line: line, Exact: exact, ClickPoint: line.BBox.Center()}
		if best == nil || better(candidate, best) {
			best = candidate
		}
	}
	return best
}

func better(a, b *Match) bool {
	if a.Exact != b.Exact {
		return a.Exact
	}
	return a.Line.Confidence > b.Line.Confidence
}
