// chain.go — Fallback chain: the ordered strategy list tried per step.
package locator

import (
	"errors"
	"fmt"
	"time"
)

// Chain is the ordered list of locator strategies recorded for one step.
// Produced by the chain builder at record time; consumed read-only at
// playback.
type Chain struct {
	Strategies []Strategy `json:"strategies"`
	Primary    Type       `json:"primary"`
	RecordedAt time.Time  `json:"recorded_at"`
	Warning    string     `json:"warning,omitempty"`
}

// MaxStrategies is the hard cap on strategies per chain.
const MaxStrategies = 7

// Validate reports whether the chain satisfies the structural contract:
// at least one strategy, at least one with confidence ≥ 0.7, a coordinate
// strategy present, and no duplicate selectors.
func (c Chain) Validate() error {
	if len(c.Strategies) == 0 {
		return errors.New("chain has no strategies")
	}
	if len(c.Strategies) > MaxStrategies {
		return fmt.Errorf("chain has %d strategies, max %d", len(c.Strategies), MaxStrategies)
	}

	var hasConfident, hasCoordinates bool
	seen := make(map[string]bool)
	for _, s := range c.Strategies {
		if s.Confidence < 0 || s.Confidence > 1 {
			return fmt.Errorf("strategy %s has confidence %v outside [0,1]", s.Type, s.Confidence)
		}
		if s.Confidence >= 0.7 {
			hasConfident = true
		}
		if s.Type == TypeCoordinates {
			hasCoordinates = true
		}
		if s.Selector != "" {
			if seen[s.Selector] {
				return fmt.Errorf("duplicate selector %q", s.Selector)
			}
			seen[s.Selector] = true
		}
	}
	if !hasConfident {
		return errors.New("chain has no strategy with confidence >= 0.7")
	}
	if !hasCoordinates {
		return errors.New("chain has no coordinate fallback")
	}
	return nil
}
