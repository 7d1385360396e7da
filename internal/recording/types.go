// types.go — Recording model: a named, ordered sequence of steps captured
// from user interactions, replayable against later versions of the page.
package recording

import (
	"fmt"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/locator"
)

// CurrentSchemaVersion is stamped on new and migrated recordings.
const CurrentSchemaVersion = 3

// Step event types.
const (
	EventOpen             = "open"
	EventInput            = "input"
	EventClick            = "click"
	EventDropdown         = "dropdown"
	EventConditionalClick = "conditional-click"
)

// How a step's target was captured.
const (
	ViaDOM    = "dom"
	ViaVision = "vision"
)

// Conditional interaction types.
const (
	InteractClick  = "click"
	InteractType   = "type"
	InteractScroll = "scroll"
)

// Recording is a captured user flow. Mutated only by the editor; playback
// treats it as read-only.
type Recording struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	CreatedAt     string `json:"created_at"` // RFC3339
	SchemaVersion int    `json:"schema_version"`

	Steps          []Step `json:"steps"`
	LoopStartIndex int    `json:"loop_start_index"`
	GlobalDelayMs  int    `json:"global_delay_ms"`

	ConditionalDefaults *ConditionalDefaults `json:"conditional_defaults,omitempty"`
	CSV                 *CSVData             `json:"csv,omitempty"`
}

// ConditionalDefaults seed new conditional-click steps in the editor.
type ConditionalDefaults struct {
	SearchTerms    []string `json:"search_terms,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// CSVData is an inline data table for data-driven replay.
type CSVData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Step is one recorded action. Value tokens are substituted per CSV row at
// playback; the step itself is never mutated.
type Step struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	Event       string `json:"event"`
	Value       string `json:"value,omitempty"`
	Selector    string `json:"selector,omitempty"`
	XPath       string `json:"xpath,omitempty"`
	URL         string `json:"url,omitempty"`
	RecordedVia string `json:"recorded_via,omitempty"`

	BoundingRect  *browser.Rect  `json:"bounding_rect,omitempty"`
	Point         *browser.Point `json:"point,omitempty"`
	OCRText       string         `json:"ocr_text,omitempty"`
	OCRConfidence float64        `json:"ocr_confidence,omitempty"`

	InputText    string `json:"input_text,omitempty"`
	VisionTarget string `json:"vision_target,omitempty"`
	OptionText   string `json:"option_text,omitempty"`

	DelaySeconds *float64 `json:"delay_seconds,omitempty"`

	Conditional *ConditionalConfig `json:"conditional_config,omitempty"`
	Chain       *locator.Chain     `json:"fallback_chain,omitempty"`
}

// ConditionalConfig drives the conditional-click loop. Immutable once
// attached to a step.
type ConditionalConfig struct {
	Enabled         bool     `json:"enabled"`
	SearchTerms     []string `json:"search_terms"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	PollIntervalMs  int      `json:"poll_interval_ms"`
	InteractionType string   `json:"interaction_type"`
	TypeText        string   `json:"type_text,omitempty"`
	DropdownOption  string   `json:"dropdown_option,omitempty"`
}

// Validate checks the conditional config's bounds.
func (c *ConditionalConfig) Validate() error {
	if len(c.SearchTerms) < 1 || len(c.SearchTerms) > 20 {
		return fmt.Errorf("search terms: need 1-20, got %d", len(c.SearchTerms))
	}
	for _, term := range c.SearchTerms {
		if len(term) > 100 {
			return fmt.Errorf("search term exceeds 100 characters")
		}
	}
	if c.TimeoutSeconds < 1 || c.TimeoutSeconds > 3600 {
		return fmt.Errorf("timeout seconds: need 1-3600, got %d", c.TimeoutSeconds)
	}
	if c.PollIntervalMs < 250 || c.PollIntervalMs > 10000 {
		return fmt.Errorf("poll interval ms: need 250-10000, got %d", c.PollIntervalMs)
	}
	switch c.InteractionType {
	case InteractClick, InteractScroll:
	case InteractType:
		if c.TypeText == "" {
			return fmt.Errorf("interaction type %q requires type text", InteractType)
		}
	default:
		return fmt.Errorf("unknown interaction type %q", c.InteractionType)
	}
	return nil
}

// Validate checks the recording's structural invariants.
func (r *Recording) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("recording has no id")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("recording %s has no steps", r.ID)
	}
	if r.LoopStartIndex < 0 || r.LoopStartIndex > len(r.Steps) {
		return fmt.Errorf("loop start index %d outside [0,%d]", r.LoopStartIndex, len(r.Steps))
	}
	if r.GlobalDelayMs < 0 || r.GlobalDelayMs > 60000 {
		return fmt.Errorf("global delay %dms outside [0,60000]", r.GlobalDelayMs)
	}

	for i := range r.Steps {
		if err := r.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks one step's invariants.
func (s *Step) Validate() error {
	switch s.Event {
	case EventOpen, EventInput, EventClick, EventDropdown, EventConditionalClick:
	default:
		return fmt.Errorf("unknown event %q", s.Event)
	}

	if s.Event == EventConditionalClick {
		if s.Conditional == nil {
			return fmt.Errorf("conditional-click step requires a conditional config")
		}
		if err := s.Conditional.Validate(); err != nil {
			return fmt.Errorf("conditional config: %w", err)
		}
	}

	switch s.RecordedVia {
	case ViaVision:
		if s.Point == nil && s.BoundingRect == nil {
			return fmt.Errorf("vision-recorded step requires coordinates")
		}
	case ViaDOM:
		if s.Event != EventOpen && s.Selector == "" && s.XPath == "" {
			return fmt.Errorf("dom-recorded step requires a selector or xpath")
		}
	}

	if s.DelaySeconds != nil && *s.DelaySeconds < 0 {
		return fmt.Errorf("delay seconds must not be negative")
	}
	return nil
}

// ClickPoint returns the step's recorded click point: the explicit point if
// present, else the bounding-rect center.
func (s *Step) ClickPoint() *browser.Point {
	if s.Point != nil {
		return s.Point
	}
	if s.BoundingRect != nil {
		p := s.BoundingRect.Center()
		return &p
	}
	return nil
}
