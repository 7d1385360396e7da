// recorder.go — Record-phase session manager.
// The evidence collector (extension side) streams captured actions in; each
// one becomes a step with a generated fallback chain. Stop validates and
// persists the finished recording.
package recorder

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/fallback"
	"github.com/replaydeck/replaydeck/internal/logging"
	"github.com/replaydeck/replaydeck/internal/recording"
	"github.com/replaydeck/replaydeck/internal/util"
)

// ActionCapture is one recorded user action with its evidence bundle.
type ActionCapture struct {
	Event       string                       `json:"event"`
	Label       string                       `json:"label,omitempty"`
	Value       string                       `json:"value,omitempty"`
	Selector    string                       `json:"selector,omitempty"`
	XPath       string                       `json:"xpath,omitempty"`
	URL         string                       `json:"url,omitempty"`
	RecordedVia string                       `json:"recorded_via,omitempty"`
	Evidence    fallback.Evidence            `json:"evidence"`
	Conditional *recording.ConditionalConfig `json:"conditional_config,omitempty"`
}

// Recorder owns in-progress recording sessions, one per tab.
type Recorder struct {
	generator *fallback.Generator
	store     *recording.Store
	logger    *slog.Logger

	mu     sync.Mutex
	active map[browser.TabID]*recording.Recording

	now func() time.Time
}

// New creates a recorder.
func New(store *recording.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{
		generator: fallback.NewGenerator(logger),
		store:     store,
		logger:    logging.WithComponent(logger, "recorder"),
		active:    make(map[browser.TabID]*recording.Recording),
		now:       time.Now,
	}
}

// Start opens a recording session for the tab and returns the recording id.
func (r *Recorder) Start(tab browser.TabID, name, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[tab]; busy {
		return "", fmt.Errorf("tab %s is already recording", tab)
	}

	if name == "" {
		name = "Recording " + r.now().Format("2006-01-02 15:04")
	}
	rec := &recording.Recording{
		ID:            uuid.NewString(),
		Name:          name,
		URL:           url,
		CreatedAt:     util.FormatTimestamp(r.now()),
		SchemaVersion: recording.CurrentSchemaVersion,
	}
	r.active[tab] = rec
	r.logger.Info("recording started", logging.FieldRecordingID, rec.ID, "tab", string(tab))
	return rec.ID, nil
}

// Capture appends one action to the tab's active recording, generating its
// fallback chain from the evidence bundle.
func (r *Recorder) Capture(tab browser.TabID, capture ActionCapture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[tab]
	if !ok {
		return fmt.Errorf("tab %s is not recording", tab)
	}

	step := recording.Step{
		ID:          uuid.NewString(),
		Label:       capture.Label,
		Event:       capture.Event,
		Value:       capture.Value,
		Selector:    capture.Selector,
		XPath:       capture.XPath,
		URL:         capture.URL,
		RecordedVia: capture.RecordedVia,
		Conditional: capture.Conditional,
	}
	if step.RecordedVia == "" {
		step.RecordedVia = recording.ViaDOM
	}
	if step.Selector == "" && capture.Evidence.DOM.CSSPath != "" {
		step.Selector = capture.Evidence.DOM.CSSPath
	}
	if step.XPath == "" {
		step.XPath = capture.Evidence.DOM.XPath
	}

	if rect := capture.Evidence.DOM.BoundingRect; rect.Area() > 0 {
		step.BoundingRect = &rect
	}
	if capture.Evidence.Mouse != nil {
		point := capture.Evidence.Mouse.Endpoint
		step.Point = &point
	}
	if capture.Evidence.Vision != nil {
		step.OCRText = capture.Evidence.Vision.Text
		step.OCRConfidence = capture.Evidence.Vision.Confidence
	}

	// Navigation steps carry no element evidence; everything else gets a
	// generated chain.
	if capture.Event != recording.EventOpen {
		chain, excluded := r.generator.Generate(capture.Evidence, capture.Event)
		step.Chain = &chain
		if chain.Warning != "" {
			r.logger.Warn("degraded fallback chain",
				logging.FieldRecordingID, rec.ID,
				"step", step.ID,
				"warning", chain.Warning)
		}
		r.logger.Debug("chain generated",
			logging.FieldRecordingID, rec.ID,
			"strategies", len(chain.Strategies),
			"excluded", len(excluded))
	}

	if err := step.Validate(); err != nil {
		return fmt.Errorf("captured action invalid: %w", err)
	}
	rec.Steps = append(rec.Steps, step)
	return nil
}

// Stop closes the tab's session, validates the recording, persists it, and
// returns it.
func (r *Recorder) Stop(tab browser.TabID) (*recording.Recording, error) {
	r.mu.Lock()
	rec, ok := r.active[tab]
	delete(r.active, tab)
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tab %s is not recording", tab)
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("recording not usable: %w", err)
	}
	if r.store != nil {
		if err := r.store.Save(rec); err != nil {
			return nil, fmt.Errorf("persist recording: %w", err)
		}
	}
	r.logger.Info("recording stopped",
		logging.FieldRecordingID, rec.ID,
		"steps", len(rec.Steps))
	return rec, nil
}

// Recording returns the in-progress recording for a tab, if any.
func (r *Recorder) Recording(tab browser.TabID) (*recording.Recording, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[tab]
	return rec, ok
}
