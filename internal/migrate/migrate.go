// migrate.go — Schema migration for persisted recordings.
// Idempotent: defaults are filled, invalid values repaired, and applying the
// migration twice yields the same recording. Unknown fields in the raw
// document are preserved.
package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/replaydeck/replaydeck/internal/recording"
)

const maxDelaySeconds = 3600

// Result is a migrated recording with its raw document and repair notes.
type Result struct {
	Recording recording.Recording
	Raw       []byte
	Warnings  []string
}

// Run migrates a typed recording, returning the upgraded copy and a note
// per repaired field. The input is not mutated.
func Run(rec recording.Recording) (recording.Recording, []string) {
	var warnings []string
	migrated := rec
	migrated.Steps = make([]recording.Step, len(rec.Steps))
	copy(migrated.Steps, rec.Steps)

	if migrated.LoopStartIndex < 0 {
		warnings = append(warnings, fmt.Sprintf("loop_start_index %d reset to 0", migrated.LoopStartIndex))
		migrated.LoopStartIndex = 0
	}
	if migrated.LoopStartIndex > len(migrated.Steps) {
		warnings = append(warnings, fmt.Sprintf("loop_start_index %d clamped to %d", migrated.LoopStartIndex, len(migrated.Steps)))
		migrated.LoopStartIndex = len(migrated.Steps)
	}

	if migrated.GlobalDelayMs < 0 {
		warnings = append(warnings, fmt.Sprintf("global_delay_ms %d reset to 0", migrated.GlobalDelayMs))
		migrated.GlobalDelayMs = 0
	}
	if migrated.GlobalDelayMs > 60000 {
		warnings = append(warnings, fmt.Sprintf("global_delay_ms %d clamped to 60000", migrated.GlobalDelayMs))
		migrated.GlobalDelayMs = 60000
	}

	for i := range migrated.Steps {
		step := &migrated.Steps[i]

		if step.RecordedVia == "" {
			step.RecordedVia = recording.ViaDOM
		}

		if step.Conditional != nil {
			if err := step.Conditional.Validate(); err != nil {
				warnings = append(warnings, fmt.Sprintf("step %s: conditional config reset (%v)", step.ID, err))
				step.Conditional = nil
			}
		}

		if step.DelaySeconds != nil {
			switch {
			case *step.DelaySeconds < 0:
				warnings = append(warnings, fmt.Sprintf("step %s: negative delay removed", step.ID))
				step.DelaySeconds = nil
			case *step.DelaySeconds > maxDelaySeconds:
				warnings = append(warnings, fmt.Sprintf("step %s: delay clamped to %ds", step.ID, maxDelaySeconds))
				clamped := float64(maxDelaySeconds)
				step.DelaySeconds = &clamped
			}
		}
	}

	migrated.SchemaVersion = recording.CurrentSchemaVersion
	return migrated, warnings
}

// Apply migrates a raw recording document. Unknown fields survive: the
// migrated known fields are merged back over the original document.
func Apply(raw []byte) (*Result, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse recording document: %w", err)
	}
	var rec recording.Recording
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}

	migrated, warnings := Run(rec)

	merged, err := recording.MergeIntoDocument(doc, &migrated)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal migrated document: %w", err)
	}

	return &Result{Recording: migrated, Raw: data, Warnings: warnings}, nil
}
