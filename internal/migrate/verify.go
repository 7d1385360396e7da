// verify.go — Backward-compatibility verification.
// Compares original and migrated recordings without modifying either.
// Critical fields must be byte-equal; divergence is an error.
package migrate

import (
	"fmt"

	"github.com/replaydeck/replaydeck/internal/recording"
)

// Report is the outcome of a compatibility check.
type Report struct {
	Compatible          bool           `json:"compatible"`
	Errors              []string       `json:"errors,omitempty"`
	PlayabilityWarnings []string       `json:"playability_warnings,omitempty"`
	PreservedFields     []string       `json:"preserved_fields,omitempty"`
	NewFieldDefaults    map[string]any `json:"new_field_defaults,omitempty"`
}

// Verify checks that migration preserved every critical field and reports
// which defaults were introduced. Read-only.
func Verify(original, migrated recording.Recording) Report {
	report := Report{
		Compatible:       true,
		NewFieldDefaults: map[string]any{},
	}

	check := func(field, before, after string) {
		if before != after {
			report.Compatible = false
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s diverged: %q -> %q", field, before, after))
			return
		}
		report.PreservedFields = append(report.PreservedFields, field)
	}

	check("id", original.ID, migrated.ID)
	check("name", original.Name, migrated.Name)
	check("url", original.URL, migrated.URL)
	check("created_at", original.CreatedAt, migrated.CreatedAt)

	if len(original.Steps) != len(migrated.Steps) {
		report.Compatible = false
		report.Errors = append(report.Errors,
			fmt.Sprintf("steps.length diverged: %d -> %d", len(original.Steps), len(migrated.Steps)))
	} else {
		report.PreservedFields = append(report.PreservedFields, "steps.length")
		for i := range original.Steps {
			before, after := original.Steps[i], migrated.Steps[i]
			prefix := fmt.Sprintf("steps[%d].", i)
			check(prefix+"id", before.ID, after.ID)
			check(prefix+"event", before.Event, after.Event)
			check(prefix+"selector", before.Selector, after.Selector)
			check(prefix+"value", before.Value, after.Value)
			check(prefix+"label", before.Label, after.Label)

			if before.RecordedVia == "" && after.RecordedVia != "" {
				report.NewFieldDefaults[prefix+"recorded_via"] = after.RecordedVia
			}
			if after.Chain == nil && after.Event != recording.EventOpen {
				report.PlayabilityWarnings = append(report.PlayabilityWarnings,
					fmt.Sprintf("step %s has no fallback chain; playback will rely on recorded selectors and coordinates", after.ID))
			}
		}
	}

	if original.SchemaVersion != migrated.SchemaVersion {
		report.NewFieldDefaults["schema_version"] = migrated.SchemaVersion
	}
	if original.LoopStartIndex != migrated.LoopStartIndex {
		report.NewFieldDefaults["loop_start_index"] = migrated.LoopStartIndex
	}
	if original.GlobalDelayMs != migrated.GlobalDelayMs {
		report.NewFieldDefaults["global_delay_ms"] = migrated.GlobalDelayMs
	}

	return report
}
