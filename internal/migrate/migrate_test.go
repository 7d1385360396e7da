package migrate

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/replaydeck/replaydeck/internal/recording"
)

func legacyRecording() recording.Recording {
	return recording.Recording{
		ID:        "r1",
		Name:      "R",
		URL:       "/",
		CreatedAt: "2025-06-01T00:00:00Z",
		Steps: []recording.Step{
			{ID: "s1", Event: recording.EventClick, Selector: "#x"},
		},
	}
}

func TestMigrateFillsDefaults(t *testing.T) {
	t.Parallel()

	migrated, warnings := Run(legacyRecording())

	if migrated.LoopStartIndex != 0 {
		t.Fatalf("loop_start_index = %d, want 0", migrated.LoopStartIndex)
	}
	if migrated.GlobalDelayMs != 0 {
		t.Fatalf("global_delay_ms = %d, want 0", migrated.GlobalDelayMs)
	}
	if migrated.Steps[0].RecordedVia != recording.ViaDOM {
		t.Fatalf("recorded_via = %q, want dom", migrated.Steps[0].RecordedVia)
	}
	if migrated.SchemaVersion != recording.CurrentSchemaVersion {
		t.Fatalf("schema_version = %d, want %d", migrated.SchemaVersion, recording.CurrentSchemaVersion)
	}
	if len(warnings) != 0 {
		t.Fatalf("defaults should not warn, got %v", warnings)
	}
}

func TestMigrateRepairsInvalidValues(t *testing.T) {
	t.Parallel()

	negDelay := -5.0
	bigDelay := 7200.0
	rec := legacyRecording()
	rec.LoopStartIndex = -3
	rec.GlobalDelayMs = 90000
	rec.Steps = append(rec.Steps,
		recording.Step{ID: "s2", Event: recording.EventClick, Selector: "#y", DelaySeconds: &negDelay},
		recording.Step{ID: "s3", Event: recording.EventClick, Selector: "#z", DelaySeconds: &bigDelay},
		recording.Step{
			ID: "s4", Event: recording.EventClick, Selector: "#w",
			Conditional: &recording.ConditionalConfig{SearchTerms: nil, TimeoutSeconds: 0},
		},
	)

	migrated, warnings := Run(rec)

	if migrated.LoopStartIndex != 0 {
		t.Fatalf("negative loop start should reset to 0, got %d", migrated.LoopStartIndex)
	}
	if migrated.GlobalDelayMs != 60000 {
		t.Fatalf("excess global delay should clamp to 60000, got %d", migrated.GlobalDelayMs)
	}
	if migrated.Steps[1].DelaySeconds != nil {
		t.Fatal("negative delay should be removed")
	}
	if migrated.Steps[2].DelaySeconds == nil || *migrated.Steps[2].DelaySeconds != 3600 {
		t.Fatalf("excess delay should clamp to 3600, got %v", migrated.Steps[2].DelaySeconds)
	}
	if migrated.Steps[3].Conditional != nil {
		t.Fatal("invalid conditional config should reset to absent")
	}
	if len(warnings) == 0 {
		t.Fatal("repairs must be reported as warnings")
	}
}

func TestMigrateClampsLoopStartPastEnd(t *testing.T) {
	t.Parallel()

	rec := legacyRecording()
	rec.LoopStartIndex = 10
	migrated, _ := Run(rec)
	if migrated.LoopStartIndex != len(rec.Steps) {
		t.Fatalf("loop start should clamp to steps.length, got %d", migrated.LoopStartIndex)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	negDelay := -2.0
	rec := legacyRecording()
	rec.LoopStartIndex = -1
	rec.GlobalDelayMs = 99999
	rec.Steps[0].DelaySeconds = &negDelay

	once, _ := Run(rec)
	twice, _ := Run(once)

	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("migration must be idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMigrateDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	rec := legacyRecording()
	rec.LoopStartIndex = -1
	Run(rec)
	if rec.LoopStartIndex != -1 {
		t.Fatal("Run must not mutate its input")
	}
}

func TestVerifyCompatibleLegacyRecording(t *testing.T) {
	t.Parallel()

	original := legacyRecording()
	migrated, _ := Run(original)
	report := Verify(original, migrated)

	if !report.Compatible {
		t.Fatalf("expected compatible, got errors: %v", report.Errors)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", report.Errors)
	}
	if report.NewFieldDefaults["steps[0].recorded_via"] != recording.ViaDOM {
		t.Fatalf("recorded_via default should be reported, got %v", report.NewFieldDefaults)
	}
}

func TestVerifyFlagsCriticalDivergence(t *testing.T) {
	t.Parallel()

	original := legacyRecording()
	mutated := legacyRecording()
	mutated.Steps[0].Selector = "#different"

	report := Verify(original, mutated)
	if report.Compatible {
		t.Fatal("selector divergence must be incompatible")
	}
	if len(report.Errors) == 0 {
		t.Fatal("expected divergence errors")
	}
}

func TestApplyPreservesUnknownFields(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": "r1",
		"name": "R",
		"url": "/",
		"created_at": "2025-06-01T00:00:00Z",
		"loop_start_index": -2,
		"vendor_extension": "keep-me",
		"steps": [
			{"id": "s1", "event": "click", "selector": "#x", "vendor_step": 7}
		]
	}`)

	result, err := Apply(raw)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result.Recording.LoopStartIndex != 0 {
		t.Fatalf("loop start should repair to 0, got %d", result.Recording.LoopStartIndex)
	}

	var doc map[string]any
	if err := json.Unmarshal(result.Raw, &doc); err != nil {
		t.Fatalf("parse migrated raw: %v", err)
	}
	if doc["vendor_extension"] != "keep-me" {
		t.Fatal("unknown top-level field lost in migration")
	}
	step := doc["steps"].([]any)[0].(map[string]any)
	if step["vendor_step"] != float64(7) {
		t.Fatal("unknown step field lost in migration")
	}
	if step["recorded_via"] != "dom" {
		t.Fatalf("recorded_via default missing in raw document: %v", step)
	}
}
